package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/stacksapp/stacks-server/internal/domain"
	"github.com/stacksapp/stacks-server/internal/id"
	"github.com/stacksapp/stacks-server/internal/store"
	"github.com/stacksapp/stacks-server/internal/util"
)

// resolver turns natural keys into entity IDs with get-or-create
// semantics. Lookups are memoized for the lifetime of one run, so
// thousands of rows naming the same creator hit the database once.
// The cache is run-scoped: concurrent runs each carry their own and
// rely on the unique indexes to arbitrate create races.
type resolver struct {
	createMissing bool
	cache         map[string]string
}

func newResolver(createMissing bool) *resolver {
	return &resolver{
		createMissing: createMissing,
		cache:         make(map[string]string),
	}
}

func (r *resolver) cacheKey(kind, key string) string {
	return kind + "\x00" + key
}

// resolve runs the shared find / create / re-fetch dance. find returns
// the id or store.ErrNotFound; create inserts and may return
// store.ErrAlreadyExists when a concurrent run won the race.
func (r *resolver) resolve(kind, naturalKey, display string,
	find func() (string, error), create func() (string, error)) (string, error) {

	ck := r.cacheKey(kind, naturalKey)
	if id, ok := r.cache[ck]; ok {
		return id, nil
	}

	entityID, err := find()
	if err == nil {
		r.cache[ck] = entityID
		return entityID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	if !r.createMissing {
		return "", fmt.Errorf("%w: %s %q", ErrMissingReference, kind, display)
	}

	entityID, err = create()
	if errors.Is(err, store.ErrAlreadyExists) {
		// Lost the insert race; the row is there now.
		if entityID, err = find(); err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}
	r.cache[ck] = entityID
	return entityID, nil
}

// Creator resolves a creator by normalized name.
func (r *resolver) Creator(ctx context.Context, tx *store.Tx, name string) (string, error) {
	key := util.NaturalKey(name)
	return r.resolve("creator", key, name,
		func() (string, error) {
			c, err := tx.FindCreatorByKey(ctx, key)
			if err != nil {
				return "", err
			}
			return c.ID, nil
		},
		func() (string, error) {
			c := &domain.Creator{Name: name}
			c.ID = id.MustGenerate(id.PrefixCreator)
			c.InitTimestamps()
			return c.ID, tx.CreateCreator(ctx, c, key)
		})
}

// Language resolves a language by normalized name.
func (r *resolver) Language(ctx context.Context, tx *store.Tx, name string) (string, error) {
	key := util.NaturalKey(name)
	return r.resolve("language", key, name,
		func() (string, error) { return tx.FindLanguageByKey(ctx, key) },
		func() (string, error) {
			l := &domain.Language{Name: name, IsActive: true}
			l.ID = id.MustGenerate(id.PrefixLanguage)
			l.InitTimestamps()
			return l.ID, tx.CreateLanguage(ctx, l, key)
		})
}

// PhysicalType resolves a physical type by slug.
func (r *resolver) PhysicalType(ctx context.Context, tx *store.Tx, name string) (string, error) {
	slug := util.Slugify(name)
	return r.resolve("physical_type", slug, name,
		func() (string, error) { return tx.FindPhysicalType(ctx, slug) },
		func() (string, error) {
			pt := &domain.PhysicalType{Name: name, Slug: slug, IsActive: true}
			pt.ID = id.MustGenerate(id.PrefixPhysicalType)
			pt.InitTimestamps()
			return pt.ID, tx.CreatePhysicalType(ctx, pt)
		})
}

// Collection resolves a collection by slug.
func (r *resolver) Collection(ctx context.Context, tx *store.Tx, name string) (string, error) {
	slug := util.Slugify(name)
	return r.resolve("collection", slug, name,
		func() (string, error) { return tx.FindCollection(ctx, slug) },
		func() (string, error) {
			c := &domain.Collection{Name: name, Slug: slug, IsActive: true}
			c.ID = id.MustGenerate(id.PrefixCollection)
			c.InitTimestamps()
			return c.ID, tx.CreateCollection(ctx, c)
		})
}

// Publisher resolves a publisher by slug.
func (r *resolver) Publisher(ctx context.Context, tx *store.Tx, name string) (string, error) {
	slug := util.Slugify(name)
	return r.resolve("publisher", slug, name,
		func() (string, error) { return tx.FindPublisher(ctx, slug) },
		func() (string, error) {
			p := &domain.Publisher{Name: name, Slug: slug, IsActive: true}
			p.ID = id.MustGenerate(id.PrefixPublisher)
			p.InitTimestamps()
			return p.ID, tx.CreatePublisher(ctx, p)
		})
}

// ClassificationType resolves a taxonomy axis by slug. Types named in
// the mapping table are created on first use like any other lookup.
func (r *resolver) ClassificationType(ctx context.Context, tx *store.Tx, slug, name string) (string, error) {
	return r.resolve("classification_type", slug, name,
		func() (string, error) { return tx.FindClassificationType(ctx, slug) },
		func() (string, error) {
			ct := &domain.ClassificationType{Name: name, Slug: slug, IsActive: true}
			ct.ID = id.MustGenerate(id.PrefixClassType)
			ct.InitTimestamps()
			return ct.ID, tx.CreateClassificationType(ctx, ct)
		})
}

// ClassificationValue resolves a value within a type.
func (r *resolver) ClassificationValue(ctx context.Context, tx *store.Tx, typeID, name string) (string, error) {
	slug := util.Slugify(name)
	return r.resolve("classification_value:"+typeID, slug, name,
		func() (string, error) { return tx.FindClassificationValue(ctx, typeID, slug) },
		func() (string, error) {
			v := &domain.ClassificationValue{TypeID: typeID, Name: name, Slug: slug, IsActive: true}
			v.ID = id.MustGenerate(id.PrefixClassification)
			v.InitTimestamps()
			return v.ID, tx.CreateClassificationValue(ctx, v)
		})
}

// GeographicLocation resolves a place under an optional parent.
func (r *resolver) GeographicLocation(ctx context.Context, tx *store.Tx, name, kind, parentID string) (string, error) {
	slug := util.Slugify(name)
	return r.resolve("location:"+parentID, slug, name,
		func() (string, error) { return tx.FindGeographicLocation(ctx, slug, parentID) },
		func() (string, error) {
			l := &domain.GeographicLocation{Name: name, Slug: slug, ParentID: parentID, Kind: kind, IsActive: true}
			l.ID = id.MustGenerate(id.PrefixLocation)
			l.InitTimestamps()
			return l.ID, tx.CreateGeographicLocation(ctx, l)
		})
}

// Library resolves a partner library by code.
func (r *resolver) Library(ctx context.Context, tx *store.Tx, code, name string) (string, error) {
	return r.resolve("library", code, code,
		func() (string, error) { return tx.FindLibraryByCode(ctx, code) },
		func() (string, error) {
			l := &domain.Library{Code: code, Name: name, IsActive: true}
			l.ID = id.MustGenerate(id.PrefixLibrary)
			l.InitTimestamps()
			return l.ID, tx.CreateLibrary(ctx, l)
		})
}
