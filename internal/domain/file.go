package domain

// BookFileType is the kind of asset attached to a book.
type BookFileType string

const (
	FilePDF       BookFileType = "pdf"
	FileThumbnail BookFileType = "thumbnail"
	FileAudio     BookFileType = "audio"
	FileVideo     BookFileType = "video"
)

// IsValid checks if the file type is a recognized value.
func (t BookFileType) IsValid() bool {
	switch t {
	case FilePDF, FileThumbnail, FileAudio, FileVideo:
		return true
	default:
		return false
	}
}

func (t BookFileType) String() string { return string(t) }

// BookFile is an asset attached to a book. Path and Filename are
// nullable because video entries may carry only an external URL.
// IsPrimary distinguishes the main asset of each type from alternates.
type BookFile struct {
	Record
	BookID      string       `json:"book_id"`
	Type        BookFileType `json:"type"`
	Path        string       `json:"path,omitempty"`
	Filename    string       `json:"filename,omitempty"`
	ExternalURL string       `json:"external_url,omitempty"`
	IsPrimary   bool         `json:"is_primary"`
}
