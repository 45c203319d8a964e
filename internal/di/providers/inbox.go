package providers

import (
	"context"
	"errors"

	"github.com/samber/do/v2"

	"github.com/stacksapp/stacks-server/internal/config"
	"github.com/stacksapp/stacks-server/internal/inbox"
	"github.com/stacksapp/stacks-server/internal/logger"
	"github.com/stacksapp/stacks-server/internal/service"
)

// InboxWatcherHandle wraps the drop-folder watcher with its context for
// lifecycle management. Watcher is nil when no inbox path is configured.
type InboxWatcherHandle struct {
	*inbox.Watcher
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *InboxWatcherHandle) Shutdown() error {
	if h.Watcher == nil {
		return nil
	}
	h.cancel()
	return h.Close()
}

// ProvideInboxWatcher provides the drop-folder watcher.
func ProvideInboxWatcher(i do.Injector) (*InboxWatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Inbox.Path == "" {
		log.Info("Inbox watcher disabled by configuration")
		return &InboxWatcherHandle{}, nil
	}

	importService := do.MustInvoke[*service.ImportService](i)

	watcher, err := inbox.New(importService, cfg.Inbox, log.Logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := watcher.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Inbox watcher stopped", "error", err)
		}
	}()

	log.Info("Inbox watcher started", "path", cfg.Inbox.Path)

	return &InboxWatcherHandle{Watcher: watcher, cancel: cancel}, nil
}
