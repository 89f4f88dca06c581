package snapshot

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/wippyai/binsize/errors"
)

// DefaultDebounce is the quiet period after the last change before a reload.
const DefaultDebounce = 200 * time.Millisecond

type watchOptions struct {
	onReload func(*Snapshot, error)
	debounce time.Duration
}

// WatchOption configures Watch.
type WatchOption func(*watchOptions)

// WithDebounce sets the quiet period. Values below 1 select DefaultDebounce.
func WithDebounce(d time.Duration) WatchOption {
	return func(o *watchOptions) { o.debounce = d }
}

// WithOnReload registers a callback run after every reload attempt, with
// either the new snapshot or the load error.
func WithOnReload(fn func(*Snapshot, error)) WatchOption {
	return func(o *watchOptions) { o.onReload = fn }
}

// Watch reloads path into st whenever the file is written, created, or
// renamed into place, until ctx is done. Bursts of events within the
// debounce window cause a single reload. A failed reload leaves the
// previous snapshot installed.
//
// The parent directory is watched rather than the file itself so that
// editors and linkers replacing the file by rename keep being observed.
func Watch(ctx context.Context, st *Store, path string, opts Options, wopts ...WatchOption) error {
	o := watchOptions{}
	for _, opt := range wopts {
		opt(&o)
	}
	if o.debounce < 1 {
		o.debounce = DefaultDebounce
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "resolve watched path")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(errors.PhaseLoad, errors.KindInternal, err, "create watcher")
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "watch directory")
	}

	Logger().Info("watching", zap.String("path", abs), zap.Duration("debounce", o.debounce))

	timer := time.NewTimer(o.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			Logger().Debug("change observed", zap.Stringer("op", event.Op))
			timer.Reset(o.debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			Logger().Warn("watcher error", zap.Error(err))

		case <-timer.C:
			s, err := st.Reload(ctx, abs, opts)
			if o.onReload != nil {
				o.onReload(s, err)
			}
		}
	}
}
