package snapshot

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

// Store publishes the current snapshot to concurrent readers.
type Store struct {
	cur atomic.Pointer[Snapshot]
}

// NewStore returns a store holding s, which may be nil.
func NewStore(s *Snapshot) *Store {
	st := &Store{}
	if s != nil {
		st.cur.Store(s)
	}
	return st
}

// Current returns the installed snapshot, or nil before the first load.
func (st *Store) Current() *Snapshot {
	return st.cur.Load()
}

// Swap installs s and returns the previous snapshot.
func (st *Store) Swap(s *Snapshot) *Snapshot {
	old := st.cur.Swap(s)
	swapsTotal.Inc()
	return old
}

// Reload loads path and installs the result. On failure the current
// snapshot stays in place and the error is returned.
func (st *Store) Reload(ctx context.Context, path string, opts Options) (*Snapshot, error) {
	s, err := Load(ctx, path, opts)
	if err != nil {
		Logger().Warn("reload failed, keeping previous snapshot",
			zap.String("path", path),
			zap.Error(err))
		return nil, err
	}
	if old := st.Swap(s); old != nil {
		Logger().Debug("snapshot replaced",
			zap.String("old", old.ID.String()),
			zap.String("new", s.ID.String()))
	}
	return s, nil
}
