package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Watch polls the database for commits made by other processes sharing the
// file and reloads the store when one is seen. It blocks until ctx is done.
func (s *Store) Watch(ctx context.Context, interval time.Duration) error {
	if s.db == nil {
		return errors.New("watch: store has no database")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		changed, err := s.CheckExternal(ctx)
		if err != nil {
			s.logger.Warn("checking for external changes", "error", err)
			continue
		}
		if changed {
			s.logger.Debug("external change detected, reloaded store")
		}
	}
}

// CheckExternal reloads the store if another process committed since the
// last check, and reports whether it did.
func (s *Store) CheckExternal(ctx context.Context) (bool, error) {
	if s.db == nil {
		return false, nil
	}
	v, err := s.db.DataVersion(ctx)
	if err != nil {
		return false, fmt.Errorf("reading data version: %w", err)
	}

	s.mu.Lock()
	changed := v != s.dataVersion
	s.dataVersion = v
	s.mu.Unlock()
	if !changed {
		return false, nil
	}

	done := make(chan error, 1)
	s.enqueue(job{reload: true, done: func(err error) { done <- err }})
	if err := <-done; err != nil {
		return false, err
	}
	return true, nil
}

// reload replaces the current snapshot with the database contents. Views are
// rebuilt from scratch and readers are told to reload fully.
func (s *Store) reload() error {
	snap, err := s.load(context.Background())
	if err != nil {
		return err
	}
	base := s.current.Load()
	views, err := base.views.Rebuild(snap)
	if err != nil {
		return fmt.Errorf("rebuilding views: %w", err)
	}
	snap.views = views
	snap.number = base.number + 1
	s.current.Store(snap)

	s.publish(Commit{
		Number:   snap.number,
		Snapshot: snap,
		External: true,
		Versions: views.Versions(),
	})
	return nil
}
