// Package catalog holds the high-level library operations used by the CLI:
// managing Spaces, Projects, Collections and Assets on top of the store.
package catalog

import (
	"errors"
	"fmt"

	"save-go/internal/model"
	"save-go/internal/save"
	"save-go/internal/store"
)

// ErrInvalidInput is returned for arguments that fail validation.
var ErrInvalidInput = errors.New("invalid input")

// Store is the part of the record store the catalog uses.
type Store interface {
	Snapshot() *store.Snapshot
	ReadWrite(fn func(*store.Tx) error) error
}

// Service coordinates the store, the content area and the process-wide
// selection to perform the operations needed by the CLI.
type Service struct {
	store   Store
	content save.ContentArea
	sealer  save.Sealer
	current *save.Current
	logger  save.Logger
	clock   save.Clock
	idgen   save.IDGenerator
}

// NewService creates a Service. sealer may be nil if no Space carries a
// secret.
func NewService(st Store, content save.ContentArea, sealer save.Sealer, current *save.Current, logger save.Logger, clock save.Clock, idgen save.IDGenerator) *Service {
	if current == nil {
		current = save.NewCurrent("", save.Profile{}, nil)
	}
	return &Service{
		store:   st,
		content: content,
		sealer:  sealer,
		current: current,
		logger:  logger,
		clock:   clock,
		idgen:   idgen,
	}
}

// Current returns the process-wide selection the service updates.
func (s *Service) Current() *save.Current { return s.current }

// rows returns the records of one view group, in view order.
func rows[T any](snap *store.Snapshot, viewName, group string) ([]T, error) {
	v, err := snap.View(viewName)
	if err != nil {
		return nil, err
	}
	var out []T
	for _, r := range v.Rows(group) {
		rec, ok := r.Record.(T)
		if !ok {
			return nil, fmt.Errorf("view %s holds %T", viewName, r.Record)
		}
		out = append(out, rec)
	}
	return out, nil
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
}

// put writes one record in its own transaction.
func (s *Service) put(collection, key string, rec any) error {
	return s.store.ReadWrite(func(tx *store.Tx) error {
		return tx.Put(collection, key, rec)
	})
}

// remove deletes one record and everything it owns.
func (s *Service) remove(collection, id string) error {
	return s.store.ReadWrite(func(tx *store.Tx) error {
		ok, err := tx.Has(collection, id)
		if err != nil {
			return err
		}
		if !ok {
			return notFound(collection, id)
		}
		return tx.Delete(collection, id)
	})
}

var _ Store = (*store.Store)(nil)

// chainOf loads the ancestors of an asset from snap.
func (s *Service) chainOf(snap *store.Snapshot, a model.Asset) (model.Chain, error) {
	chain, err := model.LoadChain(snap, a, s.current.Profile())
	if err != nil {
		return model.Chain{}, fmt.Errorf("loading asset chain: %w", err)
	}
	return chain, nil
}
