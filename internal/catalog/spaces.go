package catalog

import (
	"fmt"
	"strings"

	"save-go/internal/model"
	"save-go/internal/store"
)

// SpaceInput describes a Space to create. Secret is sealed before it is
// stored and never kept in plain text.
type SpaceInput struct {
	Kind     model.SpaceKind
	Name     string
	URL      string
	Username string
	Secret   string

	Root     string
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string

	AuthorName  string
	AuthorRole  string
	AuthorOther string
}

func (in SpaceInput) validate() error {
	if !in.Kind.Valid() {
		return fmt.Errorf("%w: unknown space kind %q", ErrInvalidInput, in.Kind)
	}
	switch in.Kind {
	case model.KindFilesystem:
		if in.Root == "" {
			return fmt.Errorf("%w: a filesystem space needs a root directory", ErrInvalidInput)
		}
	case model.KindS3, model.KindIA:
		if in.Bucket == "" {
			return fmt.Errorf("%w: a %s space needs a bucket", ErrInvalidInput, in.Kind)
		}
	}
	return nil
}

// AddSpace creates a Space. The first Space added becomes the selected one.
func (s *Service) AddSpace(in SpaceInput) (*model.Space, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	space := model.Space{
		ID:          s.idgen.New(),
		Kind:        in.Kind,
		Name:        strings.TrimSpace(in.Name),
		URL:         in.URL,
		Username:    in.Username,
		Root:        in.Root,
		Bucket:      in.Bucket,
		Prefix:      in.Prefix,
		Region:      in.Region,
		Endpoint:    in.Endpoint,
		AuthorName:  in.AuthorName,
		AuthorRole:  in.AuthorRole,
		AuthorOther: in.AuthorOther,
		Created:     s.clock.Now(),
	}
	if in.Secret != "" {
		if s.sealer == nil || !s.sealer.IsConfigured() {
			return nil, fmt.Errorf("%w: encryption is not set up, cannot store a secret", ErrInvalidInput)
		}
		sealed, err := s.sealer.Seal([]byte(in.Secret))
		if err != nil {
			return nil, fmt.Errorf("sealing secret: %w", err)
		}
		space.SealedSecret = sealed
	}

	if err := s.put(model.Spaces, space.ID, space); err != nil {
		return nil, fmt.Errorf("creating space: %w", err)
	}
	s.logger.Info("space added", "id", space.ID, "kind", space.Kind, "name", space.PrettyName())

	if s.current.SpaceID() == "" {
		s.current.SelectSpace(space.ID)
	}
	return &space, nil
}

// Spaces lists every Space ordered by name.
func (s *Service) Spaces() ([]model.Space, error) {
	return rows[model.Space](s.store.Snapshot(), model.ViewSpaces, model.Spaces)
}

// Space returns the Space with id.
func (s *Service) Space(id string) (*model.Space, error) {
	space, err := model.FindSpace(s.store.Snapshot(), id)
	if err != nil {
		return nil, err
	}
	if space == nil {
		return nil, notFound("space", id)
	}
	return space, nil
}

// SelectSpace makes id the selected Space.
func (s *Service) SelectSpace(id string) error {
	if _, err := s.Space(id); err != nil {
		return err
	}
	s.current.SelectSpace(id)
	return nil
}

// CurrentSpace returns the selected Space, or nil if none is selected or the
// selection no longer exists.
func (s *Service) CurrentSpace() (*model.Space, error) {
	id := s.current.SpaceID()
	if id == "" {
		return nil, nil
	}
	return model.FindSpace(s.store.Snapshot(), id)
}

// RemoveSpace deletes a Space with its Projects, Collections, Assets and
// their files. The selection is cleared if it pointed at the Space.
func (s *Service) RemoveSpace(id string) error {
	if err := s.remove(model.Spaces, id); err != nil {
		return fmt.Errorf("removing space: %w", err)
	}
	s.current.ClearSpace(id)
	s.logger.Info("space removed", "id", id)
	return nil
}

// UpdateSpace applies fn to a copy of the Space and stores the result. The
// id and secret cannot be changed this way.
func (s *Service) UpdateSpace(id string, fn func(*model.Space) error) (*model.Space, error) {
	var out model.Space
	err := s.store.ReadWrite(func(tx *store.Tx) error {
		space, err := model.FindSpace(tx, id)
		if err != nil {
			return err
		}
		if space == nil {
			return notFound("space", id)
		}
		sealed := space.SealedSecret
		if err := fn(space); err != nil {
			return err
		}
		space.ID, space.SealedSecret = id, sealed
		out = *space
		return tx.Put(model.Spaces, id, *space)
	})
	if err != nil {
		return nil, fmt.Errorf("updating space: %w", err)
	}
	return &out, nil
}
