package catalog

import (
	"cmp"
	"fmt"
	"strings"

	"save-go/internal/model"
	"save-go/internal/store"
)

// AddProject creates an active Project in a Space. An empty spaceID uses the
// selected Space; with no selection the Project is local.
func (s *Service) AddProject(spaceID, name, license string) (*model.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: project name is empty", ErrInvalidInput)
	}
	p := model.Project{
		ID:      s.idgen.New(),
		SpaceID: cmp.Or(spaceID, s.current.SpaceID()),
		Name:    name,
		License: license,
		Active:  true,
		Created: s.clock.Now(),
	}
	if err := s.put(model.Projects, p.ID, p); err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}
	s.logger.Info("project added", "id", p.ID, "space", p.SpaceID, "name", p.Name)
	return &p, nil
}

// Projects lists the Projects of a Space, oldest first. An empty spaceID
// lists local Projects. With activeOnly set, archived Projects are left out.
func (s *Service) Projects(spaceID string, activeOnly bool) ([]model.Project, error) {
	name := model.ViewProjects
	if activeOnly {
		name = model.ViewActiveProjects
	}
	return rows[model.Project](s.store.Snapshot(), name, cmp.Or(spaceID, model.LocalGroup))
}

func (s *Service) Project(id string) (*model.Project, error) {
	p, err := model.FindProject(s.store.Snapshot(), id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, notFound("project", id)
	}
	return p, nil
}

// SetProjectActive archives or reactivates a Project.
func (s *Service) SetProjectActive(id string, active bool) error {
	return s.store.ReadWrite(func(tx *store.Tx) error {
		p, err := model.FindProject(tx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return notFound("project", id)
		}
		if p.Active == active {
			return nil
		}
		p.Active = active
		return tx.Put(model.Projects, id, *p)
	})
}

// RemoveProject deletes a Project with its Collections and Assets.
func (s *Service) RemoveProject(id string) error {
	if err := s.remove(model.Projects, id); err != nil {
		return fmt.Errorf("removing project: %w", err)
	}
	s.logger.Info("project removed", "id", id)
	return nil
}

// AddCollection creates an open Collection in a Project.
func (s *Service) AddCollection(projectID, name string) (*model.Collection, error) {
	c := model.Collection{
		ID:        s.idgen.New(),
		ProjectID: projectID,
		Name:      strings.TrimSpace(name),
		Created:   s.clock.Now(),
	}
	if err := s.put(model.Collections, c.ID, c); err != nil {
		return nil, fmt.Errorf("creating collection: %w", err)
	}
	s.logger.Info("collection added", "id", c.ID, "project", projectID)
	return &c, nil
}

// Collections lists the Collections of a Project, oldest first.
func (s *Service) Collections(projectID string) ([]model.Collection, error) {
	return rows[model.Collection](s.store.Snapshot(), model.ViewCollections, projectID)
}

func (s *Service) Collection(id string) (*model.Collection, error) {
	c, err := model.FindCollection(s.store.Snapshot(), id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, notFound("collection", id)
	}
	return c, nil
}

// CloseCollection marks a Collection closed. Closed Collections accept no
// new Assets.
func (s *Service) CloseCollection(id string) error {
	return s.store.ReadWrite(func(tx *store.Tx) error {
		c, err := model.FindCollection(tx, id)
		if err != nil {
			return err
		}
		if c == nil {
			return notFound("collection", id)
		}
		if c.Closed != nil {
			return nil
		}
		now := s.clock.Now()
		c.Closed = &now
		return tx.Put(model.Collections, id, *c)
	})
}

// RemoveCollection deletes a Collection with its Assets.
func (s *Service) RemoveCollection(id string) error {
	if err := s.remove(model.Collections, id); err != nil {
		return fmt.Errorf("removing collection: %w", err)
	}
	s.logger.Info("collection removed", "id", id)
	return nil
}
