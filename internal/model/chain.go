package model

import (
	"fmt"
	"strings"

	"save-go/internal/save"
	"save-go/internal/view"
)

// Chain is an Asset's ancestry, loaded explicitly from one snapshot so that
// derived fields never read the store behind the caller's back. Project and
// Space are nil when missing.
type Chain struct {
	Collection *Collection
	Project    *Project
	Space      *Space
	Profile    save.Profile
}

// LoadChain walks Collection, Project and Space for a.
func LoadChain(r view.Reader, a Asset, profile save.Profile) (Chain, error) {
	c := Chain{Profile: profile}
	col, err := FindCollection(r, a.CollectionID)
	if err != nil {
		return c, err
	}
	if col == nil {
		return c, nil
	}
	c.Collection = col
	prj, err := FindProject(r, col.ProjectID)
	if err != nil || prj == nil {
		return c, err
	}
	c.Project = prj
	if prj.SpaceID == "" {
		return c, nil
	}
	c.Space, err = FindSpace(r, prj.SpaceID)
	return c, err
}

// Author joins the Space's author fields, falling back to the user profile
// when the Space carries none.
func (c Chain) Author() string {
	var parts []string
	if c.Space != nil {
		parts = nonEmpty(c.Space.AuthorName, c.Space.AuthorRole, c.Space.AuthorOther)
	}
	if len(parts) == 0 {
		parts = nonEmpty(c.Profile.Alias, c.Profile.Role, c.Profile.Other)
	}
	return strings.Join(parts, ", ")
}

// License is the Project's license, if any.
func (c Chain) License() string {
	if c.Project == nil {
		return ""
	}
	return c.Project.License
}

// Folder is the remote folder an Asset is uploaded into.
func (c Chain) Folder() string {
	var parts []string
	if c.Project != nil {
		parts = append(parts, c.Project.Name)
	}
	if c.Collection != nil {
		parts = append(parts, c.Collection.Created.UTC().Format("2006-01-02T15-04-05"))
	}
	return strings.Join(parts, "/")
}

func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// FindSpace returns the Space with id, or nil if there is none.
func FindSpace(r view.Reader, id string) (*Space, error) {
	return find[Space](r, Spaces, id)
}

func FindProject(r view.Reader, id string) (*Project, error) {
	return find[Project](r, Projects, id)
}

func FindCollection(r view.Reader, id string) (*Collection, error) {
	return find[Collection](r, Collections, id)
}

func FindAsset(r view.Reader, id string) (*Asset, error) {
	return find[Asset](r, Assets, id)
}

func FindUpload(r view.Reader, id string) (*Upload, error) {
	return find[Upload](r, Uploads, id)
}

// find returns a copy of the record, so callers may modify and Put it back.
func find[T any](r view.Reader, collection, id string) (*T, error) {
	if id == "" {
		return nil, nil
	}
	rec, err := r.Get(collection, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	v, ok := rec.(T)
	if !ok {
		return nil, fmt.Errorf("%s/%s: unexpected record type %T", collection, id, rec)
	}
	return &v, nil
}
