package model

import (
	"cmp"
	"fmt"
	"strings"
	"time"

	"save-go/internal/view"
)

// View names.
const (
	ViewAssetsByCollection         = "assets_by_collection"
	ViewAssetsByCollectionFiltered = "assets_by_collection_filtered"
	ViewAssetsByCollectionSingle   = "assets_by_collection_single"
	ViewUploads                    = "uploads"
	ViewProjects                   = "projects"
	ViewActiveProjects             = "active_projects"
	ViewCollections                = "collections"
	ViewSpaces                     = "spaces"
)

// LocalGroup holds Projects that belong to no Space.
const LocalGroup = "local"

// GroupKey encodes a Collection's ownership and creation order. Keys sort by
// project creation time, then project, then collection creation time, so a
// descending view lists the newest collections of the newest projects first.
func GroupKey(project Project, collection Collection) string {
	return fmt.Sprintf("%020d:%s:%020d:%s",
		epoch(project.Created), project.ID, epoch(collection.Created), collection.ID)
}

func epoch(t time.Time) int64 {
	if n := t.UnixNano(); !t.IsZero() && n > 0 {
		return n
	}
	return 0
}

// ParseGroupKey returns the project and collection ids encoded in a group key.
func ParseGroupKey(group string) (projectID, collectionID string, ok bool) {
	parts := strings.Split(group, ":")
	if len(parts) != 4 {
		return "", "", false
	}
	return parts[1], parts[3], true
}

// ProjectFilter shows the groups of one Project. An empty id shows all.
func ProjectFilter(projectID string) view.FilterFunc {
	return func(group string) bool {
		if projectID == "" {
			return true
		}
		p, _, ok := ParseGroupKey(group)
		return ok && p == projectID
	}
}

// CollectionFilter shows the group of one Collection. An empty id shows all.
func CollectionFilter(collectionID string) view.FilterFunc {
	return func(group string) bool {
		if collectionID == "" {
			return true
		}
		_, c, ok := ParseGroupKey(group)
		return ok && c == collectionID
	}
}

func assetGroup(r view.Reader, _ string, rec any) (string, bool, error) {
	a, ok := rec.(Asset)
	if !ok {
		return "", false, fmt.Errorf("unexpected record %T in %s", rec, Assets)
	}
	col, err := FindCollection(r, a.CollectionID)
	if err != nil {
		return "", false, err
	}
	if col == nil {
		return "", false, fmt.Errorf("asset %s: collection %s missing", a.ID, a.CollectionID)
	}
	prj, err := FindProject(r, col.ProjectID)
	if err != nil {
		return "", false, err
	}
	if prj == nil {
		return "", false, fmt.Errorf("collection %s: project %s missing", col.ID, col.ProjectID)
	}
	return GroupKey(*prj, *col), true, nil
}

func byCreated[T any](created func(T) time.Time) view.SortFunc {
	return func(a, b any) int {
		return created(a.(T)).Compare(created(b.(T)))
	}
}

func projectGroup(activeOnly bool) view.GroupFunc {
	return func(_ view.Reader, _ string, rec any) (string, bool, error) {
		p := rec.(Project)
		if activeOnly && !p.Active {
			return "", false, nil
		}
		return cmp.Or(p.SpaceID, LocalGroup), true, nil
	}
}

// Views returns the base view definitions of the application.
func Views() []view.Definition {
	return []view.Definition{
		{
			Name:             ViewAssetsByCollection,
			Source:           Assets,
			Group:            assetGroup,
			Sort:             byCreated(func(a Asset) time.Time { return a.Created }),
			DescendingGroups: true,
		},
		{
			Name:   ViewUploads,
			Source: Uploads,
			Group: func(_ view.Reader, _ string, rec any) (string, bool, error) {
				return Uploads, true, nil
			},
			Sort: func(a, b any) int { return strings.Compare(a.(Upload).ID, b.(Upload).ID) },
		},
		{
			Name:   ViewProjects,
			Source: Projects,
			Group:  projectGroup(false),
			Sort:   byCreated(func(p Project) time.Time { return p.Created }),
		},
		{
			Name:   ViewActiveProjects,
			Source: Projects,
			Group:  projectGroup(true),
			Sort:   byCreated(func(p Project) time.Time { return p.Created }),
		},
		{
			Name:   ViewCollections,
			Source: Collections,
			Group: func(_ view.Reader, _ string, rec any) (string, bool, error) {
				return rec.(Collection).ProjectID, true, nil
			},
			Sort: byCreated(func(c Collection) time.Time { return c.Created }),
		},
		{
			Name:   ViewSpaces,
			Source: Spaces,
			Group: func(_ view.Reader, _ string, rec any) (string, bool, error) {
				return Spaces, true, nil
			},
			Sort: func(a, b any) int {
				sa, sb := a.(Space), b.(Space)
				return cmp.Or(
					strings.Compare(strings.ToLower(sa.PrettyName()), strings.ToLower(sb.PrettyName())),
					sa.Created.Compare(sb.Created),
				)
			},
		},
	}
}

// FilteredViews returns the filtered views of the application. Both start
// unfiltered.
func FilteredViews() []view.Filtered {
	return []view.Filtered{
		{Name: ViewAssetsByCollectionFiltered, Parent: ViewAssetsByCollection, Filter: ProjectFilter("")},
		{Name: ViewAssetsByCollectionSingle, Parent: ViewAssetsByCollection, Filter: CollectionFilter("")},
	}
}
