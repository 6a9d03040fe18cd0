// Package folders walks the folder tree of a tenant and transfers ownership
// of a folder neighbourhood.
package folders

import (
	"github.com/rflorenc/sisense-workbench/internal/models"
)

// Collection is the result of LocateAndCollect. Folders and Dashboards keep
// discovery order and hold each (id, name) pair once.
type Collection struct {
	Found      bool                  `json:"found"`
	Folders    []models.FolderKey    `json:"folders"`
	Dashboards []models.DashboardKey `json:"dashboards"`

	folderSeen map[models.FolderKey]bool
	dashSeen   map[models.DashboardKey]bool
}

func newCollection() *Collection {
	return &Collection{
		Folders:    []models.FolderKey{},
		Dashboards: []models.DashboardKey{},
		folderSeen: map[models.FolderKey]bool{},
		dashSeen:   map[models.DashboardKey]bool{},
	}
}

// HasFolder reports whether the folder was collected.
func (c *Collection) HasFolder(id, name string) bool {
	return c.folderSeen[models.FolderKey{ID: id, Name: name}]
}

// LocateAndCollect finds the first folder named name in depth-first order and
// collects it with its whole subtree, then its immediate parent with the
// parent's whole subtree (which covers the siblings). Folder names are not
// unique; the first match wins.
func LocateAndCollect(forest []models.FolderNode, name string) *Collection {
	c := newCollection()
	path := locate(forest, name, nil)
	if path == nil {
		return c
	}
	c.Found = true
	collect(path[len(path)-1], c)
	if len(path) > 1 {
		collect(path[len(path)-2], c)
	}
	return c
}

// locate returns the chain of nodes from a root down to the first folder
// named name, or nil.
func locate(nodes []models.FolderNode, name string, path []*models.FolderNode) []*models.FolderNode {
	for i := range nodes {
		n := &nodes[i]
		p := append(path[:len(path):len(path)], n)
		if n.Name == name {
			return p
		}
		if found := locate(n.Folders, name, p); found != nil {
			return found
		}
	}
	return nil
}

// collect adds n, its dashboards and all descendants to c. A folder already
// in c is not descended into again.
func collect(n *models.FolderNode, c *Collection) {
	key := models.FolderKey{ID: n.OID, Name: n.Name}
	if c.folderSeen[key] {
		return
	}
	c.folderSeen[key] = true
	c.Folders = append(c.Folders, key)

	for _, d := range n.Dashboards {
		dk := models.DashboardKey{ID: d.OID, Title: d.Title}
		if !c.dashSeen[dk] {
			c.dashSeen[dk] = true
			c.Dashboards = append(c.Dashboards, dk)
		}
	}
	for i := range n.Folders {
		collect(&n.Folders[i], c)
	}
}
