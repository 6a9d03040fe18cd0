package models

// Folder is a flat folder record as listed by /api/v1/folders.
type Folder struct {
	OID      string `json:"oid"`
	Name     string `json:"name"`
	Owner    string `json:"owner,omitempty"`
	ParentID string `json:"parentId,omitempty"`
}

// FolderNode is one node of the navigation tree. The tree is fetched fresh
// for every operation and never modified.
type FolderNode struct {
	OID        string         `json:"oid"`
	Name       string         `json:"name"`
	Owner      string         `json:"owner,omitempty"`
	Dashboards []DashboardRef `json:"dashboards,omitempty"`
	Folders    []FolderNode   `json:"folders,omitempty"`
}

// DashboardRef identifies a dashboard by ID and title.
type DashboardRef struct {
	OID   string `json:"oid"`
	Title string `json:"title"`
}

// FolderKey is the (id, name) pair used to de-duplicate collected folders.
type FolderKey struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DashboardKey is the (id, title) pair used to de-duplicate collected dashboards.
type DashboardKey struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}
