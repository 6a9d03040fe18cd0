package models

import (
	"bytes"
	"encoding/json"
)

// Ref is a reference to another entity. The API returns references either as
// a bare ID string or as an expanded object, depending on query options.
type Ref struct {
	ID   string `json:"_id,omitempty"`
	Name string `json:"name,omitempty"`
}

func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &r.ID)
	}
	var obj struct {
		ID       string `json:"_id"`
		OID      string `json:"oid"`
		Name     string `json:"name"`
		UserName string `json:"userName"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	r.ID = obj.ID
	if r.ID == "" {
		r.ID = obj.OID
	}
	r.Name = obj.Name
	if r.Name == "" {
		r.Name = obj.UserName
	}
	return nil
}

// Group is a user group. Fields keeps the complete record so it can be
// re-posted to another tenant.
type Group struct {
	ID     string         `json:"_id"`
	Name   string         `json:"name"`
	Fields map[string]any `json:"-"`
}

func (g *Group) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	type plain Group
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*g = Group(p)
	g.Fields = fields
	return nil
}

// Role is a tenant role. Name is the stored name ("consumer", "super", ...).
type Role struct {
	ID          string `json:"_id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
}

// User is a tenant user, optionally expanded with role and groups.
type User struct {
	ID          string         `json:"_id"`
	UserName    string         `json:"userName"`
	Email       string         `json:"email"`
	FirstName   string         `json:"firstName"`
	LastName    string         `json:"lastName"`
	Active      bool           `json:"active"`
	RoleID      string         `json:"roleId"`
	Role        *Role          `json:"role,omitempty"`
	Groups      []Ref          `json:"groups"`
	Preferences map[string]any `json:"preferences,omitempty"`
}

// GroupNames returns the names of expanded groups.
func (u *User) GroupNames() []string {
	var names []string
	for _, g := range u.Groups {
		if g.Name != "" {
			names = append(names, g.Name)
		}
	}
	return names
}

// NewUserPayload is the body accepted by the user create endpoints.
type NewUserPayload struct {
	Email       string         `json:"email"`
	UserName    string         `json:"userName,omitempty"`
	FirstName   string         `json:"firstName"`
	LastName    string         `json:"lastName"`
	RoleID      string         `json:"roleId"`
	Groups      []string       `json:"groups"`
	Preferences map[string]any `json:"preferences"`
}

// DashboardShare is one grant on a dashboard.
type DashboardShare struct {
	ShareID   string `json:"shareId"`
	Type      string `json:"type"` // "user" or "group"
	Rule      string `json:"rule,omitempty"`
	Subscribe bool   `json:"subscribe"`
}

// ShareOwner is the owner block returned with dashboard shares.
type ShareOwner struct {
	ID       string `json:"_id"`
	UserName string `json:"userName"`
}

// DashboardShares is the share document of a dashboard.
type DashboardShares struct {
	Owner    *ShareOwner      `json:"owner,omitempty"`
	SharesTo []DashboardShare `json:"sharesTo"`
}

// DatamodelShare is one grant on a data model. It is a different shape from
// DashboardShare and the two are never converted into each other.
type DatamodelShare struct {
	PartyID    string `json:"partyId"`
	Type       string `json:"type"`
	Permission string `json:"permission,omitempty"`
}

// DashboardSummary is a dashboard as returned by the search endpoint.
type DashboardSummary struct {
	OID          string           `json:"oid"`
	Title        string           `json:"title"`
	Owner        Ref              `json:"owner"`
	ParentFolder string           `json:"parentFolder,omitempty"`
	Datasource   map[string]any   `json:"datasource,omitempty"`
	Shares       []DashboardShare `json:"shares,omitempty"`
}

// DashboardExport is a full dashboard definition. It is opaque apart from the
// identity fields and is sent back verbatim on import.
type DashboardExport map[string]any

// OID returns the dashboard ID inside the export.
func (d DashboardExport) OID() string {
	s, _ := d["oid"].(string)
	return s
}

// Title returns the dashboard title inside the export.
func (d DashboardExport) Title() string {
	s, _ := d["title"].(string)
	return s
}

// ImportFailure is one failed item of a bulk dashboard import.
type ImportFailure struct {
	OID   string `json:"oid"`
	Title string `json:"title"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// BulkImportResponse is the per-item breakdown of a bulk dashboard import.
// The API spells the success bucket "succeded".
type BulkImportResponse struct {
	Succeeded []DashboardRef             `json:"succeded"`
	Skipped   []DashboardRef             `json:"skipped"`
	Failed    map[string][]ImportFailure `json:"failed"`
}

// Datamodel is a data model listing entry.
type Datamodel struct {
	OID   string `json:"oid"`
	Title string `json:"title"`
	Type  string `json:"type,omitempty"` // "extract" or "live"
}

// DatamodelSchema is an exported data model schema, opaque apart from identity.
type DatamodelSchema map[string]any

// OID returns the data model ID inside the schema.
func (d DatamodelSchema) OID() string {
	s, _ := d["oid"].(string)
	return s
}

// Title returns the data model title inside the schema.
func (d DatamodelSchema) Title() string {
	s, _ := d["title"].(string)
	return s
}

// Type returns "extract" or "live".
func (d DatamodelSchema) Type() string {
	s, _ := d["type"].(string)
	return s
}

// Dataset is one dataset of a data model schema.
type Dataset struct {
	OID  string `json:"oid"`
	Name string `json:"name,omitempty"`
}

// Column is a column of a dataset table.
type Column struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Type any    `json:"type,omitempty"`
}

// Table is one table of a dataset.
type Table struct {
	OID     string   `json:"oid"`
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// SchedulePayload is the body of a build schedule request.
type SchedulePayload struct {
	CronString string   `json:"cronString"`
	BuildType  string   `json:"buildType"`
	DaysOfWeek []string `json:"daysOfWeek"`
	Hour       int      `json:"hour"`
	Minute     int      `json:"minute"`
}
