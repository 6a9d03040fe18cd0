package models

// Resource is a loosely typed API record used for browsing.
type Resource map[string]interface{}

// ResourceType describes a browsable entity kind on a tenant.
type ResourceType struct {
	Name    string          `json:"name"`     // "users", "groups", "dashboards", ...
	Label   string          `json:"label"`    // Human-readable: "Data Models"
	APIPath string          `json:"api_path"` // "/api/v1/groups"
	Skip    map[string]bool `json:"-"`        // Reserved names never migrated
	Paged   bool            `json:"-"`        // Listing takes limit/skip
}
