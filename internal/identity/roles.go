package identity

import (
	"fmt"

	"github.com/rflorenc/sisense-workbench/internal/models"
)

// roleAliases maps display names to the names roles are stored under.
var roleAliases = []struct {
	Display string
	Stored  string
}{
	{"viewer", "consumer"},
	{"dashboardDesigner", "contributor"},
	{"designer", "contributor"},
	{"sysAdmin", "super"},
}

// RoleAliases returns the display -> stored alias table.
func RoleAliases() map[string]string {
	out := make(map[string]string, len(roleAliases))
	for _, a := range roleAliases {
		out[a.Display] = a.Stored
	}
	return out
}

// StoredRoleName returns the stored name for a display name. Names without
// an alias are returned unchanged.
func StoredRoleName(display string) string {
	k := FoldKey(display)
	for _, a := range roleAliases {
		if FoldKey(a.Display) == k {
			return a.Stored
		}
	}
	return display
}

// DisplayRoleName returns the display name for a stored name. The first alias
// in the table wins when several display names share a stored name.
func DisplayRoleName(stored string) string {
	k := FoldKey(stored)
	for _, a := range roleAliases {
		if FoldKey(a.Stored) == k {
			return a.Display
		}
	}
	return stored
}

// ResolveRoleID finds the role matching name, either by stored name or by a
// display alias, ignoring case.
func ResolveRoleID(roles []models.Role, name string) (string, error) {
	want := FoldKey(StoredRoleName(name))
	for _, r := range roles {
		if FoldKey(r.Name) == want {
			return r.ID, nil
		}
	}
	for _, r := range roles {
		if r.DisplayName != "" && FoldKey(r.DisplayName) == FoldKey(name) {
			return r.ID, nil
		}
	}
	return "", fmt.Errorf("role %q: %w", name, ErrUnresolved)
}
