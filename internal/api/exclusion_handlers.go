package api

import (
	"net/http"

	"github.com/rflorenc/sisense-workbench/internal/identity"
	"github.com/rflorenc/sisense-workbench/internal/migration"
	"github.com/rflorenc/sisense-workbench/internal/platform"
)

// GetExclusions returns the names the "all" migrations leave out, the
// reserved groups and the role alias table.
func (s *Server) GetExclusions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"migration":       migration.DefaultExclusions(),
		"reserved_groups": platform.ReservedGroups,
		"role_aliases":    identity.RoleAliases(),
	})
}
