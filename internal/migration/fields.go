package migration

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/spf13/cast"

	"github.com/rflorenc/sisense-workbench/internal/models"
	"github.com/rflorenc/sisense-workbench/internal/platform"
)

// Group fields that only make sense on the tenant that created the group.
var groupLocalFields = []string{"created", "lastUpdated", "tenantId", "_id"}

// adminsGroup is created by every tenant and never migrated in bulk.
const adminsGroup = "Admins"

// Default names the "all" variants leave out, per kind.
var skipNames = map[string][]string{
	"groups": append([]string{adminsGroup}, platform.ReservedGroups...),
}

// DefaultExclusions returns the names skipped by default, per kind.
func DefaultExclusions() map[string][]string {
	result := make(map[string][]string, len(skipNames))
	for kind, names := range skipNames {
		result[kind] = append([]string(nil), names...)
	}
	return result
}

// isExcluded checks whether a name of the given kind is excluded.
func isExcluded(exclude map[string][]string, kind, name string) bool {
	for _, n := range exclude[kind] {
		if n == name {
			return true
		}
	}
	return false
}

// groupPayload returns the group record without tenant-local fields.
func groupPayload(g models.Group) map[string]any {
	out := make(map[string]any, len(g.Fields))
	for k, v := range g.Fields {
		out[k] = v
	}
	if len(out) == 0 {
		out["name"] = g.Name
	}
	for _, k := range groupLocalFields {
		delete(out, k)
	}
	return out
}

// stringField extracts a string field, returning "" if missing or not scalar.
func stringField(obj map[string]any, field string) string {
	return cast.ToString(obj[field])
}

// mapField extracts a nested object, returning nil if missing.
func mapField(obj map[string]any, field string) map[string]any {
	m, err := cast.ToStringMapE(obj[field])
	if err != nil {
		return nil
	}
	return m
}

// bulkNames parses the body of a bulk create call and returns field of each
// created record. ok is false when the body is not a JSON list.
func bulkNames(body []byte, field, fallback string) (names []string, ok bool) {
	var items []map[string]any
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, false
	}
	for _, item := range items {
		name := stringField(item, field)
		if name == "" {
			name = fallback
		}
		names = append(names, name)
	}
	return names, true
}

// failureDetail extracts the human-readable reason from an error body. The
// API uses "detail", "message" or a nested "error.message" depending on the
// endpoint.
func failureDetail(body []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return string(body)
	}
	if s := stringField(obj, "detail"); s != "" {
		return s
	}
	if s := stringField(obj, "message"); s != "" {
		return s
	}
	if e := mapField(obj, "error"); e != nil {
		return stringField(e, "message")
	}
	return ""
}

// alreadyExists reports whether a rejected create call failed only because
// the entity is already present on the target.
func alreadyExists(out platform.Outcome) bool {
	if out.Is(http.StatusConflict) {
		return true
	}
	if out.Kind != platform.Failure || out.Status < 400 || out.Status >= 500 {
		return false
	}
	return strings.Contains(strings.ToLower(failureDetail(out.Body)), "already exist")
}
