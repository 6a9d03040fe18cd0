package migration

import (
	"context"

	"github.com/rflorenc/sisense-workbench/internal/identity"
	"github.com/rflorenc/sisense-workbench/internal/models"
)

// MigrateGroups copies the named groups to the target in one bulk call.
func (m *Migrator) MigrateGroups(ctx context.Context, names []string) (*models.MigrationResult, error) {
	m.Log.Info("=== Migrating groups ===")
	groups, err := m.Source.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	result := models.NewMigrationResult()
	var selected []models.Group
	found := map[string]bool{}
	for _, g := range groups {
		if !want[g.Name] {
			continue
		}
		found[g.Name] = true
		if identity.IsReservedGroup(g.Name) {
			m.Log.Infof("  SKIP (reserved): %s", g.Name)
			result.Skipped = append(result.Skipped, g.Name)
			continue
		}
		selected = append(selected, g)
	}
	m.warnMissing(names, found)
	if len(selected) == 0 && len(result.Skipped) == 0 {
		m.Log.Info("No matching groups found for migration")
		return result, nil
	}
	result.Merge(m.bulkGroups(ctx, selected))
	m.logSummary("groups", result)
	return result, nil
}

// MigrateAllGroups copies every group except Admins, the reserved groups and
// configured exclusions.
func (m *Migrator) MigrateAllGroups(ctx context.Context) (*models.MigrationResult, error) {
	m.Log.Info("=== Migrating all groups ===")
	groups, err := m.Source.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	m.Log.Infof("Retrieved %d groups from %s", len(groups), m.Source.Name)

	var selected []models.Group
	for _, g := range groups {
		switch {
		case g.Name == adminsGroup || identity.IsReservedGroup(g.Name):
			continue
		case isExcluded(m.Exclude, "groups", g.Name):
			m.Log.Infof("  EXCLUDED: %s (user exclusion)", g.Name)
			continue
		}
		selected = append(selected, g)
	}
	result := m.bulkGroups(ctx, selected)
	m.logSummary("groups", result)
	return result, nil
}

// bulkGroups creates groups missing on the target in a single bulk call.
// Groups already on the target are reported as skipped.
func (m *Migrator) bulkGroups(ctx context.Context, groups []models.Group) *models.MigrationResult {
	result := models.NewMigrationResult()
	if len(groups) == 0 {
		m.Log.Info("No eligible groups found for migration")
		return result
	}

	existing, err := m.Target.ListGroups(ctx)
	if err != nil {
		m.Log.WithError(err).Warn("could not list target groups, relying on the bulk response")
	}
	onTarget := identity.NewGroupIndex(existing)

	var names []string
	var payload []map[string]any
	for _, g := range groups {
		if _, ok := onTarget.Lookup(g.Name); ok {
			m.Log.Infof("  SKIP (exists): %s", g.Name)
			result.Skipped = append(result.Skipped, g.Name)
			continue
		}
		names = append(names, g.Name)
		payload = append(payload, groupPayload(g))
	}
	if len(payload) == 0 {
		return result
	}

	m.Log.Infof("Sending bulk request for %d groups", len(payload))
	out := m.Target.BulkCreateGroups(ctx, payload)
	switch {
	case out.OK():
		created, ok := bulkNames(out.Body, "name", "Unknown Group")
		if !ok {
			m.Log.Warn("bulk response is not a JSON list, assuming every group was created")
			created = names
		}
		for _, n := range created {
			m.Log.Infof("  CREATED: %s", n)
		}
		result.Succeeded = append(result.Succeeded, created...)
	case alreadyExists(out):
		for _, n := range names {
			m.Log.Infof("  SKIP (exists): %s", n)
		}
		result.Skipped = append(result.Skipped, names...)
	default:
		err := out.Err()
		for _, n := range names {
			m.Log.Warnf("  FAIL: %s: %v", n, err)
		}
		result.Failed = append(result.Failed, names...)
		result.AddError(err)
	}
	return result
}
