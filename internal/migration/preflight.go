package migration

import (
	"context"
	"fmt"

	"github.com/rflorenc/sisense-workbench/internal/identity"
	"github.com/rflorenc/sisense-workbench/internal/models"
	"github.com/rflorenc/sisense-workbench/internal/platform"
)

// Entity kinds in the order they appear in the preview.
var previewOrder = []string{"groups", "users", "dashboards", "datamodels"}

// previewItem is one source entity reduced to what the preview compares.
type previewItem struct {
	id   string
	name string
}

// Preview compares every source group, user, dashboard and data model with
// the target and classifies it as create, skip_exists or skip_reserved.
// Nothing is written.
func (m *Migrator) Preview(ctx context.Context) (*models.MigrationPreview, error) {
	m.Log.Info("Checking source connectivity...")
	if err := m.Source.Ping(ctx); err != nil {
		return nil, fmt.Errorf("source connection failed: %w", err)
	}
	m.Log.Infof("Source OK: %s", m.Source.Name)
	m.Log.Info("Checking target connectivity...")
	if err := m.Target.Ping(ctx); err != nil {
		return nil, fmt.Errorf("target connection failed: %w", err)
	}
	m.Log.Infof("Target OK: %s", m.Target.Name)

	preview := &models.MigrationPreview{
		SourceID:  m.Source.Name,
		TargetID:  m.Target.Name,
		Resources: make(map[string][]models.MigrationResource),
	}

	m.Log.Info("=== Checking target ===")
	for _, kind := range previewOrder {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		source, err := listPreviewItems(ctx, m.Source, kind)
		if err != nil {
			return nil, fmt.Errorf("listing source %s: %w", kind, err)
		}
		target, err := listPreviewItems(ctx, m.Target, kind)
		if err != nil {
			return nil, fmt.Errorf("listing target %s: %w", kind, err)
		}
		fold := kind == "groups"
		existing := map[string]string{}
		for _, t := range target {
			k := t.name
			if fold {
				k = identity.FoldKey(k)
			}
			if _, ok := existing[k]; !ok {
				existing[k] = t.id
			}
		}

		m.Log.Infof("Checking %s on target...", kind)
		for _, s := range source {
			mr := models.MigrationResource{SourceID: s.id, Name: s.name, Type: kind, Action: models.ActionCreate}
			k := s.name
			if fold {
				k = identity.FoldKey(k)
			}
			switch {
			case kind == "groups" && (s.name == adminsGroup || identity.IsReservedGroup(s.name)):
				mr.Action = models.ActionSkipReserved
			case existing[k] != "":
				mr.Action = models.ActionSkipExists
				mr.DestID = existing[k]
				m.Log.Infof("  %s: exists (target ID %s)", s.name, mr.DestID)
			}
			preview.Resources[kind] = append(preview.Resources[kind], mr)
		}
	}

	if len(preview.Resources["users"]) > 0 {
		preview.Warnings = append(preview.Warnings,
			"User passwords cannot be exported. Migrated users must set a password on first login.")
	}
	if len(preview.Resources["dashboards"]) > 0 {
		preview.Warnings = append(preview.Warnings,
			"Dashboards are correlated by title after import; shares of dashboards with duplicate titles are not migrated.")
	}

	create, skip := preview.Counts()
	m.Log.Infof("Preview complete: %d to create, %d to skip", create, skip)
	return preview, nil
}

// listPreviewItems lists kind on t as (id, natural key) pairs.
func listPreviewItems(ctx context.Context, t *platform.Tenant, kind string) ([]previewItem, error) {
	var items []previewItem
	switch kind {
	case "groups":
		groups, err := t.ListGroups(ctx)
		if err != nil {
			return nil, err
		}
		for _, g := range groups {
			items = append(items, previewItem{g.ID, g.Name})
		}
	case "users":
		users, err := t.ListUsers(ctx, false)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			items = append(items, previewItem{u.ID, u.Email})
		}
	case "dashboards":
		dashboards, err := t.SearchDashboards(ctx, "")
		if err != nil {
			return nil, err
		}
		for _, d := range dashboards {
			items = append(items, previewItem{d.OID, d.Title})
		}
	case "datamodels":
		dms, err := t.ListDatamodels(ctx)
		if err != nil {
			return nil, err
		}
		for _, dm := range dms {
			items = append(items, previewItem{dm.OID, dm.Title})
		}
	}
	return items, nil
}
