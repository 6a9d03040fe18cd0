package migration

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rflorenc/sisense-workbench/internal/models"
)

// Import conflict modes. An empty action behaves like ActionSkip.
const (
	ActionSkip      = "skip"
	ActionOverwrite = "overwrite"
	ActionDuplicate = "duplicate"
)

// DashboardOptions selects dashboards and controls how they are imported.
type DashboardOptions struct {
	IDs             []string `json:"ids,omitempty"`
	Names           []string `json:"names,omitempty"`
	Action          string   `json:"action,omitempty"`
	Republish       bool     `json:"republish"`
	MigrateShares   bool     `json:"migrate_shares"`
	ChangeOwnership bool     `json:"change_ownership"`
}

func (o DashboardOptions) validate(all bool) error {
	switch o.Action {
	case "", ActionSkip, ActionOverwrite, ActionDuplicate:
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidOptions, o.Action)
	}
	if o.ChangeOwnership && !o.MigrateShares {
		return fmt.Errorf("%w: change_ownership requires migrate_shares", ErrInvalidOptions)
	}
	if all {
		return nil
	}
	if len(o.IDs) > 0 && len(o.Names) > 0 {
		return fmt.Errorf("%w: give either dashboard IDs or names, not both", ErrInvalidOptions)
	}
	if len(o.IDs) == 0 && len(o.Names) == 0 {
		return fmt.Errorf("%w: dashboard IDs or names are required", ErrInvalidOptions)
	}
	return nil
}

// sharesFollow reports whether shares are migrated after the import.
// Overwritten and duplicated dashboards keep whatever the target gives them.
func (o DashboardOptions) sharesFollow() bool {
	return o.MigrateShares && (o.Action == "" || o.Action == ActionSkip)
}

// MigrateDashboards exports the selected dashboards and imports them into
// the target with one bulk call. When requested, shares (and ownership) of
// freshly imported dashboards are migrated afterwards.
func (m *Migrator) MigrateDashboards(ctx context.Context, opts DashboardOptions) (*models.MigrationResult, error) {
	if err := opts.validate(false); err != nil {
		return nil, err
	}
	m.Log.Info("=== Migrating dashboards ===")

	result := models.NewMigrationResult()
	exports, err := m.exportDashboards(ctx, opts, result)
	if err != nil {
		return result, err
	}
	if len(exports) == 0 {
		m.Log.Info("No dashboards exported, nothing to import")
		return result, nil
	}

	imported := m.importDashboards(ctx, exports, opts, result)

	switch {
	case !opts.MigrateShares:
		m.Log.Info("Share migration not requested")
	case !opts.sharesFollow():
		m.Log.Infof("Action %q selected, shares and ownership are not migrated", opts.Action)
	default:
		src, dst := correlate(exports, imported, m.Log)
		if len(src) == 0 {
			m.Log.Info("No freshly imported dashboards to migrate shares for")
			break
		}
		shares, err := m.MigrateDashboardShares(ctx, src, dst, opts.ChangeOwnership)
		if err != nil {
			result.AddError(fmt.Errorf("dashboard shares: %w", err))
			break
		}
		result.ShareSuccessCount += shares.ShareSuccessCount
		result.ShareFailCount += shares.ShareFailCount
		result.AddError(shares.Errors())
	}

	m.logSummary("dashboards", result)
	return result, nil
}

// exportDashboards fetches the full definition of each selected dashboard.
// Dashboards that cannot be exported are recorded as failed.
func (m *Migrator) exportDashboards(ctx context.Context, opts DashboardOptions, result *models.MigrationResult) ([]models.DashboardExport, error) {
	type pick struct{ id, label string }
	var picks []pick

	if len(opts.IDs) > 0 {
		for _, id := range opts.IDs {
			picks = append(picks, pick{id, id})
		}
	} else {
		all, err := m.Source.SearchDashboards(ctx, "")
		if err != nil {
			return nil, err
		}
		want := make(map[string]bool, len(opts.Names))
		for _, n := range opts.Names {
			want[n] = true
		}
		seen := map[string]bool{}
		found := map[string]bool{}
		perTitle := map[string]int{}
		for _, d := range all {
			if seen[d.OID] || !want[d.Title] {
				continue
			}
			seen[d.OID] = true
			found[d.Title] = true
			perTitle[d.Title]++
			picks = append(picks, pick{d.OID, d.Title})
		}
		for title, n := range perTitle {
			if n > 1 {
				m.Log.Warnf("Title %q matches %d source dashboards, all are exported; select by ID to be exact", title, n)
			}
		}
		m.warnMissing(opts.Names, found)
	}

	exports := make([]models.DashboardExport, 0, len(picks))
	for _, p := range picks {
		if err := ctx.Err(); err != nil {
			return exports, err
		}
		d, err := m.Source.ExportDashboard(ctx, p.id)
		if err != nil {
			m.Log.Warnf("  FAIL: %s: %v", p.label, err)
			result.Failed = append(result.Failed, p.label)
			result.AddError(err)
			continue
		}
		exports = append(exports, d)
	}
	m.Log.Infof("Exported %d dashboards from %s", len(exports), m.Source.Name)
	return exports, nil
}

// importDashboards submits the bulk import and records its three buckets.
// It returns the dashboards the target reports as newly imported.
func (m *Migrator) importDashboards(ctx context.Context, exports []models.DashboardExport, opts DashboardOptions, result *models.MigrationResult) []models.DashboardRef {
	m.Log.Infof("Sending bulk import for %d dashboards", len(exports))
	resp, out := m.Target.ImportDashboards(ctx, exports, opts.Action, opts.Republish)
	if !out.OK() {
		err := out.Err()
		for _, d := range exports {
			m.Log.Warnf("  FAIL: %s: %v", d.Title(), err)
			result.Failed = append(result.Failed, d.Title())
		}
		result.AddError(err)
		return nil
	}

	for _, d := range resp.Succeeded {
		m.Log.Infof("  CREATED: %s", d.Title)
		result.Succeeded = append(result.Succeeded, d.Title)
	}
	for _, d := range resp.Skipped {
		m.Log.Infof("  SKIP (exists): %s", d.Title)
		result.Skipped = append(result.Skipped, d.Title)
	}
	for category, items := range resp.Failed {
		for _, f := range items {
			m.Log.Warnf("  FAIL: %s: %s (%s)", f.Title, f.Error.Message, category)
			result.Failed = append(result.Failed, f.Title)
		}
	}
	return resp.Succeeded
}

// correlate pairs each exported source dashboard with its imported copy.
// A copy that kept the source ID is matched by ID. Otherwise the copy is
// matched by title, and only when the title is unique among both the exports
// and the imported copies; ambiguous titles are logged and left unpaired.
func correlate(exports []models.DashboardExport, imported []models.DashboardRef, log logrus.FieldLogger) (sourceIDs, targetIDs []string) {
	byID := make(map[string]bool, len(imported))
	byTitle := map[string][]string{}
	for _, d := range imported {
		byID[d.OID] = true
		byTitle[d.Title] = append(byTitle[d.Title], d.OID)
	}
	exportTitles := map[string]int{}
	for _, d := range exports {
		exportTitles[d.Title()]++
	}

	used := map[string]bool{}
	for _, d := range exports {
		if byID[d.OID()] && !used[d.OID()] {
			used[d.OID()] = true
			sourceIDs = append(sourceIDs, d.OID())
			targetIDs = append(targetIDs, d.OID())
		}
	}
	for _, d := range exports {
		if used[d.OID()] {
			continue
		}
		candidates := byTitle[d.Title()]
		if len(candidates) == 0 {
			log.Debugf("Dashboard %q was not newly imported", d.Title())
			continue
		}
		if len(candidates) > 1 || exportTitles[d.Title()] > 1 {
			log.Warnf("Title %q is not unique, shares for it are not migrated", d.Title())
			continue
		}
		target := candidates[0]
		if used[target] {
			continue
		}
		used[target] = true
		log.Warnf("Title %q has mismatched IDs: source %s, target %s", d.Title(), d.OID(), target)
		sourceIDs = append(sourceIDs, d.OID())
		targetIDs = append(targetIDs, target)
	}
	return sourceIDs, targetIDs
}

// MigrateAllDashboards migrates every source dashboard in batches of
// BatchSize, pausing DashboardSleep between batches. IDs and Names of opts
// are ignored.
func (m *Migrator) MigrateAllDashboards(ctx context.Context, opts DashboardOptions) (*models.MigrationResult, error) {
	if err := opts.validate(true); err != nil {
		return nil, err
	}
	m.Log.Info("=== Migrating all dashboards ===")
	all, err := m.Source.SearchDashboards(ctx, "")
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var ids []string
	for _, d := range all {
		if seen[d.OID] {
			continue
		}
		seen[d.OID] = true
		if isExcluded(m.Exclude, "dashboards", d.Title) {
			m.Log.Infof("  EXCLUDED: %s (user exclusion)", d.Title)
			continue
		}
		ids = append(ids, d.OID)
	}
	m.Log.Infof("Total unique dashboards retrieved: %d", len(ids))

	result, err := m.inBatches(ctx, "dashboards", ids, m.DashboardSleep, func(ctx context.Context, batch []string) (*models.MigrationResult, error) {
		o := opts
		o.IDs, o.Names = batch, nil
		return m.MigrateDashboards(ctx, o)
	})
	m.logSummary("dashboards", result)
	return result, err
}
