package migration

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rflorenc/sisense-workbench/internal/models"
)

// dependencyFlags maps dependency categories to the export flags they
// enable, in the order the flags are sent.
var dependencyFlags = []struct {
	Category string
	Flags    []string
}{
	{"dataSecurity", []string{"dataContext", "scopeConfiguration"}},
	{"formulas", []string{"formulaManagement"}},
	{"hierarchies", []string{"drillHierarchies"}},
	{"perspectives", []string{"perspectives"}},
}

// ResolveDependencies turns dependency categories into export flags. No
// categories, or "all", selects every category.
func ResolveDependencies(categories []string) ([]string, error) {
	want := map[string]bool{}
	for _, c := range categories {
		if c == "all" {
			want = map[string]bool{}
			break
		}
		known := false
		for _, d := range dependencyFlags {
			if d.Category == c {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("%w: unknown dependency %q", ErrInvalidOptions, c)
		}
		want[c] = true
	}

	var flags []string
	for _, d := range dependencyFlags {
		if len(want) == 0 || want[d.Category] {
			flags = append(flags, d.Flags...)
		}
	}
	return flags, nil
}

// DatamodelOptions selects data models and what travels with them.
type DatamodelOptions struct {
	IDs          []string `json:"ids,omitempty"`
	Names        []string `json:"names,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Shares       bool     `json:"shares"`
}

func (o DatamodelOptions) validate(all bool) error {
	if _, err := ResolveDependencies(o.Dependencies); err != nil {
		return err
	}
	if all {
		return nil
	}
	if len(o.IDs) > 0 && len(o.Names) > 0 {
		return fmt.Errorf("%w: give either data model IDs or names, not both", ErrInvalidOptions)
	}
	if len(o.IDs) == 0 && len(o.Names) == 0 {
		return fmt.Errorf("%w: data model IDs or names are required", ErrInvalidOptions)
	}
	return nil
}

// migratedModel pairs an imported schema with the model the target created.
type migratedModel struct {
	source models.Datamodel
	target models.Datamodel
}

// MigrateDatamodels exports each selected data model with the requested
// dependencies and imports it into the target, one at a time. With Shares,
// permissions of the imported models are migrated afterwards.
func (m *Migrator) MigrateDatamodels(ctx context.Context, opts DatamodelOptions) (*models.MigrationResult, error) {
	if err := opts.validate(false); err != nil {
		return nil, err
	}
	flags, _ := ResolveDependencies(opts.Dependencies)
	m.Log.Info("=== Migrating data models ===")

	result := models.NewMigrationResult()
	ids, err := m.selectDatamodels(ctx, opts)
	if err != nil {
		return nil, err
	}

	var migrated []migratedModel
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		schema, err := m.Source.ExportDatamodel(ctx, id, flags)
		if err != nil {
			m.Log.Warnf("  FAIL: %s: %v", id, err)
			result.Failed = append(result.Failed, id)
			result.AddError(err)
			continue
		}
		if mm, ok := m.importDatamodel(ctx, schema, result); ok {
			migrated = append(migrated, mm)
		}
	}

	if !opts.Shares {
		m.Log.Info("Share migration not requested")
	} else if len(migrated) > 0 {
		if err := m.migrateDatamodelShares(ctx, migrated, result); err != nil {
			result.AddError(err)
		}
	}

	m.logSummary("data models", result)
	return result, nil
}

func (m *Migrator) selectDatamodels(ctx context.Context, opts DatamodelOptions) ([]string, error) {
	if len(opts.IDs) > 0 {
		return opts.IDs, nil
	}
	all, err := m.Source.ListDatamodels(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(opts.Names))
	for _, n := range opts.Names {
		want[n] = true
	}
	var ids []string
	found := map[string]bool{}
	for _, dm := range all {
		if want[dm.Title] {
			found[dm.Title] = true
			ids = append(ids, dm.OID)
		}
	}
	m.warnMissing(opts.Names, found)
	if len(ids) == 0 {
		m.Log.Info("No matching data models found for migration")
	}
	return ids, nil
}

func (m *Migrator) importDatamodel(ctx context.Context, schema models.DatamodelSchema, result *models.MigrationResult) (migratedModel, bool) {
	title := schema.Title()
	created, out := m.Target.ImportDatamodel(ctx, schema)
	switch {
	case out.OK():
		m.Log.Infof("  CREATED: %s", title)
		result.Succeeded = append(result.Succeeded, title)
		src := models.Datamodel{OID: schema.OID(), Title: title, Type: schema.Type()}
		dst := src
		if created.OID != "" {
			dst.OID = created.OID
		} else {
			m.Log.Warnf("  Import of %s returned no data model ID, using the source ID", title)
		}
		return migratedModel{source: src, target: dst}, true
	case alreadyExists(out):
		m.Log.Infof("  SKIP (exists): %s", title)
		result.Skipped = append(result.Skipped, title)
	default:
		m.Log.Warnf("  FAIL: %s: %s", title, failureDetail(out.Body))
		result.Failed = append(result.Failed, title)
		result.AddError(out.Err())
	}
	return migratedModel{}, false
}

// migrateDatamodelShares copies permissions of each migrated model. Live
// models are published on the target first, since permissions can only be
// set on a built live model.
func (m *Migrator) migrateDatamodelShares(ctx context.Context, migrated []migratedModel, result *models.MigrationResult) error {
	m.Log.Info("=== Migrating data model shares ===")
	maps, err := m.buildIdentityMaps(ctx)
	if err != nil {
		return err
	}

	for _, mm := range migrated {
		if err := ctx.Err(); err != nil {
			return err
		}
		log := m.Log.WithField("datamodel", mm.source.Title)
		if mm.source.Type != "extract" && mm.source.Type != "live" {
			log.Warnf("Unknown data model type %q, shares skipped", mm.source.Type)
			continue
		}
		shares, err := m.Source.DatamodelShares(ctx, mm.source)
		if err != nil {
			log.Warnf("  FAIL: reading shares: %v", err)
			result.ShareFailCount++
			result.AddError(err)
			continue
		}
		remapped := RemapDatamodelShares(shares, maps.users, maps.groups, log)
		if len(remapped) == 0 {
			log.Warn("No valid shares found")
			continue
		}
		if err := m.pushDatamodelShares(ctx, mm.target, remapped, log); err != nil {
			log.Warnf("  FAIL: %v", err)
			result.ShareFailCount++
			result.AddError(err)
			continue
		}
		log.Infof("  SHARED: %d permissions", len(remapped))
		result.ShareSuccessCount++
	}
	m.Log.Infof("Data model shares finished: %d succeeded, %d failed", result.ShareSuccessCount, result.ShareFailCount)
	return nil
}

func (m *Migrator) pushDatamodelShares(ctx context.Context, dm models.Datamodel, shares []models.DatamodelShare, log logrus.FieldLogger) error {
	if dm.Type == "live" {
		log.Info("Publishing live model before updating shares")
		if err := m.Target.PublishDatamodel(ctx, dm.OID).Err(); err != nil {
			return fmt.Errorf("publishing %s: %w", dm.Title, err)
		}
	}
	if err := m.Target.SetDatamodelShares(ctx, dm, shares).Err(); err != nil {
		return fmt.Errorf("writing shares of %s: %w", dm.Title, err)
	}
	return nil
}

// MigrateAllDatamodels migrates every source data model in batches of
// BatchSize, pausing DatamodelSleep between batches. IDs and Names of opts
// are ignored.
func (m *Migrator) MigrateAllDatamodels(ctx context.Context, opts DatamodelOptions) (*models.MigrationResult, error) {
	if err := opts.validate(true); err != nil {
		return nil, err
	}
	m.Log.Info("=== Migrating all data models ===")
	all, err := m.Source.ListDatamodels(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, dm := range all {
		if isExcluded(m.Exclude, "datamodels", dm.Title) {
			m.Log.Infof("  EXCLUDED: %s (user exclusion)", dm.Title)
			continue
		}
		ids = append(ids, dm.OID)
	}
	m.Log.Infof("Retrieved %d data models from %s", len(ids), m.Source.Name)

	result, err := m.inBatches(ctx, "datamodels", ids, m.DatamodelSleep, func(ctx context.Context, batch []string) (*models.MigrationResult, error) {
		o := opts
		o.IDs, o.Names = batch, nil
		return m.MigrateDatamodels(ctx, o)
	})
	m.logSummary("data models", result)
	return result, err
}
