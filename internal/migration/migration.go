// Package migration copies groups, users, dashboards and data models from a
// source tenant to a target tenant.
package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rflorenc/sisense-workbench/internal/models"
	"github.com/rflorenc/sisense-workbench/internal/platform"
)

// Defaults for batched runs.
const (
	DefaultBatchSize      = 10
	DefaultDashboardSleep = 10 * time.Second
	DefaultDatamodelSleep = 5 * time.Second
)

// ErrInvalidOptions is returned for option combinations that cannot run.
var ErrInvalidOptions = errors.New("invalid migration options")

// Migrator drives migrations from Source to Target. Calls are sequential; a
// Migrator must not be shared between goroutines.
type Migrator struct {
	Source *platform.Tenant
	Target *platform.Tenant
	Log    logrus.FieldLogger

	BatchSize      int
	DashboardSleep time.Duration
	DatamodelSleep time.Duration

	// Exclude lists names (group names, user emails, dashboard and data
	// model titles) per kind that the "all" variants leave out.
	Exclude map[string][]string

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Migrator with default batching.
func New(source, target *platform.Tenant, log logrus.FieldLogger) *Migrator {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Migrator{
		Source:         source,
		Target:         target,
		Log:            log,
		BatchSize:      DefaultBatchSize,
		DashboardSleep: DefaultDashboardSleep,
		DatamodelSleep: DefaultDatamodelSleep,
		Exclude:        DefaultExclusions(),
		sleep:          sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Plan selects what Run migrates. For AllDashboards and AllDatamodels the
// option structs supply the flags and their IDs and Names are ignored.
type Plan struct {
	Groups        []string          `json:"groups,omitempty"`
	AllGroups     bool              `json:"all_groups"`
	Users         []string          `json:"users,omitempty"`
	AllUsers      bool              `json:"all_users"`
	Dashboards    *DashboardOptions `json:"dashboards,omitempty"`
	AllDashboards bool              `json:"all_dashboards"`
	Datamodels    *DatamodelOptions `json:"datamodels,omitempty"`
	AllDatamodels bool              `json:"all_datamodels"`
}

// Report is the outcome of Run, one result per kind that ran.
type Report struct {
	Groups     *models.MigrationResult `json:"groups,omitempty"`
	Users      *models.MigrationResult `json:"users,omitempty"`
	Dashboards *models.MigrationResult `json:"dashboards,omitempty"`
	Datamodels *models.MigrationResult `json:"datamodels,omitempty"`
	Total      *models.MigrationResult `json:"total"`
}

// Validate checks the plan before any request is made.
func (p Plan) Validate() error {
	if p.Dashboards != nil {
		if err := p.Dashboards.validate(p.AllDashboards); err != nil {
			return err
		}
	} else if p.AllDashboards {
		return fmt.Errorf("%w: all dashboards requested without options", ErrInvalidOptions)
	}
	if p.Datamodels != nil {
		if err := p.Datamodels.validate(p.AllDatamodels); err != nil {
			return err
		}
	}
	return nil
}

// Run migrates in dependency order: groups, users, dashboards (with their
// shares), data models (with their shares). A step only runs when the plan
// asks for it. Each step finishes before the next one starts.
func (m *Migrator) Run(ctx context.Context, plan Plan) (*Report, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	rep := &Report{Total: models.NewMigrationResult()}

	step := func(name string, enabled bool, fn func() (*models.MigrationResult, error)) (*models.MigrationResult, error) {
		if !enabled {
			return nil, nil
		}
		if err := ctx.Err(); err != nil {
			m.Log.Warn("Migration cancelled")
			return nil, err
		}
		res, err := fn()
		if err != nil {
			return res, fmt.Errorf("%s: %w", name, err)
		}
		rep.Total.Merge(res)
		return res, nil
	}

	var err error
	rep.Groups, err = step("groups", plan.AllGroups || len(plan.Groups) > 0, func() (*models.MigrationResult, error) {
		if plan.AllGroups {
			return m.MigrateAllGroups(ctx)
		}
		return m.MigrateGroups(ctx, plan.Groups)
	})
	if err != nil {
		return rep, err
	}
	rep.Users, err = step("users", plan.AllUsers || len(plan.Users) > 0, func() (*models.MigrationResult, error) {
		if plan.AllUsers {
			return m.MigrateAllUsers(ctx)
		}
		return m.MigrateUsers(ctx, plan.Users)
	})
	if err != nil {
		return rep, err
	}
	rep.Dashboards, err = step("dashboards", plan.Dashboards != nil, func() (*models.MigrationResult, error) {
		if plan.AllDashboards {
			return m.MigrateAllDashboards(ctx, *plan.Dashboards)
		}
		return m.MigrateDashboards(ctx, *plan.Dashboards)
	})
	if err != nil {
		return rep, err
	}
	rep.Datamodels, err = step("datamodels", plan.Datamodels != nil || plan.AllDatamodels, func() (*models.MigrationResult, error) {
		var opts DatamodelOptions
		if plan.Datamodels != nil {
			opts = *plan.Datamodels
		}
		if plan.AllDatamodels {
			return m.MigrateAllDatamodels(ctx, opts)
		}
		return m.MigrateDatamodels(ctx, opts)
	})
	if err != nil {
		return rep, err
	}

	m.Log.Infof("Migration complete: %d succeeded, %d skipped, %d failed",
		len(rep.Total.Succeeded), len(rep.Total.Skipped), len(rep.Total.Failed))
	return rep, nil
}

// logSummary prints the closing lines of one migration call.
// warnMissing logs every requested name that matched nothing on the source.
func (m *Migrator) warnMissing(requested []string, found map[string]bool) {
	for _, n := range requested {
		if !found[n] {
			m.Log.Warnf("  NOT FOUND: %s", n)
		}
	}
}

func (m *Migrator) logSummary(kind string, r *models.MigrationResult) {
	m.Log.Infof("Finished migrating %s: %d succeeded, %d skipped, %d failed",
		kind, len(r.Succeeded), len(r.Skipped), len(r.Failed))
	if err := r.Errors(); err != nil {
		m.Log.WithError(err).Warnf("%s migration finished with errors", kind)
	}
}
