package models

import (
	"github.com/hashicorp/go-multierror"
)

// Preview actions.
const (
	ActionCreate       = "create"
	ActionSkipExists   = "skip_exists"
	ActionSkipReserved = "skip_reserved"
)

// MigrationResource describes a single object being considered for migration.
type MigrationResource struct {
	SourceID string `json:"source_id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Action   string `json:"action"`
	DestID   string `json:"dest_id,omitempty"`
}

// MigrationPreview holds the result of comparing source entities with the target.
type MigrationPreview struct {
	SourceID  string                         `json:"source_id"`
	TargetID  string                         `json:"target_id"`
	Resources map[string][]MigrationResource `json:"resources"`
	Warnings  []string                       `json:"warnings"`
}

// Counts returns how many entries will be created and how many skipped.
func (p *MigrationPreview) Counts() (create, skip int) {
	for _, items := range p.Resources {
		for _, item := range items {
			if item.Action == ActionCreate {
				create++
			} else {
				skip++
			}
		}
	}
	return create, skip
}

// MigrationResult summarizes one migration call. Results from several batches
// are combined with Merge, which concatenates without de-duplication.
type MigrationResult struct {
	Succeeded         []string `json:"succeeded"`
	Skipped           []string `json:"skipped"`
	Failed            []string `json:"failed"`
	ShareSuccessCount int      `json:"share_success_count"`
	ShareFailCount    int      `json:"share_fail_count"`

	errs *multierror.Error
}

// NewMigrationResult returns an empty result with non-nil lists.
func NewMigrationResult() *MigrationResult {
	return &MigrationResult{Succeeded: []string{}, Skipped: []string{}, Failed: []string{}}
}

// AddError records a non-fatal error encountered while producing the result.
func (r *MigrationResult) AddError(err error) {
	if err != nil {
		r.errs = multierror.Append(r.errs, err)
	}
}

// Errors returns the accumulated non-fatal errors, or nil.
func (r *MigrationResult) Errors() error {
	return r.errs.ErrorOrNil()
}

// Merge appends other into r.
func (r *MigrationResult) Merge(other *MigrationResult) {
	if other == nil {
		return
	}
	r.Succeeded = append(r.Succeeded, other.Succeeded...)
	r.Skipped = append(r.Skipped, other.Skipped...)
	r.Failed = append(r.Failed, other.Failed...)
	r.ShareSuccessCount += other.ShareSuccessCount
	r.ShareFailCount += other.ShareFailCount
	if other.errs != nil {
		r.errs = multierror.Append(r.errs, other.errs.Errors...)
	}
}
