package folders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/sirupsen/logrus"

	"github.com/rflorenc/sisense-workbench/internal/models"
	"github.com/rflorenc/sisense-workbench/internal/platform"
)

// ErrFolderNotFound is returned when the folder is not visible even after
// access to hidden dashboards was granted.
var ErrFolderNotFound = errors.New("folder not found")

var errNotVisible = errors.New("folder not in visible tree")

// Request describes one ownership transfer.
type Request struct {
	RunningUser              string `json:"running_user"` // email of the caller
	FolderName               string `json:"folder_name"`
	NewOwner                 string `json:"new_owner"` // email
	OriginalOwnerRule        string `json:"original_owner_rule"`
	ChangeDashboardOwnership bool   `json:"change_dashboard_ownership"`
}

// Validate checks the request before any call is made. An empty original
// owner rule means edit.
func (r Request) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RunningUser, validation.Required, is.EmailFormat),
		validation.Field(&r.FolderName, validation.Required),
		validation.Field(&r.NewOwner, validation.Required, is.EmailFormat),
		validation.Field(&r.OriginalOwnerRule, validation.In("edit", "view")),
	)
}

// Result counts what an ownership transfer changed.
type Result struct {
	TotalFoldersChanged    int      `json:"total_folders_changed"`
	TotalDashboardsChanged int      `json:"total_dashboards_changed"`
	FoldersSkipped         int      `json:"folders_skipped"`
	DashboardsSkipped      int      `json:"dashboards_skipped"`
	Failed                 []string `json:"failed"`
	AccessGranted          int      `json:"access_granted"`
}

// Owner changes folder and dashboard ownership on one tenant.
type Owner struct {
	tenant *platform.Tenant
	log    logrus.FieldLogger
}

// NewOwner creates an Owner for a tenant.
func NewOwner(tenant *platform.Tenant, log logrus.FieldLogger) *Owner {
	return &Owner{tenant: tenant, log: log}
}

// ChangeOwnership transfers the named folder, its subtree, its parent and
// the parent's subtree to the new owner. Entries already owned by the new
// owner are skipped, so repeating a call changes nothing.
func (o *Owner) ChangeOwnership(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ownership request: %w", err)
	}
	if req.OriginalOwnerRule == "" {
		req.OriginalOwnerRule = "edit"
	}

	caller, err := o.tenant.FindUserByEmail(ctx, req.RunningUser)
	if err != nil {
		return nil, fmt.Errorf("running user: %w", err)
	}
	newOwner, err := o.tenant.FindUserByEmail(ctx, req.NewOwner)
	if err != nil {
		return nil, fmt.Errorf("new owner: %w", err)
	}

	result := &Result{Failed: []string{}}
	col, err := o.locate(ctx, req.FolderName, caller.ID, result)
	if err != nil {
		return result, err
	}
	for _, f := range col.Folders {
		o.log.Infof("Folder found: %s (ID: %s)", f.Name, f.ID)
	}
	for _, d := range col.Dashboards {
		o.log.Infof("Dashboard found: %s (ID: %s)", d.Title, d.ID)
	}

	o.log.Infof("=== Changing folder owners to %s ===", req.NewOwner)
	for _, f := range col.Folders {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		current, err := o.tenant.GetFolder(ctx, f.ID)
		if err != nil {
			o.log.Warnf("  FAIL: %s: %v", f.Name, err)
			result.Failed = append(result.Failed, "folder:"+f.Name)
			continue
		}
		if current.Owner == newOwner.ID {
			o.log.Infof("  SKIP (already owner): %s", f.Name)
			result.FoldersSkipped++
			continue
		}
		if err := o.tenant.SetFolderOwner(ctx, f.ID, newOwner.ID); err != nil {
			o.log.Warnf("  FAIL: %s: %v", f.Name, err)
			result.Failed = append(result.Failed, "folder:"+f.Name)
			continue
		}
		o.log.Infof("  CHANGED: %s", f.Name)
		result.TotalFoldersChanged++
	}

	if req.ChangeDashboardOwnership {
		o.log.Infof("=== Changing dashboard owners to %s ===", req.NewOwner)
		for _, d := range col.Dashboards {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			o.changeDashboard(ctx, d, caller.ID, newOwner.ID, req.OriginalOwnerRule, result)
		}
	}

	o.log.Infof("Ownership changed for %d folders and %d dashboards",
		result.TotalFoldersChanged, result.TotalDashboardsChanged)
	return result, nil
}

func (o *Owner) changeDashboard(ctx context.Context, d models.DashboardKey, callerID, ownerID, rule string, result *Result) {
	current, err := o.tenant.GetDashboard(ctx, d.ID)
	if err != nil {
		o.log.Warnf("  FAIL: %s: %v", d.Title, err)
		result.Failed = append(result.Failed, "dashboard:"+d.Title)
		return
	}
	if current.Owner.ID == ownerID {
		o.log.Infof("  SKIP (already owner): %s", d.Title)
		result.DashboardsSkipped++
		return
	}
	adminAccess := current.Owner.ID != callerID
	out := o.tenant.ChangeDashboardOwner(ctx, d.ID, ownerID, rule, adminAccess)
	if err := out.Err(); err != nil {
		o.log.Warnf("  FAIL: %s: %v", d.Title, err)
		result.Failed = append(result.Failed, "dashboard:"+d.Title)
		return
	}
	o.log.Infof("  CHANGED: %s", d.Title)
	result.TotalDashboardsChanged++
}

// locate walks the visible tree. When the folder is missing, the caller is
// granted edit access to dashboards in folders it cannot see and the walk is
// retried exactly once.
func (o *Owner) locate(ctx context.Context, name, callerID string, result *Result) (*Collection, error) {
	var col *Collection
	walk := func() error {
		forest, err := o.tenant.Navver(ctx)
		if err != nil && !errors.Is(err, platform.ErrNotFound) {
			return backoff.Permanent(err)
		}
		col = LocateAndCollect(forest, name)
		if !col.Found {
			return errNotVisible
		}
		o.log.Infof("Found target folder: %s", name)
		return nil
	}
	grant := func(error, time.Duration) {
		o.log.Warnf("Folder %q not found, granting access to hidden dashboards", name)
		n, err := o.GrantHiddenDashboards(ctx, callerID)
		if err != nil {
			o.log.WithError(err).Warn("granting access failed")
		}
		result.AccessGranted += n
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 1), ctx)
	err := backoff.RetryNotify(walk, policy, grant)
	if errors.Is(err, errNotVisible) {
		o.log.Warnf("Folder %q not found after granting access", name)
		return nil, fmt.Errorf("%q: %w", name, ErrFolderNotFound)
	}
	if err != nil {
		return nil, err
	}
	return col, nil
}

// GrantHiddenDashboards shares every dashboard that lives in a folder the
// user cannot list with the user (edit rule). It returns the number of
// dashboards shared.
func (o *Owner) GrantHiddenDashboards(ctx context.Context, userID string) (int, error) {
	dashboards, err := o.tenant.SearchDashboards(ctx, "")
	if err != nil {
		return 0, err
	}
	visible, err := o.tenant.ListFolders(ctx)
	if err != nil {
		return 0, err
	}

	hidden := HiddenFolderIDs(dashboards, visible)
	o.log.Infof("Folders the user does not have access to: %d", len(hidden))

	granted := 0
	for _, d := range dashboards {
		if !hidden[d.ParentFolder] {
			continue
		}
		shares := make([]models.DashboardShare, 0, len(d.Shares)+1)
		shares = append(shares, d.Shares...)
		shares = append(shares, models.DashboardShare{ShareID: userID, Type: "user", Rule: "edit", Subscribe: false})
		out := o.tenant.SetDashboardShares(ctx, d.OID, shares, true)
		if err := out.Err(); err != nil {
			o.log.Warnf("  FAIL: sharing %s: %v", d.Title, err)
			continue
		}
		o.log.Infof("  SHARED: %s", d.Title)
		granted++
	}
	return granted, nil
}

// HiddenFolderIDs returns the parent folders referenced by dashboards that
// are absent from the visible folder list.
func HiddenFolderIDs(dashboards []models.DashboardSummary, visible []models.Folder) map[string]bool {
	seen := make(map[string]bool, len(visible))
	for _, f := range visible {
		seen[f.OID] = true
	}
	hidden := map[string]bool{}
	for _, d := range dashboards {
		if d.ParentFolder != "" && !seen[d.ParentFolder] {
			hidden[d.ParentFolder] = true
		}
	}
	return hidden
}
