package migration

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/rflorenc/sisense-workbench/internal/identity"
	"github.com/rflorenc/sisense-workbench/internal/models"
	"github.com/rflorenc/sisense-workbench/internal/platform"
)

// Default rules applied when a source share carries none.
const (
	defaultUserRule       = "edit"
	defaultGroupRule      = "view"
	defaultDatamodelGrant = "a"
)

// RemapDashboardShares rewrites shares from source to target identities.
// Entries whose user or group has no target counterpart are dropped.
func RemapDashboardShares(shares []models.DashboardShare, users, groups *identity.Map, log logrus.FieldLogger) []models.DashboardShare {
	out := []models.DashboardShare{}
	for _, s := range shares {
		id, ok := resolveParty(s.Type, s.ShareID, users, groups)
		if !ok {
			if log != nil {
				log.WithFields(logrus.Fields{"type": s.Type, "id": s.ShareID}).Warn("dropping share with no target identity")
			}
			continue
		}
		rule := s.Rule
		if rule == "" {
			rule = defaultUserRule
			if s.Type == "group" {
				rule = defaultGroupRule
			}
		}
		out = append(out, models.DashboardShare{ShareID: id, Type: s.Type, Rule: rule, Subscribe: s.Subscribe})
	}
	return out
}

// RemapDatamodelShares rewrites data model permissions from source to target
// identities. Entries with no target counterpart are dropped.
func RemapDatamodelShares(shares []models.DatamodelShare, users, groups *identity.Map, log logrus.FieldLogger) []models.DatamodelShare {
	out := []models.DatamodelShare{}
	for _, s := range shares {
		id, ok := resolveParty(s.Type, s.PartyID, users, groups)
		if !ok {
			if log != nil {
				log.WithFields(logrus.Fields{"type": s.Type, "id": s.PartyID}).Warn("dropping permission with no target identity")
			}
			continue
		}
		perm := s.Permission
		if perm == "" {
			perm = defaultDatamodelGrant
		}
		out = append(out, models.DatamodelShare{PartyID: id, Type: s.Type, Permission: perm})
	}
	return out
}

func resolveParty(kind, id string, users, groups *identity.Map) (string, bool) {
	switch kind {
	case "user":
		if users != nil {
			return users.Resolve(id)
		}
	case "group":
		if groups != nil {
			return groups.Resolve(id)
		}
	}
	return "", false
}

// UnionDashboardShares appends added to existing. An added entry whose
// (shareId, type) is already present is ignored so existing grants win.
func UnionDashboardShares(existing, added []models.DashboardShare) []models.DashboardShare {
	type key struct{ id, kind string }
	seen := make(map[key]bool, len(existing)+len(added))
	out := make([]models.DashboardShare, 0, len(existing)+len(added))
	for _, list := range [][]models.DashboardShare{existing, added} {
		for _, s := range list {
			k := key{s.ShareID, s.Type}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, s)
		}
	}
	return out
}

// identityMaps holds the user and group maps of one share migration.
type identityMaps struct {
	users  *identity.Map
	groups *identity.Map
}

func (m *Migrator) buildIdentityMaps(ctx context.Context) (*identityMaps, error) {
	users, err := identity.BuildUserMap(ctx, m.Source, m.Target, m.Log)
	if err != nil {
		return nil, fmt.Errorf("building user map: %w", err)
	}
	groups, err := identity.BuildGroupMap(ctx, m.Source, m.Target, m.Log)
	if err != nil {
		return nil, fmt.Errorf("building group map: %w", err)
	}
	m.Log.Infof("Identity maps built: %d users and %d groups resolved", users.Len(), groups.Len())
	return &identityMaps{users: users, groups: groups}, nil
}

// MigrateDashboardShares copies the shares of each source dashboard onto the
// target dashboard at the same position. New shares are added to those the
// target already has. With changeOwnership, the target dashboard is also
// given to the mapped source owner.
func (m *Migrator) MigrateDashboardShares(ctx context.Context, sourceIDs, targetIDs []string, changeOwnership bool) (*models.MigrationResult, error) {
	if len(sourceIDs) == 0 || len(targetIDs) == 0 {
		return nil, fmt.Errorf("%w: source and target dashboard IDs are required", ErrInvalidOptions)
	}
	if len(sourceIDs) != len(targetIDs) {
		return nil, fmt.Errorf("%w: %d source IDs but %d target IDs", ErrInvalidOptions, len(sourceIDs), len(targetIDs))
	}
	m.Log.Info("=== Migrating dashboard shares ===")
	maps, err := m.buildIdentityMaps(ctx)
	if err != nil {
		return nil, err
	}
	result := models.NewMigrationResult()
	for i := range sourceIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		m.migrateOneDashboardShares(ctx, sourceIDs[i], targetIDs[i], changeOwnership, maps, result)
	}
	m.Log.Infof("Share migration finished: %d succeeded, %d failed", result.ShareSuccessCount, result.ShareFailCount)
	return result, nil
}

func (m *Migrator) migrateOneDashboardShares(ctx context.Context, sourceID, targetID string, changeOwnership bool, maps *identityMaps, result *models.MigrationResult) {
	log := m.Log.WithFields(logrus.Fields{"source": sourceID, "target": targetID})
	pair := sourceID + "->" + targetID

	src, out := m.Source.GetDashboardShares(ctx, sourceID, true)
	if !out.OK() {
		log.Warnf("  FAIL: reading source shares: %v", out.Err())
		result.Failed = append(result.Failed, pair)
		result.AddError(out.Err())
		return
	}
	if len(src.SharesTo) == 0 {
		log.Info("No shares on source dashboard")
		return
	}

	added := RemapDashboardShares(src.SharesTo, maps.users, maps.groups, log)
	existing := m.targetShares(ctx, targetID, log)
	all := UnionDashboardShares(existing, added)
	if len(all) == 0 {
		log.Warn("No shares resolve on the target; make sure users and groups are migrated first")
		return
	}

	out = m.Target.SetDashboardShares(ctx, targetID, all, true)
	if out.Is(http.StatusForbidden) {
		log.Warn("Access denied with adminAccess, retrying without it")
		out = m.Target.SetDashboardShares(ctx, targetID, all, false)
	}
	if out.OK() {
		log.Infof("  SHARED: %d new shares", len(added))
		result.ShareSuccessCount += len(added)
	} else {
		log.Warnf("  FAIL: writing shares: %v", out.Err())
		result.ShareFailCount += len(added)
		result.Failed = append(result.Failed, pair)
		result.AddError(out.Err())
	}

	if !changeOwnership {
		return
	}
	if src.Owner == nil {
		log.Warn("Source dashboard has no owner, ownership unchanged")
		return
	}
	ownerID, ok := maps.users.Resolve(src.Owner.ID)
	if !ok {
		log.Warnf("Owner %s not found on the target", src.Owner.UserName)
		return
	}
	m.changeOwner(ctx, targetID, ownerID, log)
}

// targetShares reads the shares already on a target dashboard. A 403 with
// adminAccess is retried without it; any other failure yields no shares.
func (m *Migrator) targetShares(ctx context.Context, id string, log logrus.FieldLogger) []models.DashboardShare {
	shares, out := m.Target.GetDashboardShares(ctx, id, true)
	if out.Is(http.StatusForbidden) {
		log.Warn("Access denied reading target shares with adminAccess, retrying without it")
		shares, out = m.Target.GetDashboardShares(ctx, id, false)
	}
	if !out.OK() {
		log.Warnf("Could not read target shares: %v", out.Err())
		return nil
	}
	return shares.SharesTo
}

func (m *Migrator) changeOwner(ctx context.Context, targetID, ownerID string, log logrus.FieldLogger) {
	out := m.Target.ChangeDashboardOwner(ctx, targetID, ownerID, "edit", true)
	if out.Is(http.StatusForbidden) || out.Kind == platform.NoResponse {
		log.Warn("Ownership change with adminAccess failed, retrying without it")
		out = m.Target.ChangeDashboardOwner(ctx, targetID, ownerID, "edit", false)
	}
	if err := out.Err(); err != nil {
		log.Warnf("  FAIL: changing owner: %v", err)
		return
	}
	log.Infof("  OWNER: %s", ownerID)
}
