package migration

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/rflorenc/sisense-workbench/internal/identity"
	"github.com/rflorenc/sisense-workbench/internal/models"
)

var defaultPreferences = map[string]any{"localeId": "en-US"}

// MigrateUsers copies the users with the given emails in one bulk call.
func (m *Migrator) MigrateUsers(ctx context.Context, emails []string) (*models.MigrationResult, error) {
	m.Log.Info("=== Migrating users ===")
	want := make(map[string]bool, len(emails))
	for _, e := range emails {
		want[e] = true
	}
	found := map[string]bool{}
	result, err := m.migrateUsers(ctx, func(u models.User) bool {
		if !want[u.Email] {
			return false
		}
		found[u.Email] = true
		return true
	})
	if err == nil {
		m.warnMissing(emails, found)
	}
	return result, err
}

// MigrateAllUsers copies every source user not excluded by configuration.
func (m *Migrator) MigrateAllUsers(ctx context.Context) (*models.MigrationResult, error) {
	m.Log.Info("=== Migrating all users ===")
	return m.migrateUsers(ctx, func(u models.User) bool {
		if isExcluded(m.Exclude, "users", u.Email) {
			m.Log.Infof("  EXCLUDED: %s (user exclusion)", u.Email)
			return false
		}
		return true
	})
}

// migrateUsers resolves roles and groups of every selected user before any
// write. A user whose role or group has no target counterpart aborts the
// call with an error naming the user.
func (m *Migrator) migrateUsers(ctx context.Context, pick func(models.User) bool) (*models.MigrationResult, error) {
	users, err := m.Source.ListUsers(ctx, true)
	if err != nil {
		return nil, err
	}
	m.Log.Infof("Retrieved %d users from %s", len(users), m.Source.Name)

	roles, err := m.Target.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	targetGroups, err := m.Target.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	targetUsers, err := m.Target.ListUsers(ctx, false)
	if err != nil {
		return nil, err
	}
	groupIDs := identity.NewGroupIndex(targetGroups)
	onTarget := make(map[string]bool, len(targetUsers))
	for _, u := range targetUsers {
		onTarget[u.Email] = true
	}

	result := models.NewMigrationResult()
	var payload []models.NewUserPayload
	for _, u := range users {
		if !pick(u) {
			continue
		}
		if onTarget[u.Email] {
			m.Log.Infof("  SKIP (exists): %s", u.Email)
			result.Skipped = append(result.Skipped, u.Email)
			continue
		}
		p, err := userPayload(u, roles, groupIDs)
		if err != nil {
			return nil, err
		}
		payload = append(payload, p)
	}
	if len(payload) == 0 {
		m.Log.Info("No matching users found for migration")
		m.logSummary("users", result)
		return result, nil
	}

	m.Log.Infof("Sending bulk request for %d users", len(payload))
	out := m.Target.BulkCreateUsers(ctx, payload)
	emails := make([]string, len(payload))
	for i, p := range payload {
		emails[i] = p.Email
	}
	switch {
	case out.OK():
		created, ok := bulkNames(out.Body, "email", "Unknown User")
		if !ok {
			m.Log.Warn("bulk response is not a JSON list, assuming every user was created")
			created = emails
		}
		for _, e := range created {
			m.Log.Infof("  CREATED: %s", e)
		}
		result.Succeeded = append(result.Succeeded, created...)
	case alreadyExists(out):
		for _, e := range emails {
			m.Log.Infof("  SKIP (exists): %s", e)
		}
		result.Skipped = append(result.Skipped, emails...)
	default:
		err := out.Err()
		for _, e := range emails {
			m.Log.Warnf("  FAIL: %s: %v", e, err)
		}
		result.Failed = append(result.Failed, emails...)
		result.AddError(err)
	}
	m.logSummary("users", result)
	return result, nil
}

// userPayload builds the create body for u against the target's roles and
// groups. Reserved groups are dropped from the group list.
func userPayload(u models.User, roles []models.Role, groups identity.NameIndex) (models.NewUserPayload, error) {
	if u.Role == nil || u.Role.Name == "" {
		return models.NewUserPayload{}, fmt.Errorf("user %s has no role: %w", u.Email, identity.ErrUnresolved)
	}
	roleID, err := identity.ResolveRoleID(roles, u.Role.Name)
	if err != nil {
		return models.NewUserPayload{}, fmt.Errorf("user %s: %w", u.Email, err)
	}

	var missing *multierror.Error
	groupIDs := []string{}
	for _, name := range identity.FilterReservedNames(u.GroupNames()) {
		id, ok := groups.Lookup(name)
		if !ok {
			missing = multierror.Append(missing, fmt.Errorf("group %q: %w", name, identity.ErrUnresolved))
			continue
		}
		groupIDs = append(groupIDs, id)
	}
	if err := missing.ErrorOrNil(); err != nil {
		return models.NewUserPayload{}, fmt.Errorf("user %s: %w", u.Email, err)
	}

	prefs := u.Preferences
	if len(prefs) == 0 {
		prefs = defaultPreferences
	}
	return models.NewUserPayload{
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		RoleID:      roleID,
		Groups:      groupIDs,
		Preferences: prefs,
	}, nil
}
