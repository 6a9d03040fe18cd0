// Package access holds the administration operations of a single tenant:
// users, group membership, column usage, share listings and build schedules.
package access

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/rflorenc/sisense-workbench/internal/identity"
	"github.com/rflorenc/sisense-workbench/internal/models"
	"github.com/rflorenc/sisense-workbench/internal/platform"
)

// Manager runs administration operations against one tenant.
type Manager struct {
	tenant *platform.Tenant
	log    logrus.FieldLogger
}

// New creates a Manager for tenant.
func New(tenant *platform.Tenant, log logrus.FieldLogger) *Manager {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Manager{tenant: tenant, log: log}
}

// UserDetails is a user as shown to operators: role by display name and
// groups by name.
type UserDetails struct {
	ID        string   `json:"user_id"`
	UserName  string   `json:"user_name"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Email     string   `json:"email"`
	Active    bool     `json:"is_active"`
	RoleID    string   `json:"role_id"`
	RoleName  string   `json:"role_name"`
	Groups    []string `json:"groups"`
}

func details(u models.User) UserDetails {
	d := UserDetails{
		ID:        u.ID,
		UserName:  u.UserName,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Active:    u.Active,
		RoleID:    u.RoleID,
		Groups:    u.GroupNames(),
	}
	if u.Role != nil {
		d.RoleID = u.Role.ID
		d.RoleName = identity.DisplayRoleName(u.Role.Name)
	}
	if d.Groups == nil {
		d.Groups = []string{}
	}
	return d
}

// GetUser returns the user with the given email, or an error wrapping
// platform.ErrNotFound.
func (m *Manager) GetUser(ctx context.Context, email string) (UserDetails, error) {
	u, err := m.tenant.FindUserByEmail(ctx, email)
	if err != nil {
		return UserDetails{}, err
	}
	m.log.Infof("Found user: %s", u.Email)
	return details(u), nil
}

// ListUsers returns every user. "Everyone" is left out of the group list of
// users who belong to other groups as well.
func (m *Manager) ListUsers(ctx context.Context) ([]UserDetails, error) {
	users, err := m.tenant.ListUsers(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make([]UserDetails, 0, len(users))
	for _, u := range users {
		d := details(u)
		if len(d.Groups) > 1 {
			kept := d.Groups[:0]
			for _, g := range d.Groups {
				if g != "Everyone" {
					kept = append(kept, g)
				}
			}
			d.Groups = kept
		}
		out = append(out, d)
	}
	m.log.Infof("Found %d users", len(out))
	return out, nil
}

// NewUser describes a user to create. Role and Groups are names, resolved
// against the tenant.
type NewUser struct {
	Email       string         `json:"email"`
	FirstName   string         `json:"firstName"`
	LastName    string         `json:"lastName"`
	Role        string         `json:"role"`
	Groups      []string       `json:"groups"`
	Preferences map[string]any `json:"preferences,omitempty"`
}

// CreateUser resolves the role and groups of nu and creates the user.
func (m *Manager) CreateUser(ctx context.Context, nu NewUser) (models.User, error) {
	if nu.Email == "" {
		return models.User{}, fmt.Errorf("email is required")
	}
	roleID, err := m.resolveRole(ctx, nu.Role)
	if err != nil {
		return models.User{}, err
	}
	groups, err := m.resolveGroups(ctx, nu.Groups)
	if err != nil {
		return models.User{}, err
	}
	payload := models.NewUserPayload{
		Email:       nu.Email,
		FirstName:   nu.FirstName,
		LastName:    nu.LastName,
		RoleID:      roleID,
		Groups:      groups,
		Preferences: nu.Preferences,
	}
	if payload.Preferences == nil {
		payload.Preferences = map[string]any{"localeId": "en-US"}
	}
	u, err := m.tenant.CreateUser(ctx, payload)
	if err != nil {
		return models.User{}, err
	}
	m.log.Infof("  CREATED: %s", nu.Email)
	return u, nil
}

// UpdateUser patches the user with the given email. A "role" key is replaced
// by the resolved "roleId" and "groups" names by group IDs; other keys are
// sent as given.
func (m *Manager) UpdateUser(ctx context.Context, email string, patch map[string]any) (models.User, error) {
	u, err := m.tenant.FindUserByEmail(ctx, email)
	if err != nil {
		return models.User{}, err
	}
	body := make(map[string]any, len(patch))
	for k, v := range patch {
		body[k] = v
	}
	if role, ok := body["role"].(string); ok {
		id, err := m.resolveRole(ctx, role)
		if err != nil {
			return models.User{}, err
		}
		delete(body, "role")
		body["roleId"] = id
	}
	if raw, ok := body["groups"]; ok {
		names, err := stringList(raw)
		if err != nil {
			return models.User{}, fmt.Errorf("groups: %w", err)
		}
		ids, err := m.resolveGroups(ctx, names)
		if err != nil {
			return models.User{}, err
		}
		body["groups"] = ids
	}
	updated, err := m.tenant.UpdateUser(ctx, u.ID, body)
	if err != nil {
		return models.User{}, err
	}
	m.log.Infof("  UPDATED: %s", email)
	return updated, nil
}

// DeleteUser deletes the user with the given email.
func (m *Manager) DeleteUser(ctx context.Context, email string) error {
	u, err := m.tenant.FindUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := m.tenant.DeleteUser(ctx, u.ID); err != nil {
		return err
	}
	m.log.Infof("  DELETED: %s (ID: %s)", email, u.ID)
	return nil
}

func (m *Manager) resolveRole(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("role is required: %w", identity.ErrUnresolved)
	}
	roles, err := m.tenant.ListRoles(ctx)
	if err != nil {
		return "", err
	}
	return identity.ResolveRoleID(roles, name)
}

// resolveGroups maps group names to IDs ignoring case. Every missing name is
// reported.
func (m *Manager) resolveGroups(ctx context.Context, names []string) ([]string, error) {
	ids := []string{}
	if len(names) == 0 {
		return ids, nil
	}
	groups, err := m.tenant.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	idx := identity.NameIndex{}
	for _, g := range groups {
		if _, ok := idx[identity.FoldKey(g.Name)]; !ok {
			idx[identity.FoldKey(g.Name)] = g.ID
		}
	}
	var missing *multierror.Error
	for _, n := range names {
		id, ok := idx.Lookup(n)
		if !ok {
			missing = multierror.Append(missing, fmt.Errorf("group %q: %w", n, identity.ErrUnresolved))
			continue
		}
		ids = append(ids, id)
	}
	if err := missing.ErrorOrNil(); err != nil {
		return nil, err
	}
	return ids, nil
}
