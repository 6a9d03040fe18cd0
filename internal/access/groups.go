package access

import (
	"context"

	"github.com/rflorenc/sisense-workbench/internal/identity"
)

// adminsGroup collects users holding an administrative role.
const adminsGroup = "Admins"

// adminRoles are display role names reported under adminsGroup.
var adminRoles = map[string]bool{"sysAdmin": true, "dataAdmin": true, "admin": true}

// GroupMembers lists the user names of one group.
type GroupMembers struct {
	Group string   `json:"group"`
	Users []string `json:"users"`
}

func memberName(u UserDetails) string {
	if u.UserName != "" {
		return u.UserName
	}
	return u.Email
}

// UsersPerGroup returns the members of group, matched ignoring case.
func (m *Manager) UsersPerGroup(ctx context.Context, group string) (GroupMembers, error) {
	users, err := m.ListUsers(ctx)
	if err != nil {
		return GroupMembers{}, err
	}
	res := GroupMembers{Group: group, Users: []string{}}
	want := identity.FoldKey(group)
	for _, u := range users {
		for _, g := range u.Groups {
			if identity.FoldKey(g) == want {
				res.Users = append(res.Users, memberName(u))
				break
			}
		}
	}
	if len(res.Users) == 0 {
		m.log.Warnf("No users found in the group %q", group)
	} else {
		m.log.Infof("Found %d users in the group %q", len(res.Users), group)
	}
	return res, nil
}

// UsersPerGroupAll returns every non-reserved group with its members, in
// listing order, including empty groups. Users with an administrative role
// are also reported under "Admins", which is added when the tenant has no
// such group.
func (m *Manager) UsersPerGroupAll(ctx context.Context) ([]GroupMembers, error) {
	groups, err := m.tenant.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	users, err := m.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	var order []string
	members := map[string][]string{}
	add := func(name string) {
		if _, ok := members[name]; !ok {
			order = append(order, name)
			members[name] = []string{}
		}
	}
	for _, g := range identity.FilterReserved(groups) {
		add(g.Name)
	}
	add(adminsGroup)

	for _, u := range users {
		for _, g := range identity.FilterReservedNames(u.Groups) {
			add(g)
			members[g] = append(members[g], memberName(u))
		}
	}
	for _, u := range users {
		if adminRoles[u.RoleName] {
			members[adminsGroup] = append(members[adminsGroup], memberName(u))
		}
	}

	out := make([]GroupMembers, 0, len(order))
	for _, name := range order {
		out = append(out, GroupMembers{Group: name, Users: members[name]})
	}
	m.log.Infof("Found %d groups", len(out))
	return out, nil
}
