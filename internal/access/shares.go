package access

import (
	"context"
)

// ShareRow is one grant of a dashboard, with the grantee by email or group
// name. Type and Name are empty for an unshared dashboard, or for a grant
// whose grantee no longer exists.
type ShareRow struct {
	Dashboard string `json:"dashboard"`
	Type      string `json:"type"`
	Name      string `json:"name"`
}

// DashboardShareListing lists the grants of every dashboard.
func (m *Manager) DashboardShareListing(ctx context.Context) ([]ShareRow, error) {
	dashboards, err := m.tenant.SearchDashboards(ctx, "")
	if err != nil {
		return nil, err
	}
	users, err := m.tenant.ListUsers(ctx, false)
	if err != nil {
		return nil, err
	}
	groups, err := m.tenant.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	emails := make(map[string]string, len(users))
	for _, u := range users {
		email := u.Email
		if email == "" {
			email = "Unknown Email"
		}
		emails[u.ID] = email
	}
	groupNames := make(map[string]string, len(groups))
	for _, g := range groups {
		name := g.Name
		if name == "" {
			name = "Unknown Group"
		}
		groupNames[g.ID] = name
	}

	rows := []ShareRow{}
	for _, d := range dashboards {
		if len(d.Shares) == 0 {
			rows = append(rows, ShareRow{Dashboard: d.Title})
			continue
		}
		for _, s := range d.Shares {
			row := ShareRow{Dashboard: d.Title}
			switch s.Type {
			case "user":
				if e, ok := emails[s.ShareID]; ok {
					row.Type, row.Name = "user", e
				}
			case "group":
				if n, ok := groupNames[s.ShareID]; ok {
					row.Type, row.Name = "group", n
				}
			}
			rows = append(rows, row)
		}
	}
	m.log.Infof("Parsed %d dashboard share rows", len(rows))
	return rows, nil
}
