// Package report renders command results as CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/rflorenc/sisense-workbench/internal/access"
	"github.com/rflorenc/sisense-workbench/internal/models"
)

// Table is anything that can be rendered as rows under a header.
type Table interface {
	Header() []string
	Rows() [][]string
}

// Write renders t as CSV to w.
func Write(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header()); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows()); err != nil {
		return err
	}
	return cw.Error()
}

// WriteFile renders t as CSV into path on fs, creating parent directories.
func WriteFile(fs afero.Fs, path string, t Table) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := Write(f, t); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// Shares renders a dashboard share listing.
type Shares []access.ShareRow

func (s Shares) Header() []string { return []string{"dashboard", "type", "name"} }

func (s Shares) Rows() [][]string {
	out := make([][]string, 0, len(s))
	for _, r := range s {
		out = append(out, []string{r.Dashboard, r.Type, r.Name})
	}
	return out
}

// ModelColumns renders data model columns with their usage flag.
type ModelColumns []access.ModelColumn

func (c ModelColumns) Header() []string {
	return []string{"datamodel_id", "datamodel_name", "table", "column", "used"}
}

func (c ModelColumns) Rows() [][]string {
	out := make([][]string, 0, len(c))
	for _, r := range c {
		out = append(out, []string{r.DatamodelID, r.DatamodelName, r.Table, r.Column, strconv.FormatBool(r.Used)})
	}
	return out
}

// DashboardColumns renders the columns used by a dashboard.
type DashboardColumns []access.DashboardColumn

func (c DashboardColumns) Header() []string {
	return []string{"dashboard_name", "source", "widget_id", "table", "column"}
}

func (c DashboardColumns) Rows() [][]string {
	out := make([][]string, 0, len(c))
	for _, r := range c {
		out = append(out, []string{r.Dashboard, r.Source, r.WidgetID, r.Table, r.Column})
	}
	return out
}

// Users renders a user listing. Groups are joined with "|".
type Users []access.UserDetails

func (u Users) Header() []string {
	return []string{"user_id", "user_name", "first_name", "last_name", "email", "is_active", "role_id", "role_name", "groups"}
}

func (u Users) Rows() [][]string {
	out := make([][]string, 0, len(u))
	for _, r := range u {
		out = append(out, []string{
			r.ID, r.UserName, r.FirstName, r.LastName, r.Email,
			strconv.FormatBool(r.Active), r.RoleID, r.RoleName, strings.Join(r.Groups, "|"),
		})
	}
	return out
}

// GroupMembers renders one row per group with its members joined by "|".
type GroupMembers []access.GroupMembers

func (g GroupMembers) Header() []string { return []string{"group", "users"} }

func (g GroupMembers) Rows() [][]string {
	out := make([][]string, 0, len(g))
	for _, r := range g {
		out = append(out, []string{r.Group, strings.Join(r.Users, "|")})
	}
	return out
}

// Result renders a migration result as one row per entity and outcome.
type Result struct {
	Kind   string
	Result *models.MigrationResult
}

func (r Result) Header() []string { return []string{"kind", "name", "status"} }

func (r Result) Rows() [][]string {
	var out [][]string
	if r.Result == nil {
		return out
	}
	for _, bucket := range []struct {
		status string
		names  []string
	}{
		{"succeeded", r.Result.Succeeded},
		{"skipped", r.Result.Skipped},
		{"failed", r.Result.Failed},
	} {
		for _, n := range bucket.names {
			out = append(out, []string{r.Kind, n, bucket.status})
		}
	}
	return out
}

// Results renders several migration results under one header.
type Results []Result

func (r Results) Header() []string { return Result{}.Header() }

func (r Results) Rows() [][]string {
	var out [][]string
	for _, res := range r {
		out = append(out, res.Rows()...)
	}
	return out
}
