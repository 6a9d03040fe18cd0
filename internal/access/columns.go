package access

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cast"

	"github.com/rflorenc/sisense-workbench/internal/models"
	"github.com/rflorenc/sisense-workbench/internal/platform"
)

const (
	unknownTable  = "Unknown Table"
	unknownColumn = "Unknown Column"
	unknownWidget = "Unknown Widget"
)

// ModelColumn is one column of a data model table.
type ModelColumn struct {
	DatamodelID   string `json:"datamodel_id"`
	DatamodelName string `json:"datamodel_name"`
	Table         string `json:"table"`
	Column        string `json:"column"`
	Used          bool   `json:"used"`
}

// DashboardColumn is one column referenced by a dashboard filter or widget.
type DashboardColumn struct {
	Dashboard string `json:"dashboard_name"`
	Source    string `json:"source"` // "filter" or "widget"
	WidgetID  string `json:"widget_id"`
	Table     string `json:"table"`
	Column    string `json:"column"`
}

type columnKey struct{ table, column string }

// DatamodelColumns lists every named column of every table of the named data
// model. Tables of a dataset that cannot be read are skipped with a log line.
func (m *Manager) DatamodelColumns(ctx context.Context, datamodel string) ([]ModelColumn, error) {
	dm, err := m.tenant.FindDatamodel(ctx, datamodel)
	if err != nil {
		return nil, err
	}
	m.log.Infof("DataModel ID for %q is %s", datamodel, dm.OID)

	datasets, err := m.tenant.DatamodelDatasets(ctx, dm.OID)
	if err != nil {
		return nil, err
	}
	out := []ModelColumn{}
	for _, ds := range datasets {
		if ds.OID == "" {
			continue
		}
		tables, err := m.tenant.DatasetTables(ctx, dm.OID, ds.OID)
		if err != nil {
			m.log.WithError(err).Warnf("Failed to fetch tables for dataset %s", ds.OID)
			continue
		}
		for _, t := range tables {
			if t.Name == "" {
				m.log.Warnf("Table in dataset %s has no name, skipping", ds.OID)
				continue
			}
			for _, c := range t.Columns {
				if c.Name == "" {
					continue
				}
				out = append(out, ModelColumn{DatamodelID: dm.OID, DatamodelName: datamodel, Table: t.Name, Column: c.Name})
			}
		}
	}
	m.log.Infof("Collected %d columns from DataModel %q", len(out), datamodel)
	return out, nil
}

// DashboardColumns lists the distinct (table, column) pairs the named
// dashboard uses in its filters and widgets.
func (m *Manager) DashboardColumns(ctx context.Context, dashboard string) ([]DashboardColumn, error) {
	found, err := m.tenant.SearchDashboards(ctx, dashboard)
	if err != nil {
		return nil, err
	}
	var oid string
	for _, d := range found {
		if d.Title == dashboard {
			oid = d.OID
			break
		}
	}
	if oid == "" {
		return nil, fmt.Errorf("dashboard %q: %w", dashboard, platform.ErrNotFound)
	}
	export, err := m.tenant.ExportDashboardDefinition(ctx, oid)
	if err != nil {
		return nil, err
	}
	cols := dedupColumns(extractColumns(export, dashboard))
	m.log.Infof("Retrieved %d distinct columns from dashboard %q", len(cols), dashboard)
	return cols, nil
}

// UnusedColumns lists the columns of the named data model and marks those
// referenced by any dashboard built on it as used. Dashboards that cannot be
// exported are skipped.
func (m *Manager) UnusedColumns(ctx context.Context, datamodel string) ([]ModelColumn, error) {
	cols, err := m.DatamodelColumns(ctx, datamodel)
	if err != nil {
		return nil, err
	}
	dashboards, err := m.tenant.AdminDashboardsByDatasource(ctx, datamodel)
	if err != nil {
		return nil, err
	}
	if len(dashboards) == 0 {
		m.log.Warnf("No dashboards are associated with the DataModel %q or the user cannot access them", datamodel)
	}

	used := map[columnKey]bool{}
	seen := map[string]bool{}
	for _, d := range dashboards {
		if seen[d.OID] {
			continue
		}
		seen[d.OID] = true
		export, err := m.tenant.ExportDashboardDefinition(ctx, d.OID)
		if err != nil {
			m.log.WithError(err).Warnf("Failed to export dashboard %s", d.OID)
			continue
		}
		for _, c := range extractColumns(export, export.Title()) {
			used[columnKey{c.Table, c.Column}] = true
		}
	}

	n := 0
	for i := range cols {
		cols[i].Used = used[columnKey{cols[i].Table, cols[i].Column}]
		if cols[i].Used {
			n++
		}
	}
	m.log.Infof("Total used columns: %d", n)
	m.log.Infof("Total unused columns: %d", len(cols)-n)
	return cols, nil
}

// extractColumns walks dashboard filters (levels or jaql) and widget panel
// items (jaql context entries or jaql itself).
func extractColumns(d models.DashboardExport, dashboard string) []DashboardColumn {
	var out []DashboardColumn
	ref := func(source, widget string, obj map[string]any) {
		out = append(out, DashboardColumn{
			Dashboard: dashboard,
			Source:    source,
			WidgetID:  widget,
			Table:     textOr(obj, "table", unknownTable),
			Column:    textOr(obj, "column", unknownColumn),
		})
	}

	for _, f := range objects(d["filters"]) {
		if levels, ok := f["levels"]; ok {
			for _, l := range objects(levels) {
				ref("filter", "N/A", l)
			}
		} else if jaql, ok := f["jaql"]; ok {
			ref("filter", "N/A", cast.ToStringMap(jaql))
		}
	}

	for _, w := range objects(d["widgets"]) {
		widget := textOr(w, "oid", unknownWidget)
		meta := cast.ToStringMap(w["metadata"])
		for _, panel := range objects(meta["panels"]) {
			for _, item := range objects(panel["items"]) {
				jaql := cast.ToStringMap(item["jaql"])
				if ctxRaw, ok := jaql["context"]; ok {
					contexts := cast.ToStringMap(ctxRaw)
					keys := make([]string, 0, len(contexts))
					for k := range contexts {
						keys = append(keys, k)
					}
					sort.Strings(keys)
					for _, k := range keys {
						ref("widget", widget, cast.ToStringMap(contexts[k]))
					}
					continue
				}
				ref("widget", widget, jaql)
			}
		}
	}
	return out
}

func dedupColumns(cols []DashboardColumn) []DashboardColumn {
	seen := map[columnKey]bool{}
	out := []DashboardColumn{}
	for _, c := range cols {
		k := columnKey{c.Table, c.Column}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}

// objects returns the elements of a JSON array that are objects.
func objects(v any) []map[string]any {
	var out []map[string]any
	for _, e := range cast.ToSlice(v) {
		if m, err := cast.ToStringMapE(e); err == nil {
			out = append(out, m)
		}
	}
	return out
}

func textOr(obj map[string]any, key, fallback string) string {
	if s := cast.ToString(obj[key]); s != "" {
		return s
	}
	return fallback
}

func stringList(v any) ([]string, error) {
	return cast.ToStringSliceE(v)
}
