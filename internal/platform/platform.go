package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rflorenc/sisense-workbench/internal/models"
)

// PingPath is the authenticated endpoint used to verify an environment.
const PingPath = "/api/v1/users/loggedin"

// Tenant is the typed API of one BI tenant. Methods that return an Outcome
// leave status handling to the caller; the rest return (T, error) and use
// ErrNotFound for lookups that matched nothing.
type Tenant struct {
	Name     string
	client   *Client
	pageSize int
}

// NewTenant creates a Tenant for an environment.
func NewTenant(env *models.Environment, log logrus.FieldLogger) *Tenant {
	name := env.Name
	if name == "" {
		name = env.Domain
	}
	return &Tenant{Name: name, client: NewClient(env, log), pageSize: DefaultPageSize}
}

// NewTenantAt creates a Tenant for an explicit base URL.
func NewTenantAt(name, baseURL, token string, log logrus.FieldLogger) *Tenant {
	c := newClient(baseURL, token, http.DefaultTransport, log)
	return &Tenant{Name: name, client: c, pageSize: DefaultPageSize}
}

// Client returns the underlying transport.
func (t *Tenant) Client() *Client {
	return t.client
}

// SetPageSize changes the page size used by paginated listings.
func (t *Tenant) SetPageSize(n int) {
	if n > 0 {
		t.pageSize = n
	}
}

// Ping verifies connectivity and the bearer token.
func (t *Tenant) Ping(ctx context.Context) error {
	return t.client.Get(ctx, PingPath, nil).Err()
}

// --- users, groups, roles ---

// ListUsers lists every user, expanded with groups and role when expand is set.
func (t *Tenant) ListUsers(ctx context.Context, expand bool) ([]models.User, error) {
	base := url.Values{}
	if expand {
		base.Set("expand", "groups,role")
	}
	return Paginate(ctx, t.pageSize, func(ctx context.Context, limit, skip int) ([]models.User, error) {
		var users []models.User
		if err := t.client.GetJSON(ctx, "/api/v1/users", pageParams(base, limit, skip), &users); err != nil {
			return nil, fmt.Errorf("listing users on %s (skip=%d): %w", t.Name, skip, err)
		}
		return users, nil
	})
}

// FindUserByEmail returns the user with the given email (exact match).
func (t *Tenant) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	users, err := t.ListUsers(ctx, true)
	if err != nil {
		return models.User{}, err
	}
	for _, u := range users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, fmt.Errorf("user %q: %w", email, ErrNotFound)
}

// CreateUser creates a single user.
func (t *Tenant) CreateUser(ctx context.Context, payload models.NewUserPayload) (models.User, error) {
	var u models.User
	if err := t.client.Post(ctx, "/api/v1/users", payload).Decode(&u); err != nil {
		return models.User{}, fmt.Errorf("creating user %s: %w", payload.Email, err)
	}
	return u, nil
}

// UpdateUser patches a user.
func (t *Tenant) UpdateUser(ctx context.Context, id string, patch map[string]any) (models.User, error) {
	var u models.User
	if err := t.client.Patch(ctx, "/api/v1/users/"+url.PathEscape(id), patch).Decode(&u); err != nil {
		return models.User{}, fmt.Errorf("updating user %s: %w", id, err)
	}
	return u, nil
}

// DeleteUser deletes a user by ID.
func (t *Tenant) DeleteUser(ctx context.Context, id string) error {
	out := t.client.Delete(ctx, "/api/v1/users/"+url.PathEscape(id))
	if out.Is(http.StatusNotFound) {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return out.Err()
}

// BulkCreateUsers submits one bulk user creation call.
func (t *Tenant) BulkCreateUsers(ctx context.Context, users []models.NewUserPayload) Outcome {
	return t.client.Post(ctx, "/api/v1/users/bulk", users)
}

// ListGroups lists every group.
func (t *Tenant) ListGroups(ctx context.Context) ([]models.Group, error) {
	return Paginate(ctx, t.pageSize, func(ctx context.Context, limit, skip int) ([]models.Group, error) {
		var groups []models.Group
		if err := t.client.GetJSON(ctx, "/api/v1/groups", pageParams(nil, limit, skip), &groups); err != nil {
			return nil, fmt.Errorf("listing groups on %s (skip=%d): %w", t.Name, skip, err)
		}
		return groups, nil
	})
}

// BulkCreateGroups submits one bulk group creation call.
func (t *Tenant) BulkCreateGroups(ctx context.Context, groups []map[string]any) Outcome {
	return t.client.Post(ctx, "/api/v1/groups/bulk", groups)
}

// ListRoles lists the tenant roles.
func (t *Tenant) ListRoles(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	if err := t.client.GetJSON(ctx, "/api/roles", nil, &roles); err != nil {
		return nil, fmt.Errorf("listing roles on %s: %w", t.Name, err)
	}
	return roles, nil
}

// --- folders ---

// Navver returns the folder forest visible to the caller.
func (t *Tenant) Navver(ctx context.Context) ([]models.FolderNode, error) {
	var resp struct {
		Folders *[]models.FolderNode `json:"folders"`
	}
	if err := t.client.GetJSON(ctx, "/api/v1/navver", nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching folder tree: %w", err)
	}
	if resp.Folders == nil {
		return nil, fmt.Errorf("folder tree: %w", ErrNotFound)
	}
	return *resp.Folders, nil
}

// ListFolders lists the folders directly visible to the caller.
func (t *Tenant) ListFolders(ctx context.Context) ([]models.Folder, error) {
	return Paginate(ctx, t.pageSize, func(ctx context.Context, limit, skip int) ([]models.Folder, error) {
		var folders []models.Folder
		if err := t.client.GetJSON(ctx, "/api/v1/folders", pageParams(nil, limit, skip), &folders); err != nil {
			return nil, fmt.Errorf("listing folders (skip=%d): %w", skip, err)
		}
		return folders, nil
	})
}

// GetFolder fetches one folder.
func (t *Tenant) GetFolder(ctx context.Context, id string) (models.Folder, error) {
	var f models.Folder
	out := t.client.Get(ctx, "/api/v1/folders/"+url.PathEscape(id), nil)
	if out.Is(http.StatusNotFound) {
		return f, fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}
	if err := out.Decode(&f); err != nil {
		return f, err
	}
	return f, nil
}

// SetFolderOwner makes ownerID the owner of folder id.
func (t *Tenant) SetFolderOwner(ctx context.Context, id, ownerID string) error {
	return t.client.Patch(ctx, "/api/v1/folders/"+url.PathEscape(id), map[string]string{"owner": ownerID}).Err()
}

// --- dashboards ---

// searchPage is the response envelope of the dashboard search endpoint.
type searchPage struct {
	Items []models.DashboardSummary `json:"items"`
}

// SearchDashboards pages through the tenant-wide dashboard search. An empty
// search string matches everything.
func (t *Tenant) SearchDashboards(ctx context.Context, search string) ([]models.DashboardSummary, error) {
	return Paginate(ctx, t.pageSize, func(ctx context.Context, limit, skip int) ([]models.DashboardSummary, error) {
		body := map[string]any{
			"queryParams": map[string]any{
				"ownershipType": "allRoot",
				"search":        search,
				"ownerInfo":     true,
				"asObject":      true,
			},
			"queryOptions": map[string]any{
				"sort":  map[string]int{"title": 1},
				"limit": limit,
				"skip":  skip,
			},
		}
		var page searchPage
		if err := t.client.Post(ctx, "/api/v1/dashboards/searches", body).Decode(&page); err != nil {
			return nil, fmt.Errorf("searching dashboards (skip=%d): %w", skip, err)
		}
		return page.Items, nil
	})
}

// GetDashboard fetches a dashboard summary.
func (t *Tenant) GetDashboard(ctx context.Context, id string) (models.DashboardSummary, error) {
	var d models.DashboardSummary
	out := t.client.Get(ctx, "/api/v1/dashboards/"+url.PathEscape(id), nil)
	if out.Is(http.StatusNotFound) {
		return d, fmt.Errorf("dashboard %s: %w", id, ErrNotFound)
	}
	return d, out.Decode(&d)
}

// ChangeDashboardOwner transfers a dashboard to ownerID. The previous owner
// keeps the given rule.
func (t *Tenant) ChangeDashboardOwner(ctx context.Context, id, ownerID, originalOwnerRule string, adminAccess bool) Outcome {
	path := "/api/v1/dashboards/" + url.PathEscape(id) + "/change_owner"
	if adminAccess {
		path += "?adminAccess=true"
	}
	return t.client.Post(ctx, path, map[string]string{"ownerId": ownerID, "originalOwnerRule": originalOwnerRule})
}

func sharesPath(id string, adminAccess bool) string {
	path := "/api/shares/dashboard/" + url.PathEscape(id)
	if adminAccess {
		path += "?adminAccess=true"
	}
	return path
}

// GetDashboardShares fetches the share document of a dashboard. The Outcome is
// returned so callers can retry on 403 without admin access.
func (t *Tenant) GetDashboardShares(ctx context.Context, id string, adminAccess bool) (models.DashboardShares, Outcome) {
	var shares models.DashboardShares
	out := t.client.Get(ctx, sharesPath(id, adminAccess), nil)
	if out.OK() {
		if err := out.Decode(&shares); err != nil {
			out.Kind = Failure
			out.Message = err.Error()
		}
	}
	return shares, out
}

// SetDashboardShares replaces the share list of a dashboard.
func (t *Tenant) SetDashboardShares(ctx context.Context, id string, shares []models.DashboardShare, adminAccess bool) Outcome {
	if shares == nil {
		shares = []models.DashboardShare{}
	}
	return t.client.Post(ctx, sharesPath(id, adminAccess), map[string]any{"sharesTo": shares})
}

// ExportDashboard exports the full definition of a dashboard.
func (t *Tenant) ExportDashboard(ctx context.Context, id string) (models.DashboardExport, error) {
	var d models.DashboardExport
	out := t.client.Get(ctx, "/api/dashboards/"+url.PathEscape(id)+"/export", url.Values{"adminAccess": {"true"}})
	if out.Is(http.StatusNotFound) {
		return nil, fmt.Errorf("dashboard %s: %w", id, ErrNotFound)
	}
	if err := out.Decode(&d); err != nil {
		return nil, fmt.Errorf("exporting dashboard %s: %w", id, err)
	}
	return d, nil
}

// ExportDashboardDefinition exports a dashboard through the v1 bulk export
// endpoint, which includes filters and widgets.
func (t *Tenant) ExportDashboardDefinition(ctx context.Context, id string) (models.DashboardExport, error) {
	var list []models.DashboardExport
	params := url.Values{"dashboardIds": {id}, "adminAccess": {"true"}}
	if err := t.client.GetJSON(ctx, "/api/v1/dashboards/export", params, &list); err != nil {
		return nil, fmt.Errorf("exporting dashboard %s: %w", id, err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("dashboard %s: %w", id, ErrNotFound)
	}
	return list[0], nil
}

// ImportDashboards submits one bulk import call. action is "skip",
// "overwrite" or "duplicate"; empty leaves the server default.
func (t *Tenant) ImportDashboards(ctx context.Context, dashboards []models.DashboardExport, action string, republish bool) (models.BulkImportResponse, Outcome) {
	var resp models.BulkImportResponse
	path := "/api/v1/dashboards/import/bulk?republish=" + strconv.FormatBool(republish)
	if action != "" {
		path += "&action=" + url.QueryEscape(action)
	}
	out := t.client.Post(ctx, path, dashboards)
	if out.OK() && len(out.Body) > 0 {
		if err := out.Decode(&resp); err != nil {
			out.Kind = Failure
			out.Message = err.Error()
		}
	}
	return resp, out
}

// AdminDashboardsByDatasource lists dashboards built on a data source.
func (t *Tenant) AdminDashboardsByDatasource(ctx context.Context, datasource string) ([]models.DashboardSummary, error) {
	var list []models.DashboardSummary
	if err := t.client.GetJSON(ctx, "/api/v1/dashboards/admin", url.Values{"datasourceTitle": {datasource}}, &list); err != nil {
		return nil, fmt.Errorf("listing dashboards of %s: %w", datasource, err)
	}
	return list, nil
}

// --- data models ---

// ListDatamodels lists the data models with ID, title and type.
func (t *Tenant) ListDatamodels(ctx context.Context) ([]models.Datamodel, error) {
	base := url.Values{"fields": {"oid,title,type"}}
	return Paginate(ctx, t.pageSize, func(ctx context.Context, limit, skip int) ([]models.Datamodel, error) {
		var list []models.Datamodel
		if err := t.client.GetJSON(ctx, "/api/v2/datamodels/schema", pageParams(base, limit, skip), &list); err != nil {
			return nil, fmt.Errorf("listing data models (skip=%d): %w", skip, err)
		}
		return list, nil
	})
}

// FindDatamodel returns the data model with the given title.
func (t *Tenant) FindDatamodel(ctx context.Context, title string) (models.Datamodel, error) {
	list, err := t.ListDatamodels(ctx)
	if err != nil {
		return models.Datamodel{}, err
	}
	for _, dm := range list {
		if dm.Title == title {
			return dm, nil
		}
	}
	return models.Datamodel{}, fmt.Errorf("data model %q: %w", title, ErrNotFound)
}

// ExportDatamodel exports the latest schema with the given dependency flags.
func (t *Tenant) ExportDatamodel(ctx context.Context, id string, dependencies []string) (models.DatamodelSchema, error) {
	params := url.Values{
		"datamodelId": {id},
		"type":        {"schema-latest"},
	}
	if len(dependencies) > 0 {
		params.Set("dependenciesIdsToInclude", strings.Join(dependencies, ","))
	}
	var schema models.DatamodelSchema
	if err := t.client.GetJSON(ctx, "/api/v2/datamodel-exports/schema", params, &schema); err != nil {
		return nil, fmt.Errorf("exporting data model %s: %w", id, err)
	}
	return schema, nil
}

// ImportDatamodel imports one schema. The API answers 201 on success.
func (t *Tenant) ImportDatamodel(ctx context.Context, schema models.DatamodelSchema) (models.Datamodel, Outcome) {
	var dm models.Datamodel
	out := t.client.Post(ctx, "/api/v2/datamodel-imports/schema", schema)
	if out.OK() && len(out.Body) > 0 {
		if err := out.Decode(&dm); err != nil {
			t.client.log.WithError(err).Warn("data model import response could not be decoded")
		}
	}
	return dm, out
}

func datamodelPermissionsPath(dm models.Datamodel) string {
	if dm.Type == "live" {
		return "/api/v1/elasticubes/live/" + url.PathEscape(dm.OID) + "/permissions"
	}
	return "/api/elasticubes/localhost/" + url.PathEscape(dm.Title) + "/permissions"
}

// DatamodelShares returns the permissions of a data model. Extract models
// are addressed by title and live models by ID.
func (t *Tenant) DatamodelShares(ctx context.Context, dm models.Datamodel) ([]models.DatamodelShare, error) {
	path := datamodelPermissionsPath(dm)
	if dm.Type == "live" {
		var shares []models.DatamodelShare
		if err := t.client.GetJSON(ctx, path, nil, &shares); err != nil {
			return nil, fmt.Errorf("fetching permissions of %s: %w", dm.Title, err)
		}
		return shares, nil
	}
	var resp struct {
		Shares []models.DatamodelShare `json:"shares"`
	}
	if err := t.client.GetJSON(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching permissions of %s: %w", dm.Title, err)
	}
	return resp.Shares, nil
}

// SetDatamodelShares writes the permissions of a data model. Live models
// must be published first.
func (t *Tenant) SetDatamodelShares(ctx context.Context, dm models.Datamodel, shares []models.DatamodelShare) Outcome {
	if dm.Type == "live" {
		return t.client.Patch(ctx, datamodelPermissionsPath(dm), shares)
	}
	return t.client.Put(ctx, datamodelPermissionsPath(dm), shares)
}

// PublishDatamodel triggers a publish build. The API answers 201 on success.
func (t *Tenant) PublishDatamodel(ctx context.Context, id string) Outcome {
	return t.client.Post(ctx, "/api/v2/builds", map[string]string{"datamodelId": id, "buildType": "publish"})
}

// DatamodelDatasets lists the datasets of a data model.
func (t *Tenant) DatamodelDatasets(ctx context.Context, id string) ([]models.Dataset, error) {
	var list []models.Dataset
	if err := t.client.GetJSON(ctx, "/api/v2/datamodels/"+url.PathEscape(id)+"/schema/datasets", nil, &list); err != nil {
		return nil, fmt.Errorf("listing datasets of %s: %w", id, err)
	}
	return list, nil
}

// DatasetTables lists the tables of one dataset.
func (t *Tenant) DatasetTables(ctx context.Context, datamodelID, datasetID string) ([]models.Table, error) {
	path := "/api/v2/datamodels/" + url.PathEscape(datamodelID) + "/schema/datasets/" + url.PathEscape(datasetID) + "/tables"
	var list []models.Table
	if err := t.client.GetJSON(ctx, path, nil, &list); err != nil {
		return nil, fmt.Errorf("listing tables of dataset %s: %w", datasetID, err)
	}
	return list, nil
}

// CreateSchedule creates a build schedule for a data model.
func (t *Tenant) CreateSchedule(ctx context.Context, datamodelID string, payload models.SchedulePayload) (map[string]any, error) {
	var resp map[string]any
	out := t.client.Post(ctx, "/api/v2/datamodels/"+url.PathEscape(datamodelID)+"/schedule", payload)
	if err := out.Err(); err != nil {
		return nil, fmt.Errorf("creating schedule: %w", err)
	}
	if len(out.Body) > 0 {
		if err := out.Decode(&resp); err != nil {
			return nil, err
		}
	}
	return resp, nil
}
