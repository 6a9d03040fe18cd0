package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rflorenc/sisense-workbench/internal/models"
)

func newTestTenant(t *testing.T, mux *http.ServeMux) *Tenant {
	t.Helper()
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return NewTenantAt("test", ts.URL, "secret-token", nil)
}

// firstPage writes body for the first page and an empty list for later ones.
func firstPage(w http.ResponseWriter, r *http.Request, body string) {
	if skip, _ := strconv.Atoi(r.URL.Query().Get("skip")); skip > 0 {
		w.Write([]byte(`[]`))
		return
	}
	w.Write([]byte(body))
}

func TestTenant_Navver(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/navver", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"folders":[{"oid":"f1","name":"Root","folders":[{"oid":"f2","name":"Child"}],
			"dashboards":[{"oid":"d1","title":"Sales"}]}]}`))
	})
	forest, err := newTestTenant(t, mux).Navver(context.Background())
	require.NoError(t, err)
	require.Len(t, forest, 1)
	assert.Equal(t, "Child", forest[0].Folders[0].Name)
	assert.Equal(t, "d1", forest[0].Dashboards[0].OID)
}

func TestTenant_NavverWithoutFolders(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/navver", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"dashboards":[]}`))
	})
	_, err := newTestTenant(t, mux).Navver(context.Background())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestTenant_FindUserByEmail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "groups,role", r.URL.Query().Get("expand"))
		firstPage(w, r, `[{"_id":"u1","email":"alice@x.com"},{"_id":"u2","email":"bob@x.com"}]`)
	})
	tenant := newTestTenant(t, mux)

	u, err := tenant.FindUserByEmail(context.Background(), "bob@x.com")
	require.NoError(t, err)
	assert.Equal(t, "u2", u.ID)

	_, err = tenant.FindUserByEmail(context.Background(), "carol@x.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTenant_DashboardSharesAdminAccess(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/shares/dashboard/d1", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("adminAccess") == "true" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(`{"owner":{"_id":"u1","userName":"alice"},"sharesTo":[{"shareId":"g1","type":"group","rule":"view"}]}`))
	})
	tenant := newTestTenant(t, mux)

	_, out := tenant.GetDashboardShares(context.Background(), "d1", true)
	assert.True(t, out.Is(http.StatusForbidden))

	shares, out := tenant.GetDashboardShares(context.Background(), "d1", false)
	require.True(t, out.OK())
	assert.Equal(t, "u1", shares.Owner.ID)
	assert.Equal(t, "group", shares.SharesTo[0].Type)
}

func TestTenant_ImportDashboardsQuery(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/dashboards/import/bulk", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("republish"))
		assert.Equal(t, "overwrite", r.URL.Query().Get("action"))
		var body []map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		assert.Len(t, body, 2)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"succeded":[{"oid":"n1","title":"A"}],"skipped":[],"failed":{}}`))
	})
	resp, out := newTestTenant(t, mux).ImportDashboards(context.Background(),
		[]models.DashboardExport{{"oid": "a", "title": "A"}, {"oid": "b", "title": "B"}}, "overwrite", true)
	require.True(t, out.OK())
	assert.Equal(t, "n1", resp.Succeeded[0].OID)
}

func TestTenant_ExportDatamodelDependencies(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/datamodel-exports/schema", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "m1", q.Get("datamodelId"))
		assert.Equal(t, "schema-latest", q.Get("type"))
		assert.Equal(t, "dataContext,scopeConfiguration", q.Get("dependenciesIdsToInclude"))
		w.Write([]byte(`{"oid":"m1","title":"Sales","type":"extract"}`))
	})
	schema, err := newTestTenant(t, mux).ExportDatamodel(context.Background(), "m1", []string{"dataContext", "scopeConfiguration"})
	require.NoError(t, err)
	assert.Equal(t, "Sales", schema.Title())
	assert.Equal(t, "extract", schema.Type())
}

func TestTenant_DatamodelSharesByType(t *testing.T) {
	var written []string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/elasticubes/localhost/SalesCube/permissions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			written = append(written, "PUT extract")
			return
		}
		w.Write([]byte(`{"shares":[{"partyId":"u1","type":"user","permission":"a"}]}`))
	})
	mux.HandleFunc("/api/v1/elasticubes/live/m2/permissions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			b, _ := io.ReadAll(r.Body)
			written = append(written, "PATCH live "+string(b))
			return
		}
		w.Write([]byte(`[{"partyId":"g1","type":"group","permission":"r"}]`))
	})
	tenant := newTestTenant(t, mux)
	ctx := context.Background()

	extract := models.Datamodel{OID: "m1", Title: "SalesCube", Type: "extract"}
	live := models.Datamodel{OID: "m2", Title: "Live", Type: "live"}

	shares, err := tenant.DatamodelShares(ctx, extract)
	require.NoError(t, err)
	assert.Equal(t, "u1", shares[0].PartyID)

	shares, err = tenant.DatamodelShares(ctx, live)
	require.NoError(t, err)
	assert.Equal(t, "r", shares[0].Permission)

	assert.True(t, tenant.SetDatamodelShares(ctx, extract, shares).OK())
	assert.True(t, tenant.SetDatamodelShares(ctx, live, shares).OK())
	require.Len(t, written, 2)
	assert.Equal(t, "PUT extract", written[0])
	assert.Contains(t, written[1], `"partyId":"g1"`)
}

func TestTenant_ListResources(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/groups", func(w http.ResponseWriter, r *http.Request) {
		firstPage(w, r, `[{"_id":"g1","name":"Analysts"}]`)
	})
	tenant := newTestTenant(t, mux)

	res, err := tenant.ListResources(context.Background(), "groups")
	require.NoError(t, err)
	assert.Equal(t, "Analysts", res[0]["name"])

	_, err = tenant.ListResources(context.Background(), "widgets")
	assert.Error(t, err)

	rt, ok := ResourceType("groups")
	require.True(t, ok)
	assert.True(t, rt.Skip["Everyone"])
}

func TestTenant_ListUsersFollowsPages(t *testing.T) {
	const total = 120
	var skips []string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		skips = append(skips, q.Get("skip"))
		limit, err := strconv.Atoi(q.Get("limit"))
		assert.NoError(t, err)
		skip, err := strconv.Atoi(q.Get("skip"))
		assert.NoError(t, err)
		page := []models.User{}
		for i := skip; i < skip+limit && i < total; i++ {
			page = append(page, models.User{ID: fmt.Sprintf("u%d", i), Email: fmt.Sprintf("user%d@x.com", i)})
		}
		json.NewEncoder(w).Encode(page)
	})
	tenant := newTestTenant(t, mux)

	users, err := tenant.ListUsers(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, users, total)
	assert.Equal(t, "u0", users[0].ID)
	assert.Equal(t, "u119", users[total-1].ID)
	assert.Equal(t, []string{"0", "50", "100", "150"}, skips)

	skips = nil
	tenant.SetPageSize(40)
	u, err := tenant.FindUserByEmail(context.Background(), "user110@x.com")
	require.NoError(t, err)
	assert.Equal(t, "u110", u.ID)
	assert.Equal(t, []string{"0", "40", "80", "120"}, skips)
}

func TestTenant_ListingsSendPageParams(t *testing.T) {
	paths := []string{"/api/v1/groups", "/api/v1/folders", "/api/v2/datamodels/schema"}
	seen := map[string]int{}
	mux := http.NewServeMux()
	for _, p := range paths {
		mux.HandleFunc(p, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "10", r.URL.Query().Get("limit"), r.URL.Path)
			seen[r.URL.Path]++
			firstPage(w, r, `[{"_id":"x1","oid":"x1","name":"One","title":"One"}]`)
		})
	}
	tenant := newTestTenant(t, mux)
	tenant.SetPageSize(10)
	ctx := context.Background()

	groups, err := tenant.ListGroups(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 1)
	folders, err := tenant.ListFolders(ctx)
	require.NoError(t, err)
	assert.Len(t, folders, 1)
	dms, err := tenant.ListDatamodels(ctx)
	require.NoError(t, err)
	assert.Len(t, dms, 1)
	for _, p := range paths {
		assert.Equal(t, 2, seen[p], p)
	}
}

func TestTenant_ImportDatamodelUndecodableBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/datamodel-imports/schema", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`<html>created</html>`))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	log, hook := logtest.NewNullLogger()
	tenant := NewTenantAt("test", ts.URL, "tok", log)

	dm, out := tenant.ImportDatamodel(context.Background(), models.DatamodelSchema{"title": "Sales"})
	assert.True(t, out.OK())
	assert.Empty(t, dm.OID)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Contains(t, entry.Message, "could not be decoded")
}
