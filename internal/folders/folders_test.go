package folders

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rflorenc/sisense-workbench/internal/models"
	"github.com/rflorenc/sisense-workbench/internal/platform"
)

func sampleForest() []models.FolderNode {
	return []models.FolderNode{{
		OID: "root", Name: "root",
		Folders: []models.FolderNode{
			{OID: "a", Name: "A",
				Dashboards: []models.DashboardRef{{OID: "da", Title: "A board"}},
				Folders: []models.FolderNode{
					{OID: "a1", Name: "A1", Dashboards: []models.DashboardRef{{OID: "d1", Title: "Sales"}},
						Folders: []models.FolderNode{{OID: "a1x", Name: "A1x"}}},
					{OID: "a2", Name: "A2", Dashboards: []models.DashboardRef{{OID: "d2", Title: "Ops"}},
						Folders: []models.FolderNode{{OID: "a2x", Name: "A2x"}}},
				}},
			{OID: "b", Name: "B", Dashboards: []models.DashboardRef{{OID: "db", Title: "B board"}}},
		},
	}}
}

func folderIDs(c *Collection) []string {
	var ids []string
	for _, f := range c.Folders {
		ids = append(ids, f.ID)
	}
	return ids
}

func TestLocateAndCollect_Neighbourhood(t *testing.T) {
	c := LocateAndCollect(sampleForest(), "A1")
	require.True(t, c.Found)

	ids := folderIDs(c)
	assert.ElementsMatch(t, []string{"a1", "a1x", "a", "a2", "a2x"}, ids, "self, subtree, parent, siblings fully recursed")
	assert.NotContains(t, ids, "b", "uncle is not collected")
	assert.NotContains(t, ids, "root", "grandparent is not collected")
	assert.Equal(t, "a1", ids[0], "target is collected first")

	var titles []string
	for _, d := range c.Dashboards {
		titles = append(titles, d.Title)
	}
	assert.ElementsMatch(t, []string{"Sales", "A board", "Ops"}, titles)
	assert.True(t, c.HasFolder("a2", "A2"))
}

func TestLocateAndCollect_NoDuplicates(t *testing.T) {
	forest := sampleForest()
	// The same dashboard is linked from two folders.
	forest[0].Folders[0].Folders[1].Dashboards = append(forest[0].Folders[0].Folders[1].Dashboards,
		models.DashboardRef{OID: "d1", Title: "Sales"})

	c := LocateAndCollect(forest, "A1")
	seenF := map[models.FolderKey]int{}
	for _, f := range c.Folders {
		seenF[f]++
	}
	for k, n := range seenF {
		assert.Equal(t, 1, n, "folder %v collected twice", k)
	}
	seenD := map[models.DashboardKey]int{}
	for _, d := range c.Dashboards {
		seenD[d]++
	}
	assert.Equal(t, 1, seenD[models.DashboardKey{ID: "d1", Title: "Sales"}])
}

func TestLocateAndCollect_RootTarget(t *testing.T) {
	c := LocateAndCollect(sampleForest(), "B")
	require.True(t, c.Found)
	assert.ElementsMatch(t, []string{"b", "root", "a", "a1", "a1x", "a2", "a2x"}, folderIDs(c),
		"parent of B is root, whose subtree is everything")

	c = LocateAndCollect(sampleForest(), "root")
	assert.Len(t, c.Folders, 7)
}

func TestLocateAndCollect_FirstMatchWins(t *testing.T) {
	forest := []models.FolderNode{
		{OID: "x1", Name: "Reports", Folders: []models.FolderNode{{OID: "x1c", Name: "child"}}},
		{OID: "x2", Name: "Reports"},
	}
	c := LocateAndCollect(forest, "Reports")
	assert.Equal(t, []string{"x1", "x1c"}, folderIDs(c))
}

func TestLocateAndCollect_NotFound(t *testing.T) {
	c := LocateAndCollect(sampleForest(), "Z")
	assert.False(t, c.Found)
	assert.Empty(t, c.Folders)
	assert.Empty(t, c.Dashboards)
}

func TestHiddenFolderIDs(t *testing.T) {
	dashboards := []models.DashboardSummary{
		{OID: "d1", ParentFolder: "f1"},
		{OID: "d2", ParentFolder: "f2"},
		{OID: "d3"},
	}
	hidden := HiddenFolderIDs(dashboards, []models.Folder{{OID: "f1"}})
	assert.Equal(t, map[string]bool{"f2": true}, hidden)
}

// fakeTenant serves the endpoints used by ownership changes from in-memory state.
type fakeTenant struct {
	mu              sync.Mutex
	forest          []models.FolderNode
	hiddenForest    bool // navver omits the tree until access is granted
	folderOwner     map[string]string
	dashboardOwner  map[string]string
	searchItems     []models.DashboardSummary
	visibleFolders  []models.Folder
	shareCalls      []string
	changeOwnerURLs []string
	navverCalls     int
}

func (f *fakeTenant) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users", func(w http.ResponseWriter, r *http.Request) {
		firstPage(w, r, `[{"_id":"me","email":"admin@x.com"},{"_id":"u9","email":"new@x.com"}]`)
	})
	mux.HandleFunc("/api/v1/navver", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.navverCalls++
		if f.hiddenForest {
			json.NewEncoder(w).Encode(map[string]any{"folders": []models.FolderNode{}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"folders": f.forest})
	})
	mux.HandleFunc("/api/v1/folders", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(pageOf(r, f.visibleFolders))
	})
	mux.HandleFunc("/api/v1/folders/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id := strings.TrimPrefix(r.URL.Path, "/api/v1/folders/")
		if r.Method == http.MethodPatch {
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			f.folderOwner[id] = body["owner"]
		}
		json.NewEncoder(w).Encode(models.Folder{OID: id, Owner: f.folderOwner[id]})
	})
	mux.HandleFunc("/api/v1/dashboards/searches", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			QueryOptions struct{ Skip int } `json:"queryOptions"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		items := f.searchItems
		if body.QueryOptions.Skip > 0 {
			items = nil
		}
		json.NewEncoder(w).Encode(map[string]any{"items": items})
	})
	mux.HandleFunc("/api/v1/dashboards/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/dashboards/")
		if id, ok := strings.CutSuffix(rest, "/change_owner"); ok {
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			f.dashboardOwner[id] = body["ownerId"]
			f.changeOwnerURLs = append(f.changeOwnerURLs, r.URL.String())
			w.Write([]byte(`{}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"oid": rest, "owner": f.dashboardOwner[rest]})
	})
	mux.HandleFunc("/api/shares/dashboard/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		b, _ := io.ReadAll(r.Body)
		f.shareCalls = append(f.shareCalls, r.URL.Path+" "+string(b))
		f.hiddenForest = false
		w.Write([]byte(`{}`))
	})
	return mux
}

func newFakeTenant(t *testing.T) (*fakeTenant, *platform.Tenant) {
	t.Helper()
	f := &fakeTenant{
		forest:         sampleForest(),
		folderOwner:    map[string]string{"a1": "u1", "a1x": "u1", "a": "u1", "a2": "u9", "a2x": "u1"},
		dashboardOwner: map[string]string{"d1": "me", "da": "u1", "d2": "u9"},
	}
	ts := httptest.NewServer(f.handler())
	t.Cleanup(ts.Close)
	return f, platform.NewTenantAt("test", ts.URL, "tok", nil)
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestChangeOwnership_Idempotent(t *testing.T) {
	f, tenant := newFakeTenant(t)
	owner := NewOwner(tenant, quietLogger())
	req := Request{RunningUser: "admin@x.com", FolderName: "A1", NewOwner: "new@x.com", ChangeDashboardOwnership: true}

	first, err := owner.ChangeOwnership(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 4, first.TotalFoldersChanged, "a2 is already owned by the new owner")
	assert.Equal(t, 1, first.FoldersSkipped)
	assert.Equal(t, 2, first.TotalDashboardsChanged)
	assert.Equal(t, 1, first.DashboardsSkipped)
	assert.Empty(t, first.Failed)

	require.Len(t, f.changeOwnerURLs, 2)
	for _, u := range f.changeOwnerURLs {
		if strings.Contains(u, "/d1/") {
			assert.NotContains(t, u, "adminAccess", "caller owns d1")
		} else {
			assert.Contains(t, u, "adminAccess=true")
		}
	}

	second, err := owner.ChangeOwnership(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, second.TotalFoldersChanged)
	assert.Equal(t, 0, second.TotalDashboardsChanged)
	assert.Equal(t, 5, second.FoldersSkipped)
	assert.Equal(t, 3, second.DashboardsSkipped)
}

func TestChangeOwnership_FallbackGrantThenRetryOnce(t *testing.T) {
	f, tenant := newFakeTenant(t)
	f.hiddenForest = true
	f.visibleFolders = []models.Folder{{OID: "root"}}
	f.searchItems = []models.DashboardSummary{
		{OID: "d1", Title: "Sales", ParentFolder: "a1",
			Shares: []models.DashboardShare{{ShareID: "g1", Type: "group", Rule: "view"}}},
		{OID: "d0", Title: "Visible", ParentFolder: "root"},
	}

	res, err := NewOwner(tenant, quietLogger()).ChangeOwnership(context.Background(),
		Request{RunningUser: "admin@x.com", FolderName: "A1", NewOwner: "new@x.com"})
	require.NoError(t, err)
	assert.Equal(t, 2, f.navverCalls, "tree searched, then retried exactly once")
	assert.Equal(t, 1, res.AccessGranted)
	require.Len(t, f.shareCalls, 1)
	assert.Contains(t, f.shareCalls[0], "/api/shares/dashboard/d1")
	assert.Contains(t, f.shareCalls[0], `{"shareId":"g1","type":"group","rule":"view","subscribe":false}`)
	assert.Contains(t, f.shareCalls[0], `{"shareId":"me","type":"user","rule":"edit","subscribe":false}`)
	assert.Equal(t, 4, res.TotalFoldersChanged)
	assert.Equal(t, 0, res.TotalDashboardsChanged, "dashboard ownership not requested")
}

func TestChangeOwnership_StillMissing(t *testing.T) {
	f, tenant := newFakeTenant(t)
	_, err := NewOwner(tenant, quietLogger()).ChangeOwnership(context.Background(),
		Request{RunningUser: "admin@x.com", FolderName: "Nowhere", NewOwner: "new@x.com"})
	assert.True(t, errors.Is(err, ErrFolderNotFound))
	assert.Equal(t, 2, f.navverCalls)
}

func TestChangeOwnership_Validation(t *testing.T) {
	_, tenant := newFakeTenant(t)
	owner := NewOwner(tenant, quietLogger())

	_, err := owner.ChangeOwnership(context.Background(),
		Request{RunningUser: "admin@x.com", FolderName: "A1", NewOwner: "new@x.com", OriginalOwnerRule: "own"})
	assert.Error(t, err)

	_, err = owner.ChangeOwnership(context.Background(),
		Request{RunningUser: "admin@x.com", FolderName: "A1", NewOwner: "ghost@x.com"})
	assert.ErrorIs(t, err, platform.ErrNotFound)

	err = Request{RunningUser: "admin", FolderName: "", NewOwner: "new@x.com"}.Validate()
	assert.ErrorContains(t, err, "running_user")
	assert.ErrorContains(t, err, "folder_name")
}

// pageOf returns the part of items selected by the limit and skip query
// parameters.
func pageOf[T any](r *http.Request, items []T) []T {
	q := r.URL.Query()
	skip, _ := strconv.Atoi(q.Get("skip"))
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = len(items)
	}
	if skip >= len(items) {
		return []T{}
	}
	return items[skip:min(skip+limit, len(items))]
}

// firstPage writes body for the first page and an empty list for later ones.
func firstPage(w http.ResponseWriter, r *http.Request, body string) {
	if skip, _ := strconv.Atoi(r.URL.Query().Get("skip")); skip > 0 {
		w.Write([]byte(`[]`))
		return
	}
	w.Write([]byte(body))
}
