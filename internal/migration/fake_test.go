package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rflorenc/sisense-workbench/internal/models"
	"github.com/rflorenc/sisense-workbench/internal/platform"
)

// recorder keeps the order of requests across both fake tenants.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// index returns the position of the first call starting with prefix, or -1.
func (r *recorder) index(prefix string) int {
	for i, c := range r.list() {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}

func (r *recorder) count(prefix string) int {
	n := 0
	for _, c := range r.list() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// fakeTenant is an in-memory tenant serving the endpoints migrations use.
type fakeTenant struct {
	mu   sync.Mutex
	name string
	rec  *recorder

	groups     []map[string]any
	users      []map[string]any
	roles      []models.Role
	dashboards []models.DashboardSummary
	exports    map[string]map[string]any
	shares     map[string]models.DashboardShares
	datamodels []models.Datamodel
	schemas    map[string]map[string]any
	dmShares   map[string][]models.DatamodelShare // by title (extract) or oid (live)

	groupBulkStatus  int
	userBulkStatus   int
	importFail       map[string]bool // dashboard titles the import rejects
	importSkip       map[string]bool // dashboard titles the import skips
	importNewIDs     bool            // imported dashboards get a new oid
	forbidAdminShare bool            // share writes with adminAccess answer 403
	dmImportBlank    bool            // data model imports answer 201 without a body

	createdUsers []models.NewUserPayload
	sharePosts   map[string][]models.DashboardShare
	ownerChanges map[string]string
	dmSharePuts  map[string][]models.DatamodelShare
	exportDeps   []string
	importBodies int
}

func newFake(t *testing.T, name string, rec *recorder) (*fakeTenant, *platform.Tenant) {
	t.Helper()
	f := &fakeTenant{
		name:         name,
		rec:          rec,
		exports:      map[string]map[string]any{},
		shares:       map[string]models.DashboardShares{},
		schemas:      map[string]map[string]any{},
		dmShares:     map[string][]models.DatamodelShare{},
		importFail:   map[string]bool{},
		importSkip:   map[string]bool{},
		sharePosts:   map[string][]models.DashboardShare{},
		ownerChanges: map[string]string{},
		dmSharePuts:  map[string][]models.DatamodelShare{},
	}
	ts := httptest.NewServer(f.handler())
	t.Cleanup(ts.Close)
	return f, platform.NewTenantAt(name, ts.URL, "tok", nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (f *fakeTenant) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/users/loggedin", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"_id": "me"})
	})
	mux.HandleFunc("/api/v1/groups", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, http.StatusOK, pageOf(r, f.groups))
	})
	mux.HandleFunc("/api/v1/groups/bulk", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.groupBulkStatus != 0 {
			writeJSON(w, f.groupBulkStatus, map[string]any{"error": map[string]string{"message": "group already exists"}})
			return
		}
		var in []map[string]any
		json.NewDecoder(r.Body).Decode(&in)
		var created []map[string]any
		for _, g := range in {
			g["_id"] = fmt.Sprintf("new-g-%d", len(f.groups)+1)
			f.groups = append(f.groups, g)
			created = append(created, g)
		}
		writeJSON(w, http.StatusCreated, created)
	})
	mux.HandleFunc("/api/v1/users", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, http.StatusOK, pageOf(r, f.users))
	})
	mux.HandleFunc("/api/v1/users/bulk", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.userBulkStatus != 0 {
			writeJSON(w, f.userBulkStatus, map[string]string{"detail": "boom"})
			return
		}
		var in []models.NewUserPayload
		json.NewDecoder(r.Body).Decode(&in)
		var created []map[string]any
		for _, p := range in {
			u := map[string]any{"_id": fmt.Sprintf("new-u-%d", len(f.users)+1), "email": p.Email, "groups": p.Groups, "roleId": p.RoleID}
			f.users = append(f.users, u)
			f.createdUsers = append(f.createdUsers, p)
			created = append(created, u)
		}
		writeJSON(w, http.StatusCreated, created)
	})
	mux.HandleFunc("/api/roles", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, f.roles)
	})

	mux.HandleFunc("/api/v1/dashboards/searches", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			QueryOptions struct{ Skip int } `json:"queryOptions"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		items := f.dashboards
		if body.QueryOptions.Skip > 0 {
			items = nil
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	})
	mux.HandleFunc("/api/dashboards/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/dashboards/"), "/export")
		d, ok := f.exports[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "no such dashboard"})
			return
		}
		writeJSON(w, http.StatusOK, d)
	})
	mux.HandleFunc("/api/v1/dashboards/import/bulk", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.importBodies++
		var in []map[string]any
		json.NewDecoder(r.Body).Decode(&in)
		resp := map[string]any{"succeded": []any{}, "skipped": []any{}, "failed": map[string]any{}}
		var ok, skipped, failed []any
		for _, d := range in {
			title, _ := d["title"].(string)
			oid, _ := d["oid"].(string)
			switch {
			case f.importFail[title]:
				failed = append(failed, map[string]any{"oid": oid, "title": title, "error": map[string]string{"message": "bad widget"}})
			case f.importSkip[title]:
				skipped = append(skipped, map[string]string{"oid": oid, "title": title})
			default:
				if f.importNewIDs {
					oid = "t-" + oid
				}
				ok = append(ok, map[string]string{"oid": oid, "title": title})
			}
		}
		if ok != nil {
			resp["succeded"] = ok
		}
		if skipped != nil {
			resp["skipped"] = skipped
		}
		if failed != nil {
			resp["failed"] = map[string]any{"dashboards": failed}
		}
		writeJSON(w, http.StatusCreated, resp)
	})
	mux.HandleFunc("/api/v1/dashboards/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/dashboards/")
		if id, ok := strings.CutSuffix(rest, "/change_owner"); ok {
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			f.ownerChanges[id] = body["ownerId"]
		}
		writeJSON(w, http.StatusOK, map[string]string{})
	})
	mux.HandleFunc("/api/shares/dashboard/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id := strings.TrimPrefix(r.URL.Path, "/api/shares/dashboard/")
		admin := r.URL.Query().Get("adminAccess") == "true"
		if r.Method == http.MethodPost {
			if admin && f.forbidAdminShare {
				writeJSON(w, http.StatusForbidden, map[string]string{"message": "forbidden"})
				return
			}
			var body models.DashboardShares
			json.NewDecoder(r.Body).Decode(&body)
			f.sharePosts[id] = body.SharesTo
			f.shares[id] = models.DashboardShares{Owner: f.shares[id].Owner, SharesTo: body.SharesTo}
			writeJSON(w, http.StatusOK, map[string]string{})
			return
		}
		writeJSON(w, http.StatusOK, f.shares[id])
	})

	mux.HandleFunc("/api/v2/datamodels/schema", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, pageOf(r, f.datamodels))
	})
	mux.HandleFunc("/api/v2/datamodel-exports/schema", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		q := r.URL.Query()
		f.exportDeps = strings.Split(q.Get("dependenciesIdsToInclude"), ",")
		s, ok := f.schemas[q.Get("datamodelId")]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "no such model"})
			return
		}
		writeJSON(w, http.StatusOK, s)
	})
	mux.HandleFunc("/api/v2/datamodel-imports/schema", func(w http.ResponseWriter, r *http.Request) {
		if f.dmImportBlank {
			w.WriteHeader(http.StatusCreated)
			return
		}
		var in map[string]any
		json.NewDecoder(r.Body).Decode(&in)
		writeJSON(w, http.StatusCreated, map[string]any{"oid": in["oid"], "title": in["title"], "type": in["type"]})
	})
	mux.HandleFunc("/api/v2/builds", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]string{"oid": "build-1"})
	})
	mux.HandleFunc("/api/elasticubes/localhost/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		title := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/elasticubes/localhost/"), "/permissions")
		if r.Method == http.MethodPut {
			var body []models.DatamodelShare
			json.NewDecoder(r.Body).Decode(&body)
			f.dmSharePuts[title] = body
			writeJSON(w, http.StatusOK, body)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"shares": f.dmShares[title]})
	})
	mux.HandleFunc("/api/v1/elasticubes/live/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		oid := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/v1/elasticubes/live/"), "/permissions")
		if r.Method == http.MethodPatch {
			var body []models.DatamodelShare
			json.NewDecoder(r.Body).Decode(&body)
			f.dmSharePuts[oid] = body
			writeJSON(w, http.StatusOK, body)
			return
		}
		writeJSON(w, http.StatusOK, f.dmShares[oid])
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.rec != nil {
			f.rec.add(f.name + " " + r.Method + " " + r.URL.Path)
		}
		mux.ServeHTTP(w, r)
	})
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// sleepRecorder replaces the batch pause in tests.
type sleepRecorder struct {
	pauses []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.pauses = append(s.pauses, d)
	return ctx.Err()
}

// newTestMigrator wires a Migrator between two fresh fake tenants.
func newTestMigrator(t *testing.T) (*Migrator, *fakeTenant, *fakeTenant, *recorder, *sleepRecorder) {
	t.Helper()
	rec := &recorder{}
	src, srcTenant := newFake(t, "source", rec)
	dst, dstTenant := newFake(t, "target", rec)
	m := New(srcTenant, dstTenant, quietLogger())
	sr := &sleepRecorder{}
	m.sleep = sr.sleep
	return m, src, dst, rec, sr
}

// seedAnalysts fills the source with the Analysts scenario: one group, two
// users (alice in Analysts, bob without a group), one dashboard shared with
// alice, bob and Analysts.
func seedAnalysts(src, dst *fakeTenant) {
	src.groups = []map[string]any{
		{"_id": "g1", "name": "Analysts", "created": "2024-01-01", "lastUpdated": "2024-01-02", "tenantId": "ten-1"},
		{"_id": "g0", "name": "Everyone"},
		{"_id": "g9", "name": "Admins"},
	}
	src.users = []map[string]any{
		{"_id": "u1", "email": "alice@x.com", "firstName": "Alice", "lastName": "A",
			"role":   map[string]any{"_id": "rs1", "name": "viewer"},
			"groups": []any{map[string]any{"_id": "g1", "name": "Analysts"}, map[string]any{"_id": "g0", "name": "Everyone"}}},
	}
	src.dashboards = []models.DashboardSummary{{OID: "d1", Title: "Sales"}}
	src.exports["d1"] = map[string]any{"oid": "d1", "title": "Sales", "widgets": []any{}}
	src.shares["d1"] = models.DashboardShares{
		Owner: &models.ShareOwner{ID: "u1", UserName: "alice"},
		SharesTo: []models.DashboardShare{
			{ShareID: "u1", Type: "user", Rule: "view"},
			{ShareID: "u2", Type: "user", Rule: "edit"},
			{ShareID: "g1", Type: "group"},
		},
	}

	dst.groups = []map[string]any{{"_id": "t0", "name": "Everyone"}}
	dst.roles = []models.Role{{ID: "r1", Name: "consumer"}, {ID: "r2", Name: "contributor"}, {ID: "r3", Name: "super"}}
	dst.shares["d1"] = models.DashboardShares{SharesTo: []models.DashboardShare{{ShareID: "me", Type: "user", Rule: "edit"}}}
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
