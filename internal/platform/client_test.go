package platform

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rflorenc/sisense-workbench/internal/models"
)

func newTestClient(ts *httptest.Server) *Client {
	return newClient(ts.URL, "secret-token", ts.Client().Transport, nil)
}

func TestClient_Get_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer ts.Close()

	out := newTestClient(ts).Get(context.Background(), "/api/v1/users/loggedin", nil)
	if out.Kind != Success {
		t.Fatalf("Kind = %v, want success", out.Kind)
	}
	if string(out.Body) != `{"status":"ok"}` {
		t.Errorf("body = %q, want {\"status\":\"ok\"}", string(out.Body))
	}
}

func TestClient_BearerHeader(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
			t.Errorf("Authorization = %q, want Bearer secret-token", got)
		}
		w.Write([]byte("{}"))
	}))
	defer ts.Close()

	if err := newTestClient(ts).Get(context.Background(), "/test", nil).Err(); err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
}

func TestClient_ErrorStatusIsValue(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"message":"no access"}}`))
	}))
	defer ts.Close()

	out := newTestClient(ts).Get(context.Background(), "/api/v1/folders", nil)
	if out.Kind != Failure {
		t.Fatalf("Kind = %v, want failure", out.Kind)
	}
	if out.Status != http.StatusForbidden || !out.Is(http.StatusForbidden) {
		t.Errorf("Status = %d, want 403", out.Status)
	}
	if !strings.Contains(out.Message, "no access") {
		t.Errorf("Message = %q, want response body", out.Message)
	}
	if !IsStatus(out.Err(), http.StatusForbidden) {
		t.Errorf("Err() = %v, want StatusError 403", out.Err())
	}
}

func TestClient_NoResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(ts)
	ts.Close()

	out := c.Get(context.Background(), "/api/v1/users", nil)
	if out.Kind != NoResponse {
		t.Fatalf("Kind = %v, want no-response", out.Kind)
	}
	if out.Err() == nil {
		t.Error("Err() = nil, want transport error")
	}
	if out.Is(0) {
		t.Error("Is(0) on no-response should be false")
	}
}

func TestClient_QueryAppendsToExistingQuery(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("adminAccess") != "true" || r.URL.Query().Get("x") != "1" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		w.Write([]byte("{}"))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	c.Get(context.Background(), "/api/shares/dashboard/d1?adminAccess=true", map[string][]string{"x": {"1"}})
}

func TestClient_Post(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %s, want application/json", r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		var got map[string]string
		json.Unmarshal(body, &got)
		if got["name"] != "Analysts" {
			t.Errorf("body = %s", body)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"_id":"g1"}`))
	}))
	defer ts.Close()

	out := newTestClient(ts).Post(context.Background(), "/api/v1/groups", map[string]string{"name": "Analysts"})
	if out.Status != 201 {
		t.Errorf("status = %d, want 201", out.Status)
	}
	var g models.Group
	if err := out.Decode(&g); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if g.ID != "g1" {
		t.Errorf("ID = %q, want g1", g.ID)
	}
}

func TestClient_Methods(t *testing.T) {
	var got []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	ctx := context.Background()
	c := newTestClient(ts)
	c.Put(ctx, "/x", map[string]int{})
	c.Patch(ctx, "/x", map[string]int{})
	c.Delete(ctx, "/x")
	want := []string{"PUT", "PATCH", "DELETE"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("methods = %v, want %v", got, want)
	}
}

func TestOutcome_DecodeEmptyBody(t *testing.T) {
	out := Outcome{Kind: Success, Method: "GET", Path: "/x", Status: 204}
	var v map[string]any
	if err := out.Decode(&v); err == nil {
		t.Error("Decode of empty body should fail")
	}
}

func TestRedact(t *testing.T) {
	got := redact([]byte(`{"email":"a@x.com","password":"p","nested":[{"Token":"t"}]}`))
	if strings.Contains(got, `"p"`) || strings.Contains(got, `"t"`) {
		t.Errorf("redact leaked a secret: %s", got)
	}
	if !strings.Contains(got, "a@x.com") {
		t.Errorf("redact dropped a plain field: %s", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		expect string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"long", "hello world", 5, "hello..."},
		{"empty", "", 5, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := truncate(tc.input, tc.maxLen)
			if got != tc.expect {
				t.Errorf("truncate(%q, %d) = %q, want %q", tc.input, tc.maxLen, got, tc.expect)
			}
		})
	}
}

func TestNewClient(t *testing.T) {
	env := &models.Environment{Domain: "bi.example.com/", Token: "tok", IsSSL: true, Insecure: true}
	c := NewClient(env, nil)
	if c.BaseURL() != "https://bi.example.com" {
		t.Errorf("baseURL = %q, want https://bi.example.com", c.BaseURL())
	}

	env.IsSSL = false
	c = NewClient(env, nil)
	if c.BaseURL() != "http://bi.example.com:30845" {
		t.Errorf("baseURL = %q, want http://bi.example.com:30845", c.BaseURL())
	}
}
