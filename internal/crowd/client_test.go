package crowd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"identity-sweeper/internal/logging"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(logging.New("error"), srv.URL, "svc-cleanup", "secret-token"), srv
}

func TestListActiveUsers_ParsesAndFilters(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/usermanagement/1/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("restriction"); got != "active=true" {
			t.Errorf("expected restriction active=true, got %q", got)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "svc-cleanup" || pass != "secret-token" {
			t.Error("expected basic auth credentials on request")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"users":[
			{"name":"alice","display-name":"Alice","email":"alice@example.com","active":true},
			{"name":"bob","active":true},
			{"name":"stale","active":false}
		]}`))
	}))

	users, err := c.ListActiveUsers(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 active users, got %d", len(users))
	}
	if users[0].Name != "alice" || users[0].Email != "alice@example.com" {
		t.Errorf("unexpected first user: %+v", users[0])
	}
	if users[1].Name != "bob" {
		t.Errorf("unexpected second user: %+v", users[1])
	}
}

func TestListActiveUsers_BackendError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))

	if _, err := c.ListActiveUsers(context.Background()); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}

func TestLastLogin_PresentAbsentMalformed(t *testing.T) {
	attrs := map[string]string{
		"alice": `{"attributes":[
			{"name":"invalidPasswordAttempts","values":["0"]},
			{"name":"login.lastLoginMillis","values":["1714521600000"]}
		]}`,
		"carol": `{"attributes":[{"name":"invalidPasswordAttempts","values":["0"]}]}`,
		"mallory": `{"attributes":[{"name":"login.lastLoginMillis","values":["not-a-number"]}]}`,
	}

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/usermanagement/1/user/attribute" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, ok := attrs[r.URL.Query().Get("username")]
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))

	ctx := context.Background()

	got, ok, err := c.LastLogin(ctx, "alice")
	if err != nil || !ok {
		t.Fatalf("expected record for alice, got ok=%v err=%v", ok, err)
	}
	want := time.UnixMilli(1714521600000).UTC()
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	_, ok, err = c.LastLogin(ctx, "carol")
	if err != nil {
		t.Fatalf("unexpected error for carol: %v", err)
	}
	if ok {
		t.Error("expected no last-login record for carol")
	}

	if _, _, err := c.LastLogin(ctx, "mallory"); err == nil {
		t.Error("expected error for malformed millis value")
	}

	if _, _, err := c.LastLogin(ctx, "ghost"); err == nil {
		t.Error("expected error for unknown user")
	}
}

func TestDeactivateUser_ReadModifyWrite(t *testing.T) {
	var putBody []byte
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/usermanagement/1/user" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("username") != "alice" {
			t.Errorf("unexpected username %q", r.URL.Query().Get("username"))
		}
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"name":"alice","first-name":"Alice","last-name":"Doe","display-name":"Alice Doe","email":"alice@example.com","active":true}`))
		case http.MethodPut:
			putBody, _ = json.Marshal(decodeUser(t, r))
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))

	if err := c.DeactivateUser(context.Background(), "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sent crowdUser
	if err := json.Unmarshal(putBody, &sent); err != nil {
		t.Fatalf("failed to decode PUT body: %v", err)
	}
	if sent.Active {
		t.Error("expected PUT body to carry active=false")
	}
	if sent.Name != "alice" || sent.Email != "alice@example.com" || sent.DisplayName != "Alice Doe" {
		t.Errorf("expected full entity round-trip, got %+v", sent)
	}
}

func decodeUser(t *testing.T, r *http.Request) crowdUser {
	t.Helper()
	var u crowdUser
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		t.Fatalf("failed to decode request body: %v", err)
	}
	return u
}

func TestDeactivateUser_PutFailureSurfaced(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"name":"alice","active":true}`))
		case http.MethodPut:
			http.Error(w, "insufficient permissions", http.StatusForbidden)
		}
	}))

	if err := c.DeactivateUser(context.Background(), "alice"); err == nil {
		t.Fatal("expected error when the backend rejects the update")
	}
}

func TestCurrentUsername(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/api/2/myself" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"svc-cleanup","displayName":"Cleanup Robot"}`))
	}))

	name, err := c.CurrentUsername(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "svc-cleanup" {
		t.Errorf("expected svc-cleanup, got %q", name)
	}
}

func TestCurrentUsername_EmptyName(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))

	if _, err := c.CurrentUsername(context.Background()); err == nil {
		t.Fatal("expected error on empty invoker name")
	}
}
