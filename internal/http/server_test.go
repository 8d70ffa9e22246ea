package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"duit/internal/core"
	"duit/internal/docstore/memory"
	"duit/internal/identity"
	"duit/internal/roles"
	"duit/internal/services"
)

type testEnv struct {
	server    *Server
	directory *services.DirectoryService
	ledger    *services.LedgerService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New()
	directory := services.NewDirectoryService(store, nil, roles.Policy{}, core.FamilySettings{}, 10, time.Minute)
	ledger := services.NewLedgerService(store, nil)
	srv := NewServer(":0", directory, ledger, nil, Options{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return &testEnv{server: srv, directory: directory, ledger: ledger}
}

// signIn provisions a user and returns a session cookie for it.
func (e *testEnv) signIn(t *testing.T, uid, email string) *http.Cookie {
	t.Helper()
	if _, err := e.directory.EnsureUser(context.Background(), identity.Identity{
		UID: uid, Email: email, DisplayName: "Test " + uid,
	}); err != nil {
		t.Fatalf("EnsureUser(%s): %v", uid, err)
	}
	token := "tok-" + uid
	e.server.sessions.Set(token, uid)
	return &http.Cookie{Name: sessionCookie, Value: token}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.1:1234"
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.server.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
	}
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode data: %v (body %s)", err, rec.Body.String())
	}
	return out
}

func TestHealthEndpoints(t *testing.T) {
	e := newTestEnv(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := e.do(t, http.MethodGet, path, nil, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

func TestLoginWithoutProvider(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/auth/login", nil, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /auth/login = %d, want 503", rec.Code)
	}
}

func TestRequireUser(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/me", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no cookie: status = %d, want 401", rec.Code)
	}

	rec = e.do(t, http.MethodGet, "/api/me", nil, &http.Cookie{Name: sessionCookie, Value: "bogus"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("stale session: status = %d, want 401", rec.Code)
	}

	cookie := e.signIn(t, "u1", "a@example.com")
	rec = e.do(t, http.MethodGet, "/api/me", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("signed in: status = %d, body %s", rec.Code, rec.Body.String())
	}
	u := decodeData[core.User](t, rec)
	if u.UID != "u1" {
		t.Errorf("me uid = %q, want u1", u.UID)
	}
}

func TestFamilyLifecycle(t *testing.T) {
	e := newTestEnv(t)
	owner := e.signIn(t, "owner", "a@example.com")
	friend := e.signIn(t, "friend", "b@x.com")

	rec := e.do(t, http.MethodPost, "/api/families", map[string]string{"name": "Keluarga"}, owner)
	if rec.Code != http.StatusOK {
		t.Fatalf("create family: status = %d, body %s", rec.Code, rec.Body.String())
	}
	family := decodeData[core.Family](t, rec)

	base := "/api/families/" + family.ID

	rec = e.do(t, http.MethodGet, base, nil, friend)
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-member get family: status = %d, want 403", rec.Code)
	}

	rec = e.do(t, http.MethodPost, base+"/members", map[string]string{"email": "b@x.com", "role": "member"}, owner)
	if rec.Code != http.StatusOK {
		t.Fatalf("invite: status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "b@x.com") {
		t.Errorf("invite response should name the email: %s", rec.Body.String())
	}

	rec = e.do(t, http.MethodPost, base+"/members", map[string]string{"email": "b@x.com"}, owner)
	if rec.Code != http.StatusConflict {
		t.Errorf("repeat invite: status = %d, want 409", rec.Code)
	}

	rec = e.do(t, http.MethodPost, base+"/members", map[string]string{"email": "nobody@x.com"}, owner)
	if rec.Code != http.StatusNotFound {
		t.Errorf("invite unregistered: status = %d, want 404", rec.Code)
	}

	rec = e.do(t, http.MethodGet, base+"/members", nil, friend)
	if rec.Code != http.StatusOK {
		t.Fatalf("list members: status = %d, body %s", rec.Code, rec.Body.String())
	}
	list := decodeData[services.MemberList](t, rec)
	if len(list.Members) != 2 {
		t.Errorf("members = %d, want 2", len(list.Members))
	}

	rec = e.do(t, http.MethodPatch, base+"/members/friend", map[string]string{"role": "admin"}, owner)
	if rec.Code != http.StatusOK {
		t.Fatalf("change role: status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodPatch, base+"/members/owner", map[string]string{"role": "viewer"}, owner)
	if rec.Code != http.StatusForbidden {
		t.Errorf("self role change: status = %d, want 403", rec.Code)
	}

	rec = e.do(t, http.MethodDelete, base+"/members/friend", nil, owner)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove member: status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodGet, base+"/members", nil, owner)
	list = decodeData[services.MemberList](t, rec)
	if len(list.Members) != 1 {
		t.Errorf("members after removal = %d, want 1", len(list.Members))
	}
}

func TestMemberListCacheInvalidation(t *testing.T) {
	e := newTestEnv(t)
	owner := e.signIn(t, "owner", "a@example.com")
	e.signIn(t, "friend", "b@x.com")

	rec := e.do(t, http.MethodPost, "/api/families", map[string]string{"name": "Keluarga"}, owner)
	family := decodeData[core.Family](t, rec)
	base := "/api/families/" + family.ID

	// Prime the cache.
	rec = e.do(t, http.MethodGet, base+"/members", nil, owner)
	if rec.Code != http.StatusOK {
		t.Fatalf("list members: %d", rec.Code)
	}
	if e.server.memberCache.Size() != 1 {
		t.Fatalf("cache size = %d, want 1", e.server.memberCache.Size())
	}

	// A roster mutation must drop the cached roster.
	rec = e.do(t, http.MethodPost, base+"/members", map[string]string{"email": "b@x.com"}, owner)
	if rec.Code != http.StatusOK {
		t.Fatalf("invite: %d, body %s", rec.Code, rec.Body.String())
	}
	if e.server.memberCache.Size() != 0 {
		t.Errorf("cache size after invite = %d, want 0", e.server.memberCache.Size())
	}

	rec = e.do(t, http.MethodGet, base+"/members", nil, owner)
	list := decodeData[services.MemberList](t, rec)
	if len(list.Members) != 2 {
		t.Errorf("members after invite = %d, want 2", len(list.Members))
	}
}

func TestLedgerEndpoints(t *testing.T) {
	e := newTestEnv(t)
	owner := e.signIn(t, "owner", "a@example.com")

	rec := e.do(t, http.MethodPost, "/api/families", map[string]string{"name": "Keluarga"}, owner)
	family := decodeData[core.Family](t, rec)
	base := "/api/families/" + family.ID

	rec = e.do(t, http.MethodPost, base+"/wallets", map[string]any{"name": "Dompet", "amount": "100.000"}, owner)
	if rec.Code != http.StatusOK {
		t.Fatalf("create wallet: status = %d, body %s", rec.Code, rec.Body.String())
	}
	wallet := decodeData[core.Wallet](t, rec)
	if wallet.Amount.Units != 100000 {
		t.Errorf("wallet amount = %d, want 100000 (parsed from formatted string)", wallet.Amount.Units)
	}

	rec = e.do(t, http.MethodPost, base+"/budgets", map[string]any{"name": "Belanja", "amount": 0}, owner)
	if rec.Code != http.StatusOK {
		t.Fatalf("create budget: status = %d, body %s", rec.Code, rec.Body.String())
	}
	budget := decodeData[core.Budget](t, rec)

	rec = e.do(t, http.MethodPost, base+"/transfers", map[string]any{
		"sourceId": wallet.ID, "destId": budget.ID, "amount": 50000,
	}, owner)
	if rec.Code != http.StatusOK {
		t.Fatalf("transfer: status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodPost, base+"/transfers", map[string]any{
		"sourceId": budget.ID, "destId": budget.ID, "amount": 1000,
	}, owner)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("same endpoint transfer: status = %d, want 422", rec.Code)
	}

	today := time.Now().Format("2006-01-02")
	rec = e.do(t, http.MethodPost, base+"/transactions", map[string]any{
		"type": "expense", "targetId": budget.ID, "amount": 20000, "description": "Sayur", "date": today,
	}, owner)
	if rec.Code != http.StatusOK {
		t.Fatalf("record expense: status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodGet, base+"/transactions", nil, owner)
	txs := decodeData[[]core.Transaction](t, rec)
	if len(txs) != 1 {
		t.Fatalf("transactions = %d, want 1", len(txs))
	}
	if txs[0].Amount.Units != 20000 || txs[0].Kind != core.Expense {
		t.Errorf("transaction = %+v", txs[0])
	}

	rec = e.do(t, http.MethodGet, base+"/budgets", nil, owner)
	budgets := decodeData[[]core.Budget](t, rec)
	if len(budgets) != 1 || budgets[0].Amount.Units != 30000 {
		t.Errorf("budget balance = %+v, want 30000", budgets)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter()
	defer rl.stop()

	for i := 0; i < 60; i++ {
		if !rl.allow("198.51.100.7") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.allow("198.51.100.7") {
		t.Error("request 61 within a minute should be rejected")
	}
	if !rl.allow("198.51.100.8") {
		t.Error("a different client must not share the limit")
	}
}

func TestBadRequestBodies(t *testing.T) {
	e := newTestEnv(t)
	owner := e.signIn(t, "owner", "a@example.com")

	tests := []struct {
		name string
		body string
	}{
		{"not json", "not-json"},
		{"unknown field", `{"nama": "x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/families", strings.NewReader(tt.body))
			req.RemoteAddr = fmt.Sprintf("192.0.2.%d:1234", len(tt.name))
			req.AddCookie(owner)
			rec := httptest.NewRecorder()
			e.server.Server.Handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}
