package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/go-user-service/internal/auth"
	"github.com/tbourn/go-user-service/internal/cache"
	"github.com/tbourn/go-user-service/internal/domain"
)

func TestCreateUser_ReturnsUserAndWorkingToken(t *testing.T) {
	e := newEnv(t)

	w := do(t, e.r, http.MethodPost, "/users", map[string]any{
		"name":        "  Ada   Lovelace ",
		"email":       "Ada@Example.COM",
		"password":    "correct-horse",
		"push_token":  "fcm:abc",
		"preferences": map[string]bool{"email": true, "push": false},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	env := decodeAs[AuthResponse](t, w)
	if !env.Success || env.Message != "User created successfully" {
		t.Fatalf("envelope = %+v", env)
	}
	u := env.Data.User
	if u.Name != "Ada Lovelace" || u.Email != "ada@example.com" {
		t.Fatalf("user not normalized: %+v", u)
	}
	if u.PushToken == nil || *u.PushToken != "fcm:abc" {
		t.Fatalf("push token = %v", u.PushToken)
	}
	if !u.Preferences.Email || u.Preferences.Push {
		t.Fatalf("preferences = %+v", u.Preferences)
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Fatalf("response leaks password material: %s", w.Body.String())
	}
	if env.Data.ExpiresAt.Before(time.Now()) {
		t.Fatalf("expires_at in the past: %v", env.Data.ExpiresAt)
	}

	claims, err := auth.NewTokens(testSecret, time.Hour).Parse(env.Data.Token)
	if err != nil {
		t.Fatalf("token does not verify: %v", err)
	}
	if claims.UserID != u.ID {
		t.Fatalf("token subject = %q; want %q", claims.UserID, u.ID)
	}

	w = do(t, e.r, http.MethodGet, "/users/"+u.ID, nil, withToken(env.Data.Token))
	if w.Code != http.StatusOK {
		t.Fatalf("get with fresh token = %d body=%s", w.Code, w.Body.String())
	}
}

func TestCreateUser_PreferenceFlagsDefaultToTrue(t *testing.T) {
	e := newEnv(t)
	w := do(t, e.r, http.MethodPost, "/users", map[string]any{
		"name": "Grace", "email": "grace@example.com", "password": "longpass1",
		"preferences": map[string]any{},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	p := decodeAs[AuthResponse](t, w).Data.User.Preferences
	if !p.Email || !p.Push {
		t.Fatalf("preferences = %+v; want both true", p)
	}
}

func TestCreateUser_Rejections(t *testing.T) {
	e := newEnv(t)
	e.register(t, "Ada", "ada@example.com")

	prefs := map[string]bool{"email": true, "push": true}
	cases := []struct {
		name string
		body any
		code string
	}{
		{"duplicate email differing in case", map[string]any{"name": "Other", "email": " ADA@example.com ", "password": "longpass1", "preferences": prefs}, ErrCodeDuplicateEmail},
		{"missing preferences", map[string]any{"name": "Bob", "email": "bob@example.com", "password": "longpass1"}, ErrCodeValidation},
		{"missing name", map[string]any{"email": "bob@example.com", "password": "longpass1", "preferences": prefs}, ErrCodeValidation},
		{"blank name", map[string]any{"name": "   ", "email": "bob@example.com", "password": "longpass1", "preferences": prefs}, ErrCodeValidation},
		{"email without at", map[string]any{"name": "Bob", "email": "bob.example.com", "password": "longpass1", "preferences": prefs}, ErrCodeValidation},
		{"email without domain", map[string]any{"name": "Bob", "email": "bob@", "password": "longpass1", "preferences": prefs}, ErrCodeValidation},
		{"email without local part", map[string]any{"name": "Bob", "email": "@example.com", "password": "longpass1", "preferences": prefs}, ErrCodeValidation},
		{"short password", map[string]any{"name": "Bob", "email": "bob@example.com", "password": "short", "preferences": prefs}, ErrCodeValidation},
		{"malformed json", `{"name":`, ErrCodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, e.r, http.MethodPost, "/users", tc.body)
			expectFailure(t, w, http.StatusBadRequest, tc.code)
		})
	}

	// the short-password message reaches the client
	w := do(t, e.r, http.MethodPost, "/users", map[string]any{
		"name": "Bob", "email": "bob@example.com", "password": "short", "preferences": prefs,
	})
	if msg := decodeAs[map[string]any](t, w).Message; msg != "password must be at least 8 characters" {
		t.Fatalf("message = %q", msg)
	}
}

func TestLogin(t *testing.T) {
	e := newEnv(t)
	id, _ := e.register(t, "Ada", "ada@example.com")

	w := do(t, e.r, http.MethodPost, "/users/login", map[string]string{"email": "ADA@example.com", "password": "longpass1"})
	if w.Code != http.StatusOK {
		t.Fatalf("login = %d body=%s", w.Code, w.Body.String())
	}
	env := decodeAs[AuthResponse](t, w)
	if env.Message != "Login successful" || env.Data.User.ID != id || env.Data.Token == "" {
		t.Fatalf("envelope = %+v", env)
	}
	if env.Data.User.LastLogin == nil {
		t.Fatalf("last_login not recorded")
	}

	w = do(t, e.r, http.MethodPost, "/users/login", map[string]string{"email": "ada@example.com", "password": "wrong-pass"})
	expectFailure(t, w, http.StatusUnauthorized, ErrCodeAuthentication)
	if msg := decodeAs[map[string]any](t, w).Message; msg != "Invalid credentials" {
		t.Fatalf("message = %q", msg)
	}

	w = do(t, e.r, http.MethodPost, "/users/login", map[string]string{"email": "nobody@example.com", "password": "longpass1"})
	expectFailure(t, w, http.StatusUnauthorized, ErrCodeAuthentication)

	w = do(t, e.r, http.MethodPost, "/users/login", map[string]string{"email": "ada@example.com"})
	expectFailure(t, w, http.StatusBadRequest, ErrCodeValidation)
}

func TestListUsers_ETagRoundTrip(t *testing.T) {
	e := newEnv(t)
	_, tok := e.register(t, "Ada", "ada@example.com")
	e.register(t, "Grace", "grace@example.com")

	w := do(t, e.r, http.MethodGet, "/users", nil, withToken(tok))
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d body=%s", w.Code, w.Body.String())
	}
	env := decodeAs[[]UserResponse](t, w)
	if len(env.Data) != 2 {
		t.Fatalf("len = %d; want 2", len(env.Data))
	}
	etag := w.Header().Get("ETag")
	if !strings.HasPrefix(etag, `W/"users:2:`) {
		t.Fatalf("etag = %q", etag)
	}

	w = do(t, e.r, http.MethodGet, "/users", nil, withToken(tok), withHeader("If-None-Match", etag))
	if w.Code != http.StatusNotModified {
		t.Fatalf("conditional list = %d; want 304", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("304 must have no body, got %q", w.Body.String())
	}

	// a new user changes the tag
	e.register(t, "Linus", "linus@example.com")
	w = do(t, e.r, http.MethodGet, "/users", nil, withToken(tok), withHeader("If-None-Match", etag))
	if w.Code != http.StatusOK {
		t.Fatalf("stale etag = %d; want 200", w.Code)
	}
}

func TestListUsers_RequiresToken(t *testing.T) {
	e := newEnv(t)
	w := do(t, e.r, http.MethodGet, "/users", nil)
	expectFailure(t, w, http.StatusUnauthorized, "unauthorized")
}

func TestGetUser_NotFoundShapes(t *testing.T) {
	e := newEnv(t)
	_, tok := e.register(t, "Ada", "ada@example.com")

	for _, path := range []string{"/users/not-a-uuid", "/users/" + uuid.NewString()} {
		w := do(t, e.r, http.MethodGet, path, nil, withToken(tok))
		expectFailure(t, w, http.StatusNotFound, ErrCodeUserNotFound)
	}
}

func TestGetUser_CanonicalizesID(t *testing.T) {
	e := newEnv(t)
	id, tok := e.register(t, "Ada", "ada@example.com")
	upper := strings.ToUpper(id)

	w := do(t, e.r, http.MethodGet, "/users/"+upper, nil, withToken(tok))
	if w.Code != http.StatusOK {
		t.Fatalf("GET upper-case id = %d (%s)", w.Code, w.Body.String())
	}
	if got := decodeAs[UserResponse](t, w).Data.ID; got != id {
		t.Fatalf("id = %q; want %q", got, id)
	}
	if _, found, _ := e.store.Get(context.Background(), cache.UserKey(upper)); found {
		t.Fatalf("snapshot cached under a non-canonical key")
	}
	if _, found, _ := e.store.Get(context.Background(), cache.UserKey(id)); !found {
		t.Fatalf("snapshot not cached under the canonical key")
	}

	// an update through the upper-case path invalidates the canonical snapshot
	w = do(t, e.r, http.MethodPatch, "/users/"+upper, map[string]string{"name": "Ada King"}, withToken(tok))
	if w.Code != http.StatusOK {
		t.Fatalf("PATCH upper-case id = %d", w.Code)
	}
	w = do(t, e.r, http.MethodGet, "/users/"+id, nil, withToken(tok))
	if got := decodeAs[UserResponse](t, w).Data.Name; got != "Ada King" {
		t.Fatalf("stale name after update via upper-case id: %q", got)
	}
}

func TestUpdateUser_ServesFreshDataAfterWrite(t *testing.T) {
	e := newEnv(t)
	id, tok := e.register(t, "Ada", "ada@example.com")

	// warm the cache
	if w := do(t, e.r, http.MethodGet, "/users/"+id, nil, withToken(tok)); w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	if w := do(t, e.r, http.MethodGet, "/users/"+id+"/preferences", nil, withToken(tok)); w.Code != http.StatusOK {
		t.Fatalf("prefs = %d", w.Code)
	}

	w := do(t, e.r, http.MethodPatch, "/users/"+id, map[string]any{
		"name":        "Ada King",
		"preferences": map[string]bool{"push": false},
	}, withToken(tok))
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d body=%s", w.Code, w.Body.String())
	}
	upd := decodeAs[UserResponse](t, w).Data
	if upd.Name != "Ada King" || upd.Preferences.Push || !upd.Preferences.Email {
		t.Fatalf("updated = %+v", upd)
	}

	got := decodeAs[UserResponse](t, do(t, e.r, http.MethodGet, "/users/"+id, nil, withToken(tok))).Data
	if got.Name != "Ada King" {
		t.Fatalf("stale name after update: %q", got.Name)
	}
	prefs := decodeAs[PreferencesResponse](t, do(t, e.r, http.MethodGet, "/users/"+id+"/preferences", nil, withToken(tok))).Data
	if prefs.Push || !prefs.Email {
		t.Fatalf("stale preferences after update: %+v", prefs)
	}
}

func TestUpdateUser_Rejections(t *testing.T) {
	e := newEnv(t)
	id, tok := e.register(t, "Ada", "ada@example.com")

	expectFailure(t, do(t, e.r, http.MethodPatch, "/users/"+id, map[string]any{}, withToken(tok)),
		http.StatusBadRequest, ErrCodeValidation)
	expectFailure(t, do(t, e.r, http.MethodPatch, "/users/"+id, map[string]any{"name": " "}, withToken(tok)),
		http.StatusBadRequest, ErrCodeValidation)
	expectFailure(t, do(t, e.r, http.MethodPatch, "/users/"+uuid.NewString(), map[string]any{"name": "X"}, withToken(tok)),
		http.StatusNotFound, ErrCodeUserNotFound)
}

func TestSetPushToken(t *testing.T) {
	e := newEnv(t)
	id, tok := e.register(t, "Ada", "ada@example.com")

	expectFailure(t, do(t, e.r, http.MethodPatch, "/users/"+id+"/push_token", map[string]any{}, withToken(tok)),
		http.StatusBadRequest, ErrCodeMissingPushToken)
	expectFailure(t, do(t, e.r, http.MethodPatch, "/users/"+id+"/push_token", nil, withToken(tok)),
		http.StatusBadRequest, ErrCodeMissingPushToken)
	expectFailure(t, do(t, e.r, http.MethodPatch, "/users/"+id+"/push_token", map[string]string{"push_token": "   "}, withToken(tok)),
		http.StatusBadRequest, ErrCodeMissingPushToken)

	w := do(t, e.r, http.MethodPatch, "/users/"+id+"/push_token", map[string]string{"push_token": " apns:xyz "}, withToken(tok))
	if w.Code != http.StatusOK {
		t.Fatalf("set = %d body=%s", w.Code, w.Body.String())
	}
	env := decodeAs[UserResponse](t, w)
	if env.Message != "Push token updated successfully" || env.Data.PushToken == nil || *env.Data.PushToken != "apns:xyz" {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestDeactivateUser(t *testing.T) {
	e := newEnv(t)
	id, tok := e.register(t, "Ada", "ada@example.com")
	otherID, _ := e.register(t, "Grace", "grace@example.com")

	expectFailure(t, do(t, e.r, http.MethodDelete, "/users/"+otherID, nil, withToken(tok)),
		http.StatusForbidden, ErrCodeForbidden)

	w := do(t, e.r, http.MethodDelete, "/users/"+id, nil, withToken(tok))
	if w.Code != http.StatusOK {
		t.Fatalf("deactivate = %d body=%s", w.Code, w.Body.String())
	}
	if msg := decodeAs[map[string]any](t, w).Message; msg != "User deactivated successfully" {
		t.Fatalf("message = %q", msg)
	}

	// the same token no longer authenticates
	expectFailure(t, do(t, e.r, http.MethodGet, "/users/"+otherID, nil, withToken(tok)),
		http.StatusUnauthorized, "user_inactive")

	w = do(t, e.r, http.MethodPost, "/users/login", map[string]string{"email": "ada@example.com", "password": "longpass1"})
	expectFailure(t, w, http.StatusUnauthorized, ErrCodeAuthentication)
	if msg := decodeAs[map[string]any](t, w).Message; msg != "User account is disabled" {
		t.Fatalf("message = %q", msg)
	}

	// the email stays taken
	w = do(t, e.r, http.MethodPost, "/users", map[string]any{
		"name": "Ada", "email": "ada@example.com", "password": "longpass1",
		"preferences": map[string]bool{"email": true, "push": true},
	})
	expectFailure(t, w, http.StatusBadRequest, ErrCodeDuplicateEmail)
}

func TestUserHandlers_StoreErrorsOnWriteAre500(t *testing.T) {
	caller := &domain.User{ID: uuid.NewString(), IsActive: true}
	h := New(failingUsers{err: errDB}, failingIssuer{}, failingStatuses{err: errDB})
	r := mount(h, staticVerifier{u: caller})
	tok := withToken("ignored")

	reqs := []struct {
		method, path string
		body         any
	}{
		{http.MethodPatch, "/users/" + caller.ID, map[string]string{"name": "x"}},
		{http.MethodPatch, "/users/" + caller.ID + "/push_token", map[string]string{"push_token": "x"}},
		{http.MethodDelete, "/users/" + caller.ID, nil},
		{http.MethodPost, "/users/login", map[string]string{"email": "a@example.com", "password": "longpass1"}},
	}
	for _, rq := range reqs {
		w := do(t, r, rq.method, rq.path, rq.body, tok)
		expectFailure(t, w, http.StatusInternalServerError, ErrCodeInternal)
		if strings.Contains(w.Body.String(), errDB.Error()) {
			t.Fatalf("%s %s leaks internal error: %s", rq.method, rq.path, w.Body.String())
		}
	}
}

func TestUserHandlers_StoreErrorsOnReadDegrade(t *testing.T) {
	caller := &domain.User{ID: uuid.NewString(), IsActive: true}
	h := New(failingUsers{err: errDB}, failingIssuer{}, failingStatuses{err: errDB})
	r := mount(h, staticVerifier{u: caller})
	tok := withToken("ignored")

	for _, path := range []string{"/users/" + caller.ID, "/users/" + caller.ID + "/preferences"} {
		w := do(t, r, http.MethodGet, path, nil, tok)
		expectFailure(t, w, http.StatusNotFound, ErrCodeUserNotFound)
		if strings.Contains(w.Body.String(), errDB.Error()) {
			t.Fatalf("GET %s leaks internal error: %s", path, w.Body.String())
		}
	}

	w := do(t, r, http.MethodGet, "/users", nil, tok)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d; want 200 (body %s)", w.Code, w.Body.String())
	}
	env := decodeAs[[]UserResponse](t, w)
	if !env.Success || env.Data == nil || len(env.Data) != 0 {
		t.Fatalf("list should degrade to an empty array: %s", w.Body.String())
	}
}

func TestCreateUser_TokenIssueFailureIs500(t *testing.T) {
	e := newEnv(t)
	h := New(e.users, failingIssuer{}, e.statuses)
	r := mount(h, e.auth)

	w := do(t, r, http.MethodPost, "/users", map[string]any{
		"name": "Ada", "email": "ada@example.com", "password": "longpass1",
		"preferences": map[string]bool{"email": true, "push": true},
	})
	expectFailure(t, w, http.StatusInternalServerError, ErrCodeInternal)
}
