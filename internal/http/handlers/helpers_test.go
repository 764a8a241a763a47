package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-user-service/internal/auth"
	"github.com/tbourn/go-user-service/internal/cache"
	"github.com/tbourn/go-user-service/internal/domain"
	"github.com/tbourn/go-user-service/internal/http/middleware"
	"github.com/tbourn/go-user-service/internal/repo"
	"github.com/tbourn/go-user-service/internal/services"
)

const testSecret = "handlers-test-secret-0123456789"

// ---------- test DB + wiring ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Unique DSN per call to avoid cross-test contamination
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// testEnv is a Handlers instance over real services, mounted the same way
// the router mounts it (without the base path).
type testEnv struct {
	db       *gorm.DB
	store    *cache.MemoryStore
	users    *services.UserService
	auth     *services.AuthService
	statuses *services.StatusService
	h        *Handlers
	r        *gin.Engine
}

func newEnv(t *testing.T, checks ...HealthCheck) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newHandlerDB(t)
	store := cache.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	users := services.NewUserService(db, cache.NewUserCache(store, 0, 0), bcrypt.MinCost)
	authSvc := services.NewAuthService(db, auth.NewTokens(testSecret, time.Hour))
	statuses := services.NewStatusService(db, time.Hour)

	e := &testEnv{db: db, store: store, users: users, auth: authSvc, statuses: statuses}
	e.h = New(users, authSvc, statuses, checks...)
	e.r = mount(e.h, authSvc)
	return e
}

// mount registers h on a fresh engine.
func mount(h *Handlers, v middleware.TokenVerifier) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Authenticate(v))

	r.GET("/health", h.Health)
	r.POST("/users", h.CreateUser)
	r.POST("/users/login", h.Login)

	p := r.Group("", middleware.RequireAuth())
	p.GET("/users", h.ListUsers)
	p.GET("/users/:id", h.GetUser)
	p.PATCH("/users/:id", h.UpdateUser)
	p.DELETE("/users/:id", h.DeactivateUser)
	p.GET("/users/:id/preferences", h.GetPreferences)
	p.PATCH("/users/:id/push_token", h.SetPushToken)
	p.POST("/:channel/status", middleware.IdempotencyValidator(middleware.IdempotencyOptions{}), h.RecordStatus)
	p.GET("/status/history", h.StatusHistory)
	return r
}

// ---------- request helpers ----------

type reqOpt func(*http.Request)

func withToken(tok string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
}

func withHeader(k, v string) reqOpt {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

func do(t *testing.T, h http.Handler, method, path string, body any, opts ...reqOpt) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, o := range opts {
		o(req)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// envelope decodes a response with data decoded into T.
type envelope[T any] struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Data      T               `json:"data"`
	Error     string          `json:"error"`
	Meta      *PaginationMeta `json:"meta"`
	RequestID string          `json:"request_id"`
}

func decodeAs[T any](t *testing.T, w *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var out envelope[T]
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func expectFailure(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d; want %d (body %s)", w.Code, status, w.Body.String())
	}
	env := decodeAs[map[string]any](t, w)
	if env.Success || env.Error != code {
		t.Fatalf("envelope = %+v; want error %q", env, code)
	}
}

// register creates a user through the API and returns id and token.
func (e *testEnv) register(t *testing.T, name, email string) (string, string) {
	t.Helper()
	w := do(t, e.r, http.MethodPost, "/users", map[string]any{
		"name": name, "email": email, "password": "longpass1",
		"preferences": map[string]bool{"email": true, "push": true},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: %d %s", email, w.Code, w.Body.String())
	}
	env := decodeAs[AuthResponse](t, w)
	return env.Data.User.ID, env.Data.Token
}

// ---------- stubs for error paths ----------

var errDB = errors.New("database is locked")

// failingUsers returns err from every call.
type failingUsers struct{ err error }

func (f failingUsers) Create(context.Context, services.CreateUserInput) (*domain.User, error) {
	return nil, f.err
}
func (f failingUsers) Authenticate(context.Context, string, string) (*domain.User, error) {
	return nil, f.err
}
func (f failingUsers) Get(context.Context, string) (*domain.User, error) { return nil, f.err }
func (f failingUsers) GetPreferences(context.Context, string) (*domain.Preference, error) {
	return nil, f.err
}
func (f failingUsers) List(context.Context) ([]domain.User, error) { return nil, f.err }
func (f failingUsers) Update(context.Context, string, services.UpdateUserInput) (*domain.User, error) {
	return nil, f.err
}
func (f failingUsers) SetPushToken(context.Context, string, string) (*domain.User, error) {
	return nil, f.err
}
func (f failingUsers) Deactivate(context.Context, string, string) error { return f.err }

// failingStatuses returns err from every call.
type failingStatuses struct{ err error }

func (f failingStatuses) Record(context.Context, string, services.StatusReport) (*domain.NotificationStatusEvent, bool, error) {
	return nil, false, f.err
}
func (f failingStatuses) History(context.Context, string, string, int, int) ([]domain.NotificationStatusEvent, int64, error) {
	return nil, 0, f.err
}

// staticVerifier authenticates every token as u.
type staticVerifier struct{ u *domain.User }

func (s staticVerifier) Verify(context.Context, string) (*domain.User, error) { return s.u, nil }

// failingIssuer cannot sign tokens.
type failingIssuer struct{}

func (failingIssuer) Issue(*domain.User) (string, time.Time, error) {
	return "", time.Time{}, errors.New("signing key unavailable")
}
