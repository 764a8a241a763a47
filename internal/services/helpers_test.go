package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-user-service/internal/cache"
	"github.com/tbourn/go-user-service/internal/repo"
)

// newSvcDB opens a private, migrated in-memory database.
func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)
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
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// newUserSvc wires a UserService over a fresh DB and in-memory cache with a
// fixed clock.
func newUserSvc(t *testing.T) (*UserService, *cache.MemoryStore) {
	t.Helper()
	store := cache.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	svc := NewUserService(newSvcDB(t), cache.NewUserCache(store, 0, 0), bcrypt.MinCost)
	clock := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { clock = clock.Add(time.Second); return clock }
	return svc, store
}

func mustCreate(t *testing.T, svc *UserService, name, email string) string {
	t.Helper()
	u, err := svc.Create(context.Background(), CreateUserInput{
		Name: name, Email: email, Password: "password123",
		Preferences: PreferencesInput{Email: true, Push: true},
	})
	if err != nil {
		t.Fatalf("create %s: %v", email, err)
	}
	return u.ID
}

// brokenStore fails every cache call.
type brokenStore struct{}

var errBroken = errors.New("cache unavailable")

func (brokenStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errBroken }
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errBroken
}
func (brokenStore) Delete(context.Context, ...string) error { return errBroken }
func (brokenStore) Ping(context.Context) error              { return errBroken }
