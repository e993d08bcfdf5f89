package usecase

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/user/alttext-service/internal/adapter/memory"
	"github.com/user/alttext-service/internal/adapter/sqlite"
	"github.com/user/alttext-service/internal/entity"
	"github.com/user/alttext-service/pkg/config"
)

func testSettings() config.Settings {
	return config.Settings{
		Enabled:          true,
		AltSource:        entity.AltSourceHeuristic,
		InjectionMethod:  config.InjectServerBuffer,
		MaxAltLength:     125,
		CacheAIResults:   true,
		AICacheTTL:       90 * 24 * time.Hour,
		BatchSize:        50,
		BulkScope:        entity.ScopeAll,
		LoggingEnabled:   true,
		LogLevel:         entity.SeverityDebug,
		LogRetentionDays: 30,
	}
}

type testStores struct {
	db        *sql.DB
	images    *sqlite.ImageRepoImpl
	docs      *sqlite.DocumentRepoImpl
	logs      *sqlite.ChangeLogRepoImpl
	transient *memory.TransientRepoImpl
}

func setupStores(t *testing.T) *testStores {
	t.Helper()
	db, err := sqlite.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &testStores{
		db:        db,
		images:    sqlite.NewImageRepo(db),
		docs:      sqlite.NewDocumentRepo(db),
		logs:      sqlite.NewChangeLogRepo(db),
		transient: memory.NewTransientRepo(),
	}
}

func (s *testStores) seedImage(t *testing.T, img *entity.CanonicalImage) {
	t.Helper()
	if err := s.images.Upsert(context.Background(), img); err != nil {
		t.Fatalf("seed image %s: %v", img.ID, err)
	}
}

func (s *testStores) seedDocument(t *testing.T, id string, page entity.PageContext) {
	t.Helper()
	if err := s.docs.Upsert(context.Background(), id, page); err != nil {
		t.Fatalf("seed document %s: %v", id, err)
	}
}

func (s *testStores) altText(t *testing.T, id string) string {
	t.Helper()
	alt, err := s.images.GetAltText(context.Background(), id)
	if err != nil {
		t.Fatalf("get alt text %s: %v", id, err)
	}
	return alt
}

func (s *testStores) entries(t *testing.T) []*entity.ChangeLogEntry {
	t.Helper()
	entries, err := s.logs.List(context.Background(), 500, 0)
	if err != nil {
		t.Fatalf("list change log: %v", err)
	}
	return entries
}
