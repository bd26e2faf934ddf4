package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/invernadero/internal/config"
	"github.com/friendsincode/invernadero/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment:     "test",
		HTTPBind:        "127.0.0.1",
		HTTPPort:        8080,
		DBBackend:       config.DatabaseSQLite,
		DBDSN:           ":memory:",
		MetricsEnabled:  true,
		MaxUploadSizeMB: 1,
		EventBus:        config.EventBusMemory,
		ArchiveDir:      t.TempDir(),
	}
}

func TestNewServesHealthAndMetrics(t *testing.T) {
	srv, err := New(context.Background(), testConfig(t), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })

	if got := srv.HTTPServer().Addr; got != "127.0.0.1:8080" {
		t.Fatalf("addr=%q", got)
	}

	for _, path := range []string{"/healthz", "/api/v1/health", "/metrics"} {
		rr := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/greenhouses", nil))
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("empty greenhouse list status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestNewArchiveSelection(t *testing.T) {
	cfg := testConfig(t)
	archive, err := newArchive(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("new archive: %v", err)
	}
	if _, ok := archive.(*storage.Filesystem); !ok {
		t.Fatalf("expected filesystem archive, got %T", archive)
	}

	cfg.ArchiveDir = ""
	archive, err = newArchive(context.Background(), cfg, zerolog.Nop())
	if err != nil || archive != nil {
		t.Fatalf("expected disabled archive, got %T %v", archive, err)
	}

	cfg.S3Bucket = "salidas"
	cfg.S3Region = "us-east-1"
	cfg.S3AccessKeyID = "key"
	cfg.S3SecretAccessKey = "secret"
	archive, err = newArchive(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("new s3 archive: %v", err)
	}
	if _, ok := archive.(*storage.S3); !ok {
		t.Fatalf("expected s3 archive, got %T", archive)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	srv, err := New(context.Background(), testConfig(t), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
