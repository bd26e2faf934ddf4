package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestFilesystemPutGet(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new filesystem: %v", err)
	}
	ctx := context.Background()

	if err := fs.Put(ctx, "salidas/norte/run-1.xml", []byte("<datosSalida/>")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := fs.Get(ctx, "salidas/norte/run-1.xml")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "<datosSalida/>" {
		t.Fatalf("unexpected content %q", got)
	}

	if err := fs.Put(ctx, "salidas/norte/run-1.xml", []byte("v2")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ = fs.Get(ctx, "salidas/norte/run-1.xml")
	if string(got) != "v2" {
		t.Fatalf("overwrite not visible: %q", got)
	}
}

func TestFilesystemErrors(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new filesystem: %v", err)
	}
	ctx := context.Background()

	if _, err := fs.Get(ctx, "missing.xml"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	for _, key := range []string{"", "../escape.xml", "a/../../b"} {
		if err := fs.Put(ctx, key, []byte("x")); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := fs.Put(cancelled, "a.xml", []byte("x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewS3RequiresBucket(t *testing.T) {
	if _, err := NewS3(context.Background(), S3Config{Region: "us-east-1"}, zerolog.Nop()); err == nil {
		t.Fatal("expected error without bucket")
	}
}

func TestS3KeyPrefix(t *testing.T) {
	s, err := NewS3(context.Background(), S3Config{
		Bucket:          "archive",
		Region:          "us-east-1",
		Endpoint:        "http://127.0.0.1:9000",
		AccessKeyID:     "id",
		SecretAccessKey: "secret",
		UsePathStyle:    true,
		Prefix:          "salidas/",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new s3: %v", err)
	}
	if got := s.key("norte/run.xml"); got != "salidas/norte/run.xml" {
		t.Fatalf("key = %q", got)
	}
	if got := contentType("a.xml"); got != "application/xml" {
		t.Fatalf("content type = %q", got)
	}
}
