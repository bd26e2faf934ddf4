package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/friendsincode/invernadero/internal/logbuffer"
)

func TestSetupWithWriterLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithWriter("production", &buf)
	logger.Debug().Msg("hidden")
	logger.Info().Str("component", "test").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line written in production: %s", out)
	}
	if !strings.Contains(out, `"message":"shown"`) {
		t.Fatalf("expected json info line, got %s", out)
	}
}

func TestSetupDevelopmentUsesConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithWriter("development", &buf)
	logger.Debug().Msg("visible")
	if out := buf.String(); !strings.Contains(out, "visible") || strings.Contains(out, `"message"`) {
		t.Fatalf("expected console formatted debug line, got %s", out)
	}
}

func TestSetupWithBufferCapturesJSON(t *testing.T) {
	buf := logbuffer.New(10)
	logger := setup("development", &bytes.Buffer{}, logbuffer.NewWriter(buf))
	logger.Info().Str("component", "service").Msg("run stored")

	entries := buf.All()
	if len(entries) != 1 || entries[0].Component != "service" || entries[0].Message != "run stored" {
		t.Fatalf("unexpected captured entries: %+v", entries)
	}
}
