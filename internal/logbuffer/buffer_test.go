package logbuffer

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestBufferEvictsOldest(t *testing.T) {
	b := New(2)
	b.Add(LogEntry{Message: "a"})
	b.Add(LogEntry{Message: "b"})
	b.Add(LogEntry{Message: "c"})

	all := b.All()
	if len(all) != 2 || all[0].Message != "b" || all[1].Message != "c" {
		t.Fatalf("unexpected entries: %+v", all)
	}
}

func TestWriterCapturesZerolog(t *testing.T) {
	b := New(10)
	logger := zerolog.New(NewWriter(b)).With().Timestamp().Logger()

	logger.Info().Str("component", "service").Str("greenhouse", "Norte").Str("run_id", "r1").Msg("run stored")
	logger.Warn().Str("component", "cache").Msg("redis unavailable")
	logger.Debug().Str("component", "simulation").Str("greenhouse", "Sur").Msg("skipping malformed plan entry")

	tests := []struct {
		name   string
		params QueryParams
		want   int
	}{
		{"all", QueryParams{}, 3},
		{"level", QueryParams{Level: "warn"}, 1},
		{"component", QueryParams{Component: "service"}, 1},
		{"greenhouse", QueryParams{Greenhouse: "Norte"}, 1},
		{"run", QueryParams{RunID: "r1"}, 1},
		{"search message", QueryParams{Search: "REDIS"}, 1},
		{"search field", QueryParams{Search: "sur"}, 1},
		{"limit", QueryParams{Limit: 2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(b.Query(tt.params)); got != tt.want {
				t.Fatalf("got %d entries, want %d", got, tt.want)
			}
		})
	}

	newest := b.Query(QueryParams{Descending: true, Limit: 1})
	if len(newest) != 1 || newest[0].Component != "simulation" {
		t.Fatalf("unexpected newest entry: %+v", newest)
	}
	if newest[0].Timestamp.IsZero() {
		t.Fatal("expected timestamp to be parsed")
	}
}

func TestWriterDropsNonJSON(t *testing.T) {
	b := New(10)
	n, err := NewWriter(b).Write([]byte("plain text\n"))
	if err != nil || n != len("plain text\n") {
		t.Fatalf("write = %d, %v", n, err)
	}
	if len(b.All()) != 0 {
		t.Fatal("expected non-json line to be dropped")
	}
}

func TestStats(t *testing.T) {
	b := New(10)
	b.Add(LogEntry{Level: "info", Component: "service"})
	b.Add(LogEntry{Level: "info", Component: "api"})
	b.Add(LogEntry{Level: "error", Component: "service"})

	s := b.Stats()
	if s.Count != 3 || s.LevelCount["info"] != 2 || s.LevelCount["error"] != 1 {
		t.Fatalf("unexpected stats: %+v", s)
	}
	if len(s.Components) != 2 || s.Components[0] != "api" {
		t.Fatalf("unexpected components: %v", s.Components)
	}
}
