/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package logbuffer keeps the most recent log entries in memory so they can
// be served over the API.
package logbuffer

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogEntry is one decoded zerolog line.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Buffer is a thread-safe ring buffer of log entries.
type Buffer struct {
	mu       sync.RWMutex
	entries  []LogEntry
	capacity int
	head     int
	count    int
}

// New creates a buffer holding up to capacity entries.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 2000
	}
	return &Buffer{
		entries:  make([]LogEntry, capacity),
		capacity: capacity,
	}
}

// Add appends entry, evicting the oldest one when full.
func (b *Buffer) Add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}
}

// All returns the entries oldest first.
func (b *Buffer) All() []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]LogEntry, b.count)
	start := 0
	if b.count == b.capacity {
		start = b.head
	}
	for i := 0; i < b.count; i++ {
		out[i] = b.entries[(start+i)%b.capacity]
	}
	return out
}

// QueryParams filters Query results. Zero values match everything.
type QueryParams struct {
	Level      string
	Component  string
	Greenhouse string // matches the "greenhouse" field
	RunID      string // matches the "run_id" field
	Search     string // case-insensitive, over message, component and string fields
	Since      time.Time
	Limit      int
	Descending bool
}

// Query returns the entries matching params.
func (b *Buffer) Query(params QueryParams) []LogEntry {
	search := strings.ToLower(params.Search)

	var out []LogEntry
	for _, entry := range b.All() {
		if params.Level != "" && entry.Level != params.Level {
			continue
		}
		if params.Component != "" && entry.Component != params.Component {
			continue
		}
		if params.Greenhouse != "" && stringField(entry, "greenhouse") != params.Greenhouse {
			continue
		}
		if params.RunID != "" && stringField(entry, "run_id") != params.RunID {
			continue
		}
		if !params.Since.IsZero() && entry.Timestamp.Before(params.Since) {
			continue
		}
		if search != "" && !matches(entry, search) {
			continue
		}
		out = append(out, entry)
	}

	if params.Descending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out
}

func stringField(entry LogEntry, key string) string {
	s, _ := entry.Fields[key].(string)
	return s
}

func matches(entry LogEntry, lowered string) bool {
	if strings.Contains(strings.ToLower(entry.Message), lowered) ||
		strings.Contains(strings.ToLower(entry.Component), lowered) {
		return true
	}
	for _, v := range entry.Fields {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), lowered) {
			return true
		}
	}
	return false
}

// Stats summarises the buffer contents.
type Stats struct {
	Capacity   int            `json:"capacity"`
	Count      int            `json:"count"`
	LevelCount map[string]int `json:"level_count"`
	Components []string       `json:"components"`
}

// Stats returns counts per level and the sorted component names.
func (b *Buffer) Stats() Stats {
	stats := Stats{Capacity: b.capacity, LevelCount: make(map[string]int)}
	seen := make(map[string]bool)
	for _, entry := range b.All() {
		stats.Count++
		stats.LevelCount[entry.Level]++
		if entry.Component != "" && !seen[entry.Component] {
			seen[entry.Component] = true
			stats.Components = append(stats.Components, entry.Component)
		}
	}
	sort.Strings(stats.Components)
	return stats
}

// Writer captures zerolog JSON lines into a Buffer. Lines that are not JSON
// are dropped.
type Writer struct {
	buffer *Buffer
}

// NewWriter creates a writer feeding buffer.
func NewWriter(buffer *Buffer) *Writer {
	return &Writer{buffer: buffer}
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	var raw map[string]any
	if err := json.Unmarshal(p, &raw); err != nil {
		return len(p), nil
	}

	entry := LogEntry{Timestamp: time.Now(), Fields: make(map[string]any)}
	if lvl, ok := raw["level"].(string); ok {
		entry.Level = lvl
		delete(raw, "level")
	}
	if msg, ok := raw["message"].(string); ok {
		entry.Message = msg
		delete(raw, "message")
	}
	if comp, ok := raw["component"].(string); ok {
		entry.Component = comp
		delete(raw, "component")
	}
	switch ts := raw["time"].(type) {
	case float64:
		entry.Timestamp = time.Unix(int64(ts), 0)
	case string:
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			entry.Timestamp = t
		}
	}
	delete(raw, "time")

	for k, v := range raw {
		entry.Fields[k] = v
	}
	w.buffer.Add(entry)
	return len(p), nil
}
