package sinks

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pinball-gacha/server/logging"
)

func TestNewJSONFileWritesConfiguredPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	sink, err := NewJSONFile(logging.JSONConfig{FilePath: path})
	if err != nil {
		t.Fatalf("NewJSONFile: %v", err)
	}

	event := logging.Event{
		Type:     "gacha_resolved",
		Tick:     42,
		Session:  "round-1",
		Time:     time.UnixMilli(1_000),
		Severity: logging.SeverityInfo,
		Category: "gameplay",
	}
	if err := sink.Write(event); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var wire struct {
		Type    string `json:"type"`
		Tick    uint64 `json:"tick"`
		Session string `json:"session"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		t.Fatalf("decode event line %q: %v", raw, err)
	}
	if wire.Type != "gacha_resolved" || wire.Tick != 42 || wire.Session != "round-1" {
		t.Fatalf("unexpected event on disk: %+v", wire)
	}
}

func TestNewJSONFileAppendsAcrossSinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	cfg := logging.JSONConfig{FilePath: path}

	for i := 0; i < 2; i++ {
		sink, err := NewJSONFile(cfg)
		if err != nil {
			t.Fatalf("NewJSONFile: %v", err)
		}
		if err := sink.Write(logging.Event{Type: "ball_spawned", Tick: uint64(i)}); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if err := sink.Close(context.Background()); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log file: %v", err)
	}
	defer f.Close()
	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan log file: %v", err)
	}
	if lines != 2 {
		t.Fatalf("reopened sink should append, got %d lines", lines)
	}
}

func TestNewJSONFileRequiresPath(t *testing.T) {
	if _, err := NewJSONFile(logging.JSONConfig{}); err == nil {
		t.Fatalf("empty file path should fail")
	}
}
