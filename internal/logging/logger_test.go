package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"info", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"trace", LevelTrace},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("info", &buf)

	logger.Debug("hidden")
	logger.Info("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug message should be filtered at info level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("info message missing")
	}
}

func TestDecisionLogger_NilSafe(t *testing.T) {
	var dl *DecisionLogger
	dl.Log(map[string]any{"event": "x"})
	dl.LogTrigger("k", true, "buffer_full", 3)
	dl.LogReward("k", 1.0, nil)
	dl.LogRanking("k", "heuristic", nil, nil)
	dl.Close()
}

func TestNewDecisionLogger_InfoLevelDisabled(t *testing.T) {
	if dl := NewDecisionLogger(t.TempDir(), "info"); dl != nil {
		t.Error("info level should not create a decision logger")
	}
}

func TestDecisionLogger_WritesJSONL(t *testing.T) {
	dir := t.TempDir()
	dl := NewDecisionLogger(dir, "debug")
	if dl == nil {
		t.Fatal("expected decision logger at debug level")
	}

	dl.LogTrigger("1/5/10", true, "score_present", 1)
	dl.LogReward("1/5/10", 3.5, map[string]float64{"completion": 2.0, "high_score": 1.5})
	dl.Close()

	f, err := os.Open(filepath.Join(dir, "decisions.jsonl"))
	if err != nil {
		t.Fatalf("open decisions.jsonl: %v", err)
	}
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("invalid JSONL line: %v", err)
		}
		lines = append(lines, entry)
	}

	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0]["event"] != "trigger" || lines[0]["reason"] != "score_present" {
		t.Errorf("trigger line = %v", lines[0])
	}
	if lines[1]["event"] != "reward" {
		t.Errorf("reward line = %v", lines[1])
	}
	if _, ok := lines[0]["time"]; !ok {
		t.Error("time field missing")
	}
}
