package planlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
)

func decode(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("Failed to decode record %q: %v", scanner.Text(), err)
		}
		records = append(records, rec)
	}
	return records
}

func TestDecisionFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, zerolog.DebugLevel).Stage("reaper")
	log.Decision("skip", "libfoo1", "collateral removal of bar")

	records := decode(t, &buf)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	rec := records[0]
	want := map[string]string{
		FieldStage:    "reaper",
		FieldDecision: "skip",
		FieldName:     "libfoo1",
		FieldReason:   "collateral removal of bar",
		"level":       "info",
	}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("%s = %v, want %q", k, rec[k], v)
		}
	}
	if _, ok := rec["time"]; !ok {
		t.Error("record has no timestamp")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, zerolog.InfoLevel).Stage("marking")
	log.Debug("install", "a", "hidden")
	log.Warn("install", "b", "shown")

	records := decode(t, &buf)
	if len(records) != 1 || records[0][FieldName] != "b" {
		t.Errorf("records = %v, want only the warning", records)
	}
}

func TestTraceWriterSplitsLines(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, zerolog.DebugLevel).Stage("resolver")
	w := log.TraceWriter()

	fmt.Fprint(w, "Investigating a\nBroken a:Depends ")
	fmt.Fprint(w, "on b\n\n")

	records := decode(t, &buf)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[1][FieldReason] != "Broken a:Depends on b" {
		t.Errorf("second line = %v", records[1][FieldReason])
	}
	for _, rec := range records {
		if rec[FieldDecision] != "trace" || rec[FieldStage] != "resolver" {
			t.Errorf("unexpected record %v", rec)
		}
	}
}

func TestNop(t *testing.T) {
	log := Nop().Stage("x")
	log.Error("a", "b", "c")
	if log.StageName() != "x" {
		t.Errorf("StageName = %q, want x", log.StageName())
	}
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	log := NewConsole(&buf, zerolog.InfoLevel).Stage("kernel")
	log.Warn("skip", "", "running inside a chroot")

	out := buf.String()
	for _, want := range []string{"WRN", "kernel", "skip", "running inside a chroot"} {
		if !bytes.Contains([]byte(out), []byte(want)) {
			t.Errorf("console output %q lacks %q", out, want)
		}
	}
}
