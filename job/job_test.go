package job

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/relaylabs/relayq/internal/keys"
)

func TestBoolArg(t *testing.T) {
	if boolArg(true) != "1" {
		t.Fatalf("boolArg(true) should be \"1\"")
	}
	if boolArg(false) != "0" {
		t.Fatalf("boolArg(false) should be \"0\"")
	}
}

func TestAtoiDefault(t *testing.T) {
	if got := atoiDefault("", 7); got != 7 {
		t.Fatalf("empty string should fall back to default, got %d", got)
	}
	if got := atoiDefault("not-a-number", 7); got != 7 {
		t.Fatalf("unparsable string should fall back to default, got %d", got)
	}
	if got := atoiDefault("42", 7); got != 42 {
		t.Fatalf("valid string should parse, got %d", got)
	}
}

func TestMsToTime(t *testing.T) {
	if got := msToTime(""); !got.IsZero() {
		t.Fatalf("empty string should produce the zero time, got %v", got)
	}
	if got := msToTime("not-a-number"); !got.IsZero() {
		t.Fatalf("unparsable string should produce the zero time, got %v", got)
	}
	want := time.UnixMilli(1700000000000)
	if got := msToTime("1700000000000"); !got.Equal(want) {
		t.Fatalf("msToTime(1700000000000) = %v, want %v", got, want)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	j := &Job{
		ID:           "42",
		Data:         json.RawMessage(`{"to":"a@example.com"}`),
		Progress:     50,
		ReturnValue:  json.RawMessage(`{"sent":true}`),
		FailedReason: "",
	}

	raw, err := j.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	got, err := FromJSON(raw)
	if err != nil {
		t.Fatalf("from json: %v", err)
	}
	if got.ID != j.ID || got.Progress != j.Progress {
		t.Fatalf("round trip mismatch: got %+v, want id=%s progress=%d", got, j.ID, j.Progress)
	}
	if string(got.ReturnValue) != string(j.ReturnValue) {
		t.Fatalf("return value mismatch: got %s, want %s", got.ReturnValue, j.ReturnValue)
	}
}

func TestFromHash_EmptyOptsDoesNotError(t *testing.T) {
	j, err := fromHash(keys.New("relayq", "emails"), "1", map[string]string{
		"data":         `{"x":1}`,
		"progress":     "10",
		"attemptsMade": "2",
	})
	if err != nil {
		t.Fatalf("fromHash: %v", err)
	}
	if j.Progress != 10 || j.AttemptsMade != 2 {
		t.Fatalf("unexpected job: %+v", j)
	}
}
