package datalake

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestClassifyOutcome(t *testing.T) {
	tests := []struct {
		name      string
		processed int
		created   int
		failed    int
		want      string
	}{
		{"all promoted", 97, 97, 0, OutcomeComplete},
		{"partial match", 97, 90, 7, OutcomeIncomplete},
		{"nothing matched", 97, 0, 97, OutcomeFailed},
		{"rerun with nothing left", 0, 0, 0, OutcomeComplete},
		{"single row promoted", 1, 1, 0, OutcomeComplete},
		{"single row rejected", 1, 0, 1, OutcomeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyOutcome(tt.processed, tt.created, tt.failed); got != tt.want {
				t.Errorf("ClassifyOutcome(%d, %d, %d) = %q, want %q",
					tt.processed, tt.created, tt.failed, got, tt.want)
			}
		})
	}
}

// Clients and the run log read the same four counts; updated is always
// reported even though promotion only ever inserts.
func TestRunResultCarriesAllCounts(t *testing.T) {
	payload, err := json.Marshal(RunResult{})
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"records_processed", "records_created", "records_updated", "records_failed"} {
		if !strings.Contains(string(payload), `"`+key+`"`) {
			t.Errorf("RunResult JSON missing %q", key)
		}
	}
}

func TestStagingTableExhaustive(t *testing.T) {
	for _, src := range AllSourceTypes() {
		table, err := src.StagingTable()
		if err != nil {
			t.Errorf("StagingTable(%s) error: %v", src, err)
		}
		if table == "" {
			t.Errorf("StagingTable(%s) empty", src)
		}
	}
	if _, err := SourceOther.StagingTable(); err == nil {
		t.Error("StagingTable(other) should fail")
	}
}

func TestParseSourceType(t *testing.T) {
	for _, src := range AllSourceTypes() {
		got, err := ParseSourceType(string(src))
		if err != nil || got != src {
			t.Errorf("ParseSourceType(%q) = %q, %v", src, got, err)
		}
	}
	if _, err := ParseSourceType("parking_meters"); err == nil {
		t.Error("ParseSourceType should reject unknown keys")
	}
	if _, err := ParseSourceType(""); err == nil {
		t.Error("ParseSourceType should reject empty keys")
	}
}
