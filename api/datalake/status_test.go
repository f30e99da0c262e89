package datalake

import "testing"

func intPtr(n int) *int { return &n }

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name         string
		staged       bool
		processed    *int
		hasRunning   bool
		hasCompleted bool
		hasFailed    bool
		created      int
		want         string
	}{
		{"not uploaded to staging", false, nil, false, false, false, 0, StatusNotStarted},
		{"staged but never run", true, intPtr(97), false, false, false, 0, StatusNotComplete},
		{"run in flight", true, intPtr(97), true, false, false, 0, StatusInProgress},
		{"running wins over history", true, intPtr(97), true, true, true, 97, StatusInProgress},
		{"all promoted", true, intPtr(97), false, true, false, 97, StatusComplete},
		{"partial promotion", true, intPtr(97), false, true, false, 90, StatusNotComplete},
		{"all rejected", true, intPtr(97), false, false, true, 0, StatusFailed},
		{"failed then fully recovered", true, intPtr(97), false, true, true, 97, StatusComplete},
		{"zero row file completed", true, intPtr(0), false, true, false, 0, StatusComplete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveStatus(tt.staged, tt.processed, tt.hasRunning, tt.hasCompleted, tt.hasFailed, tt.created)
			if got != tt.want {
				t.Errorf("DeriveStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPercentComplete(t *testing.T) {
	tests := []struct {
		processed *int
		created   int
		want      float64
	}{
		{nil, 10, 0},
		{intPtr(0), 0, 0},
		{intPtr(100), 97, 97},
		{intPtr(100), 0, 0},
		{intPtr(97), 97, 100},
	}
	for _, tt := range tests {
		if got := PercentComplete(tt.processed, tt.created); got != tt.want {
			t.Errorf("PercentComplete(%v, %d) = %v, want %v", tt.processed, tt.created, got, tt.want)
		}
	}
}

func TestStatusSortWhitelist(t *testing.T) {
	for _, col := range []string{"uploaded_at", "original_filename", "source_type", "report_date", "records_processed"} {
		if _, ok := statusSortColumns[col]; !ok {
			t.Errorf("expected sortable column %q", col)
		}
	}
	// Anything outside the whitelist falls back to the default, so user
	// input never reaches the ORDER BY clause verbatim.
	hostile := []string{"uploaded_at; DROP TABLE parking.transactions", "1=1", ""}
	for _, h := range hostile {
		if _, ok := statusSortColumns[h]; ok {
			t.Errorf("hostile sort key %q must not be whitelisted", h)
		}
	}
}
