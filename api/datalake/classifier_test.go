package datalake

import (
	"testing"
	"time"
)

func TestClassifySource(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     SourceType
	}{
		{"payments prefix", "Payments_2026-07-01.xlsx", SourcePIPayments},
		{"payments prefix beats sales substring", "payments_sales_2026-07-01.xlsx", SourcePIPayments},
		{"sales substring", "July Sales Report.xlsx", SourcePISales},
		{"daily bank recon", "DailyBankRecon 07-01-2026.csv", SourceIPSCC},
		{"pay by plate", "PBP_Sessions_20260701.csv", SourceIPSMobile},
		{"collection report", "Collection Report 2026-07-01.xls", SourceIPSCash},
		{"windcave full name", "windcave_settlement_20260701.csv", SourceWindcave},
		{"windcave short code", "WC Export 2026-07-01.csv", SourceWindcave},
		{"wc inside a word is not windcave", "newcastle_lots.csv", SourceOther},
		{"pbp not at the start", "notes_on_pbp.csv", SourceOther},
		{"collection report not at the start", "Monthly Collection Report.xls", SourceOther},
		{"unknown", "random_notes.csv", SourceOther},
		{"empty name", "", SourceOther},
		{"mixed case", "WINDCAVE_JULY.CSV", SourceWindcave},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifySource(tt.filename); got != tt.want {
				t.Errorf("ClassifySource(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}

func TestExtractReportDate(t *testing.T) {
	uploaded := time.Date(2026, 7, 15, 10, 30, 0, 0, time.UTC)
	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{"iso date names the day after the report", "windcave_2026-07-01.csv", "2026-06-30"},
		{"compact date", "PBP_20260630.csv", "2026-06-29"},
		{"underscore date", "Collection Report 07_01_2026.xls", "2026-06-30"},
		{"month boundary", "windcave_2026-08-01.csv", "2026-07-31"},
		{"year boundary", "payments_20260101.xlsx", "2025-12-31"},
		{"no date falls back to day before upload", "sales报告.xlsx", "2026-07-14"},
		{"empty name falls back", "", "2026-07-14"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractReportDate(tt.filename, uploaded)
			if got.Format("2006-01-02") != tt.want {
				t.Errorf("ExtractReportDate(%q) = %s, want %s", tt.filename, got.Format("2006-01-02"), tt.want)
			}
		})
	}
}
