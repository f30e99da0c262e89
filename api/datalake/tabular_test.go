package datalake

import (
	"testing"
	"time"
)

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Txn Time", "txn_time"},
		{"  Settlement Date  ", "settlement_date"},
		{"Pole Ser No", "pole_ser_no"},
		{"Card Holder Name", "card_holder_name"},
		{"Merch/Corp Ref", "merchcorp_ref"},
		{"AMOUNT", "amount"},
		{"Settlement Date/Time", "settlement_datetime"},
		{"coin - total", "coin_total"},
		{"trailing dots...", "trailing_dots"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeHeader(tt.in); got != tt.want {
			t.Errorf("NormalizeHeader(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2026-07-01", "2026-07-01", true},
		{"07/01/2026", "2026-07-01", true},
		{"7/1/2026", "2026-07-01", true},
		{"20260701", "2026-07-01", true},
		{"2026-07-01 14:30:00", "2026-07-01", true},
		{"46113", "2026-04-01", true}, // excel serial
		{"", "", false},
		{"not a date", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseDate(tt.in)
		if ok != tt.ok {
			t.Errorf("ParseDate(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && got.Format("2006-01-02") != tt.want {
			t.Errorf("ParseDate(%q) = %s, want %s", tt.in, got.Format("2006-01-02"), tt.want)
		}
	}
}

func TestExcelSerialDate(t *testing.T) {
	tests := []struct {
		serial float64
		want   time.Time
	}{
		// The 1899-12-30 epoch cancels Excel's phantom 1900-02-29 for
		// every serial past it, which is all the data we ever see
		{1, time.Date(1899, 12, 31, 0, 0, 0, 0, time.UTC)},
		{61, time.Date(1900, 3, 1, 0, 0, 0, 0, time.UTC)},
		{44197, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)},
		{44197.5, time.Date(2021, 1, 1, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := ExcelSerialDate(tt.serial); !got.Equal(tt.want) {
			t.Errorf("ExcelSerialDate(%v) = %v, want %v", tt.serial, got, tt.want)
		}
	}
}

func TestParseNullableInt(t *testing.T) {
	tests := []struct {
		in      string
		want    interface{}
		wantErr bool
	}{
		{"42", int64(42), false},
		{"42.0", int64(42), false},
		{"-7", int64(-7), false},
		{"", nil, false},
		{"NaN", nil, false},
		{"null", nil, false},
		{"N/A", nil, false},
		{"-", nil, false},
		{"42.5", nil, true},
		{"abc", nil, true},
	}
	for _, tt := range tests {
		got, err := ParseNullableInt(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseNullableInt(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseNullableInt(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"12.34", "12.34", true},
		{"$1,234.56", "1234.56", true},
		{"(45.00)", "-45.00", true},
		{"0", "0", true},
		{"-3.5", "-3.5", true},
		{"", "", false},
		{"NaN", "", false},
		{"twelve", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseAmount(tt.in)
		if ok != tt.ok {
			t.Errorf("ParseAmount(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && got.String() != tt.want {
			t.Errorf("ParseAmount(%q) = %s, want %s", tt.in, got.String(), tt.want)
		}
	}
}
