package datalake

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

func TestStagingDefCoversEverySource(t *testing.T) {
	for _, src := range AllSourceTypes() {
		def, err := stagingDefFor(src)
		if err != nil {
			t.Fatalf("stagingDefFor(%s) error: %v", src, err)
		}
		table, err := src.StagingTable()
		if err != nil {
			t.Fatalf("StagingTable(%s) error: %v", src, err)
		}
		if def.table != table {
			t.Errorf("source %s: def table %q != staging table %q", src, def.table, table)
		}
		if def.keyHeader == "" {
			t.Errorf("source %s: no key header", src)
		}
		if def.runDateColumn == "" {
			t.Errorf("source %s: no run date column", src)
		}
		if len(def.columns) == 0 {
			t.Errorf("source %s: no columns", src)
		}
		seen := map[string]bool{}
		for _, c := range def.columns {
			if c.header == "" || c.column == "" {
				t.Errorf("source %s: blank column spec %+v", src, c)
			}
			if seen[c.column] {
				t.Errorf("source %s: duplicate staging column %q", src, c.column)
			}
			seen[c.column] = true
		}
	}
	if _, err := stagingDefFor(SourceOther); err == nil {
		t.Error("stagingDefFor(other) should fail")
	}
}

func TestWindcaveRowFilterDropsVoided(t *testing.T) {
	def := windcaveDef()
	tests := []struct {
		name   string
		voided string
		keep   bool
	}{
		{"not voided empty", "", true},
		{"not voided zero", "0", true},
		{"voided", "1", false},
		{"voided other count", "2", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := map[string]string{"txn_time": "2026-07-01 10:00:00", "voided": tt.voided}
			if got := def.rowFilter(row); got != tt.keep {
				t.Errorf("rowFilter(voided=%q) = %v, want %v", tt.voided, got, tt.keep)
			}
		})
	}
}

func TestPISalesRowFilterDropsVoidInd(t *testing.T) {
	def := piSalesDef()
	if def.rowFilter(map[string]string{"void_ind": "Y"}) {
		t.Error("void_ind=Y should be dropped")
	}
	if !def.rowFilter(map[string]string{"void_ind": "N"}) {
		t.Error("void_ind=N should be kept")
	}
	if !def.rowFilter(map[string]string{"void_ind": ""}) {
		t.Error("blank void_ind should be kept")
	}
}

func TestConvertCell(t *testing.T) {
	tests := []struct {
		name string
		spec columnSpec
		raw  string
		want interface{}
		ok   bool
	}{
		{"text", columnSpec{kind: colText}, "hello", "hello", true},
		{"blank is null", columnSpec{kind: colText}, "  ", nil, true},
		{"int", columnSpec{kind: colInt}, "12", int64(12), true},
		{"int float widened", columnSpec{kind: colInt}, "12.0", int64(12), true},
		{"int garbage", columnSpec{kind: colInt}, "twelve", nil, false},
		{"amount garbage", columnSpec{kind: colAmount}, "ten", nil, false},
		{"date garbage", columnSpec{kind: colDate}, "someday", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := convertCell(tt.spec, tt.raw)
			if ok != tt.ok {
				t.Fatalf("convertCell ok = %v, want %v", ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("convertCell = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

// Amounts go over the wire as exact numerics. A float here would turn
// 0.1+0.2-style cents into values the database rounds differently.
func TestConvertCellAmountIsExactNumeric(t *testing.T) {
	tests := []struct {
		raw     string
		wantInt string
		wantExp int32
	}{
		{"$10.50", "1050", -2},
		{"1,234.56", "123456", -2},
		{"(3.10)", "-310", -2},
		{"0.005", "1", -2}, // rounds to cents before load
		{"7", "7", 0},
	}
	for _, tt := range tests {
		got, ok := convertCell(columnSpec{kind: colAmount}, tt.raw)
		if !ok {
			t.Fatalf("convertCell(%q) not ok", tt.raw)
		}
		n, isNumeric := got.(pgtype.Numeric)
		if !isNumeric {
			t.Fatalf("convertCell(%q) = %T, want pgtype.Numeric", tt.raw, got)
		}
		if !n.Valid {
			t.Fatalf("convertCell(%q) numeric not valid", tt.raw)
		}
		if n.Int.String() != tt.wantInt || n.Exp != tt.wantExp {
			t.Errorf("convertCell(%q) = %se%d, want %se%d", tt.raw, n.Int, n.Exp, tt.wantInt, tt.wantExp)
		}
	}
}

func TestConvertCellDate(t *testing.T) {
	got, ok := convertCell(columnSpec{kind: colDate}, "07/01/2026")
	if !ok {
		t.Fatal("convertCell date not ok")
	}
	d, isTime := got.(time.Time)
	if !isTime {
		t.Fatalf("convertCell date = %T, want time.Time", got)
	}
	if want := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC); !d.Equal(want) {
		t.Errorf("convertCell date = %v, want %v", d, want)
	}
}

func TestCheckHeaders(t *testing.T) {
	def := ipsCashDef()
	full := make([]string, 0, len(def.columns))
	for _, c := range def.columns {
		full = append(full, c.header)
	}
	if err := checkHeaders(def, full); err != nil {
		t.Errorf("full headers should pass: %v", err)
	}
	if err := checkHeaders(def, []string{"zone", "area"}); err == nil {
		t.Error("missing key column should fail")
	}
	if err := checkHeaders(def, []string{"collection_date", "zone"}); err == nil {
		t.Error("too few recognised columns should fail")
	}
}
