package datalake

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseFileCSV(t *testing.T) {
	csvData := "Collection Date,Zone,Coin Revenue\n" +
		"2026-07-01,Z1,12.50\n" +
		"2026-07-01,Z2,3.00\n" +
		",,15.50\n" // trailing totals row, blank key column
	path := writeTemp(t, "Collection Report 2026-07-01.csv", csvData)

	headers, rows, err := ParseFile(path, SourceIPSCash)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	want := []string{"collection_date", "zone", "coin_revenue"}
	if len(headers) != len(want) {
		t.Fatalf("headers = %v, want %v", headers, want)
	}
	for i := range want {
		if headers[i] != want[i] {
			t.Errorf("header[%d] = %q, want %q", i, headers[i], want[i])
		}
	}
	// ParseFile keeps the totals row; the staging loader drops rows with a
	// blank key column.
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0]["zone"] != "Z1" || rows[1]["coin_revenue"] != "3.00" {
		t.Errorf("unexpected row content: %+v", rows[:2])
	}
	if rows[2]["collection_date"] != "" {
		t.Errorf("totals row key column should be blank, got %q", rows[2]["collection_date"])
	}
}

func TestParseFileRaggedAndBlankRows(t *testing.T) {
	csvData := "Txn Time,Amount,Voided\n" +
		"\n" +
		"2026-07-01 10:00:00,5.00\n" + // short row
		"2026-07-01 11:00:00,6.00,1,extra\n"
	path := writeTemp(t, "windcave.csv", csvData)

	_, rows, err := ParseFile(path, SourceWindcave)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0]["voided"] != "" {
		t.Errorf("short row should backfill blank cells, got %q", rows[0]["voided"])
	}
	if rows[1]["voided"] != "1" {
		t.Errorf("voided = %q, want 1", rows[1]["voided"])
	}
}

func TestParseFilePICSVIsHeadersFirst(t *testing.T) {
	// Only the PI Excel exports carry a banner row; the CSV exports start
	// with the header and must not lose it.
	csvData := "Payment Amount,Currency,Transaction Amount,Payment No,Payment Date,Fund Source," +
		"Account,Merchant ID,Business Name,Payment Type,Terminal ID,Authorization Code\n" +
		"10.50,USD,10.50,P-1,2026-07-01,ACH,A1,M1,City Garage,Settlement,T100,AUTH1\n" +
		"4.25,USD,4.25,P-2,2026-07-01,ACH,A1,M1,City Garage,Settlement,T101,AUTH2\n"
	path := writeTemp(t, "payments_2026-07-02.csv", csvData)

	headers, rows, err := ParseFile(path, SourcePIPayments)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	want := []string{"payment_amount", "currency", "transaction_amount", "payment_no", "payment_date",
		"fund_source", "account", "merchant_id", "business_name", "payment_type", "terminal_id", "authorization_code"}
	if len(headers) != len(want) {
		t.Fatalf("headers = %v, want %v", headers, want)
	}
	for i := range want {
		if headers[i] != want[i] {
			t.Errorf("header[%d] = %q, want %q", i, headers[i], want[i])
		}
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0]["payment_no"] != "P-1" || rows[1]["payment_amount"] != "4.25" {
		t.Errorf("unexpected row content: %+v", rows)
	}
	if err := checkHeaders(piPaymentsDef(), headers); err != nil {
		t.Errorf("headers should satisfy the payments layout: %v", err)
	}
}

func TestDropBanner(t *testing.T) {
	grid := [][]string{
		{"Payments Insider Report"},
		{"Payment Amount", "Payment No"},
		{"10.50", "P-1"},
	}
	for _, src := range []SourceType{SourcePISales, SourcePIPayments} {
		got := dropBanner(grid, src)
		if len(got) != 2 || got[0][0] != "Payment Amount" {
			t.Errorf("dropBanner(%s) = %v, want banner removed", src, got)
		}
	}
	if got := dropBanner(grid, SourceWindcave); len(got) != 3 {
		t.Errorf("dropBanner for non-PI sources should keep all rows, got %v", got)
	}
	if got := dropBanner([][]string{{"banner only"}}, SourcePISales); got != nil {
		t.Errorf("banner-only workbook should drop to empty, got %v", got)
	}
}

func TestParseFileRejectsUnknownExtension(t *testing.T) {
	path := writeTemp(t, "report.pdf", "%PDF-1.4")
	if _, _, err := ParseFile(path, SourceWindcave); err == nil {
		t.Error("pdf should be rejected")
	}
}

func TestParseFileEmpty(t *testing.T) {
	path := writeTemp(t, "empty.csv", "")
	if _, _, err := ParseFile(path, SourceWindcave); err == nil {
		t.Error("empty file should error")
	}
	headerOnly := writeTemp(t, "header_only.csv", "Txn Time,Amount\n")
	if _, _, err := ParseFile(headerOnly, SourceWindcave); err == nil {
		t.Error("header-only file should error")
	}
}
