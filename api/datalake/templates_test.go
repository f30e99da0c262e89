package datalake

import (
	"strings"
	"testing"
)

func TestValidateTransforms(t *testing.T) {
	if err := ValidateTransforms(); err != nil {
		t.Fatalf("ValidateTransforms() = %v", err)
	}
}

func TestTransformForUnknownSources(t *testing.T) {
	if _, err := transformFor(SourceOther); err == nil {
		t.Error("transformFor(other) should fail")
	}
	if _, err := transformFor(SourceType("bogus")); err == nil {
		t.Error("transformFor(bogus) should fail")
	}
}

func TestTransformSQLShape(t *testing.T) {
	for _, src := range AllSourceTypes() {
		tr, err := transformFor(src)
		if err != nil {
			t.Fatalf("transformFor(%s): %v", src, err)
		}
		for _, sqlText := range []string{tr.FileSQL(), tr.DateSQL()} {
			for _, fragment := range []string{
				"processed_to_final = false",
				"parking.device_assignments",
				"INSERT INTO parking.transactions",
				"ON CONFLICT (staging_table, staging_record_id) DO NOTHING",
				"INSERT INTO parking.etl_rejects",
				"SET processed_to_final = true",
				"$1",
			} {
				if !strings.Contains(sqlText, fragment) {
					t.Errorf("source %s: rendered SQL missing %q", src, fragment)
				}
			}
			if strings.Contains(sqlText, "__") {
				t.Errorf("source %s: unbound placeholder in rendered SQL", src)
			}
		}
	}
}

func TestPITransformPairsSalesWithPayments(t *testing.T) {
	// PI sales settle through a separate payments report. The rendered
	// statement must pair the two staging tables, carry the payment's date
	// and amount onto the ledger row, and flag both sides.
	for _, src := range []SourceType{SourcePISales, SourcePIPayments} {
		tr, err := transformFor(src)
		if err != nil {
			t.Fatalf("transformFor(%s): %v", src, err)
		}
		sqlText := tr.FileSQL()
		for _, fragment := range []string{
			"parking.pi_sales_staging",
			"parking.pi_payments_staging",
			"p.authorization_code = s.authorization_code",
			"p.payment_amount = COALESCE(s.settled_amount, s.transaction_amount)",
			"settle_amount",
			"m.pay_amount",
			"COALESCE(m.pay_date, m.settled_date, m.transaction_date)",
			"UPDATE parking.pi_sales_staging",
			"UPDATE parking.pi_payments_staging",
		} {
			if !strings.Contains(sqlText, fragment) {
				t.Errorf("source %s: rendered SQL missing %q", src, fragment)
			}
		}
	}
}

func TestPITransformScopesItsOwnSide(t *testing.T) {
	sales, err := transformFor(SourcePISales)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sales.FileSQL(), "s.source_file_id = $1") {
		t.Error("sales run should scope the sales side to the file")
	}
	if !strings.Contains(sales.DateSQL(), "s.transaction_date = $1::date") {
		t.Error("sales date run should scope the sales side to the date")
	}

	payments, err := transformFor(SourcePIPayments)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(payments.FileSQL(), "p.source_file_id = $1") {
		t.Error("payments run should scope the payments side to the file")
	}
	if strings.Contains(payments.FileSQL(), "s.source_file_id = $1") {
		t.Error("payments run must leave the sales side open so older sales can pair")
	}
}

func TestPIPairingIsOneToOne(t *testing.T) {
	tr, err := transformFor(SourcePISales)
	if err != nil {
		t.Fatal(err)
	}
	sqlText := tr.FileSQL()
	for _, fragment := range []string{
		"PARTITION BY s.id ORDER BY p.id",
		"PARTITION BY p.id ORDER BY s.id",
		"c.sales_rank = 1 AND c.payment_rank = 1",
	} {
		if !strings.Contains(sqlText, fragment) {
			t.Errorf("pairing SQL missing %q", fragment)
		}
	}
}

func TestCardBrandCaseSubstitution(t *testing.T) {
	tr, err := transformFor(SourceWindcave)
	if err != nil {
		t.Fatal(err)
	}
	sqlText := tr.FileSQL()
	if !strings.Contains(sqlText, "lower(COALESCE(e.card_type, '')) LIKE '%visa%'") {
		t.Error("card brand mapping not wired to the staging card column")
	}
}

func TestFixedPaymentTypeSources(t *testing.T) {
	cash, _ := transformFor(SourceIPSCash)
	if !strings.Contains(cash.FileSQL(), "'cash'") {
		t.Error("ips_cash should hardcode payment type cash")
	}
	mobile, _ := transformFor(SourceIPSMobile)
	if !strings.Contains(mobile.FileSQL(), "'mobile'") {
		t.Error("ips_mobile should hardcode payment type mobile")
	}
}
