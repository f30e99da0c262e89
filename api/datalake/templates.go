package datalake

import (
	"fmt"
	"strings"
)

// transformSpec parameterizes the promotion statement for one source. Most
// sources share the same shape: select eligible staging rows, join them to
// the device assignment valid at transaction time, insert matches into the
// ledger, flag them promoted, and record the rest as rejects. What differs
// per source is column wiring, captured here as SQL expressions over the
// staging alias e. The two Payments Insider sources render a pairing
// variant instead; only their scope fragments differ.
type transformSpec struct {
	source        SourceType
	table         string
	timeExpr      string // transaction_time
	settleExpr    string // settlement_date
	amountExpr    string // amount
	payTypeExpr   string // payment_type; empty means derive from cardExpr
	terminalExpr  string // joined against device_assignments.terminal_id
	referenceExpr string
	cardExpr      string
	fileScope     string // WHERE fragment, $1 = file id
	dateScope     string // WHERE fragment, $1 = run date
}

const cardBrandCase = `CASE
        WHEN lower(COALESCE(__CARD__, '')) LIKE '%visa%' THEN 'visa'
        WHEN lower(COALESCE(__CARD__, '')) LIKE '%master%' THEN 'mastercard'
        WHEN lower(COALESCE(__CARD__, '')) LIKE '%amex%'
          OR lower(COALESCE(__CARD__, '')) LIKE '%american%' THEN 'amex'
        WHEN lower(COALESCE(__CARD__, '')) LIKE '%discover%' THEN 'discover'
        ELSE 'other'
    END`

func transformFor(src SourceType) (transformSpec, error) {
	switch src {
	case SourceWindcave:
		return transformSpec{
			source:        SourceWindcave,
			table:         "windcave_staging",
			timeExpr:      "e.txn_time",
			settleExpr:    "COALESCE(e.settlement_date, e.txn_time::date)",
			amountExpr:    "e.amount",
			terminalExpr:  "e.device_id",
			referenceExpr: "e.reference",
			cardExpr:      "e.card_type",
			fileScope:     "e.source_file_id = $1",
			dateScope:     "e.settlement_date = $1::date",
		}, nil
	case SourcePISales:
		return transformSpec{
			source:    SourcePISales,
			table:     "pi_sales_staging",
			cardExpr:  "m.card_brand",
			fileScope: "s.source_file_id = $1",
			dateScope: "s.transaction_date = $1::date",
		}, nil
	case SourcePIPayments:
		return transformSpec{
			source:    SourcePIPayments,
			table:     "pi_payments_staging",
			cardExpr:  "m.card_brand",
			fileScope: "p.source_file_id = $1",
			dateScope: "p.payment_date = $1::date",
		}, nil
	case SourceIPSCC:
		return transformSpec{
			source:        SourceIPSCC,
			table:         "ips_cc_staging",
			timeExpr:      "e.transaction_date_time",
			settleExpr:    "COALESCE(e.settlement_date_time, e.transaction_date_time)::date",
			amountExpr:    "e.amount",
			terminalExpr:  "e.terminal",
			referenceExpr: "e.transaction_reference",
			cardExpr:      "e.card_type",
			fileScope:     "e.source_file_id = $1",
			dateScope:     "e.settlement_date_time::date = $1::date",
		}, nil
	case SourceIPSMobile:
		return transformSpec{
			source:        SourceIPSMobile,
			table:         "ips_mobile_staging",
			timeExpr:      "e.received_date_time",
			settleExpr:    "e.received_date_time::date",
			amountExpr:    "e.paid",
			payTypeExpr:   "'mobile'",
			terminalExpr:  "e.pole",
			referenceExpr: "e.prid::text",
			cardExpr:      "NULL",
			fileScope:     "e.source_file_id = $1",
			dateScope:     "e.received_date_time::date = $1::date",
		}, nil
	case SourceIPSCash:
		return transformSpec{
			source:        SourceIPSCash,
			table:         "ips_cash_staging",
			timeExpr:      "e.collection_date::timestamptz",
			settleExpr:    "e.collection_date",
			amountExpr:    "e.coin_revenue",
			payTypeExpr:   "'cash'",
			terminalExpr:  "e.terminal",
			referenceExpr: "e.collector_id",
			cardExpr:      "NULL",
			fileScope:     "e.source_file_id = $1",
			dateScope:     "e.collection_date = $1::date",
		}, nil
	case SourceOther:
		return transformSpec{}, ErrNoTransform
	}
	return transformSpec{}, fmt.Errorf("unknown source type %q", string(src))
}

const promoteTemplate = `
WITH eligible AS (
    SELECT e.*
    FROM parking.__TABLE__ e
    WHERE e.processed_to_final = false
      AND __SCOPE__
      AND NOT EXISTS (
          SELECT 1 FROM parking.etl_rejects r
          WHERE r.staging_table = '__TABLE__' AND r.staging_record_id = e.id
      )
),
matched AS (
    SELECT e.*,
           d.charge_code   AS d_charge_code,
           d.org_code      AS d_org_code,
           d.facility_name AS d_facility_name,
           d.location_type AS d_location_type
    FROM eligible e
    JOIN parking.device_assignments d
      ON d.terminal_id = __TERMINAL__
     AND __TIME__ >= d.date_assigned
     AND (d.date_removed IS NULL OR __TIME__ < d.date_removed)
    WHERE __AMOUNT__ IS NOT NULL
),
ins AS (
    INSERT INTO parking.transactions
        (source_type, staging_table, staging_record_id, source_file_id,
         transaction_time, settlement_date, amount, payment_type, location_type,
         charge_code, org_code, location_name, terminal_id, reference, card_type)
    SELECT '__SOURCE__', '__TABLE__', e.id, e.source_file_id,
           __TIME__, __SETTLE__, __AMOUNT__,
           __PAYTYPE__,
           e.d_location_type,
           e.d_charge_code, e.d_org_code,
           COALESCE(g.garage_name, e.d_facility_name),
           __TERMINAL__, __REFERENCE__, __CARD__
    FROM matched e
    LEFT JOIN parking.station_garages g ON g.charge_code = e.d_charge_code
    ON CONFLICT (staging_table, staging_record_id) DO NOTHING
    RETURNING staging_record_id, id
),
flagged AS (
    UPDATE parking.__TABLE__ s
    SET processed_to_final = true, transaction_id = i.id
    FROM ins i
    WHERE s.id = i.staging_record_id
    RETURNING s.id
),
rejected AS (
    INSERT INTO parking.etl_rejects
        (source_type, staging_table, staging_record_id, source_file_id, reject_reason, terminal_id)
    SELECT '__SOURCE__', '__TABLE__', e.id, e.source_file_id,
           CASE WHEN __AMOUNT__ IS NULL THEN 'missing_amount' ELSE 'no_device_assignment' END,
           __TERMINAL__
    FROM eligible e
    WHERE e.id NOT IN (SELECT staging_record_id FROM ins)
    ON CONFLICT (staging_table, staging_record_id) DO NOTHING
    RETURNING id
)
SELECT (SELECT count(*) FROM eligible) AS records_processed,
       (SELECT count(*) FROM ins)      AS records_created,
       (SELECT count(*) FROM rejected) AS records_failed
`

// piPromoteTemplate pairs PI sales rows with PI payment rows before
// promotion. A sale and a payment match on authorization code plus amount;
// the window functions keep the pairing one-to-one when several rows share
// both. Only paired sales reach the ledger, carrying the payment's date and
// amount as the settlement side, and both staging rows are flagged with the
// same transaction id. Unpaired rows stay pending until the counterpart
// report arrives. The same statement serves both PI sources: a sales run
// scopes the sales side, a payments run scopes the payments side, so either
// upload promotes whatever newly became pairable.
const piPromoteTemplate = `
WITH sales AS (
    SELECT s.*
    FROM parking.pi_sales_staging s
    WHERE s.processed_to_final = false
      AND __SALES_SCOPE__
      AND NOT EXISTS (
          SELECT 1 FROM parking.etl_rejects r
          WHERE r.staging_table = 'pi_sales_staging' AND r.staging_record_id = s.id
      )
),
payments AS (
    SELECT p.*
    FROM parking.pi_payments_staging p
    WHERE p.processed_to_final = false
      AND __PAY_SCOPE__
),
candidates AS (
    SELECT s.id AS sales_id, p.id AS payment_id,
           row_number() OVER (PARTITION BY s.id ORDER BY p.id) AS sales_rank,
           row_number() OVER (PARTITION BY p.id ORDER BY s.id) AS payment_rank
    FROM sales s
    JOIN payments p
      ON p.authorization_code = s.authorization_code
     AND p.payment_amount = COALESCE(s.settled_amount, s.transaction_amount)
),
pairs AS (
    SELECT c.sales_id, c.payment_id
    FROM candidates c
    WHERE c.sales_rank = 1 AND c.payment_rank = 1
),
matched AS (
    SELECT s.*,
           p.payment_date   AS pay_date,
           p.payment_amount AS pay_amount,
           d.charge_code   AS d_charge_code,
           d.org_code      AS d_org_code,
           d.facility_name AS d_facility_name,
           d.location_type AS d_location_type
    FROM pairs x
    JOIN sales s ON s.id = x.sales_id
    JOIN payments p ON p.id = x.payment_id
    JOIN parking.device_assignments d
      ON d.terminal_id = s.terminal_id
     AND s.transaction_date::timestamptz >= d.date_assigned
     AND (d.date_removed IS NULL OR s.transaction_date::timestamptz < d.date_removed)
),
ins AS (
    INSERT INTO parking.transactions
        (source_type, staging_table, staging_record_id, source_file_id,
         transaction_time, settlement_date, amount, settle_amount,
         payment_type, location_type, charge_code, org_code, location_name,
         terminal_id, reference, card_type)
    SELECT 'pi_sales', 'pi_sales_staging', m.id, m.source_file_id,
           m.transaction_date::timestamptz,
           COALESCE(m.pay_date, m.settled_date, m.transaction_date),
           COALESCE(m.settled_amount, m.transaction_amount),
           m.pay_amount,
           __PAYTYPE__,
           m.d_location_type,
           m.d_charge_code, m.d_org_code,
           COALESCE(g.garage_name, m.d_facility_name),
           m.terminal_id, m.authorization_code, m.card_brand
    FROM matched m
    LEFT JOIN parking.station_garages g ON g.charge_code = m.d_charge_code
    ON CONFLICT (staging_table, staging_record_id) DO NOTHING
    RETURNING staging_record_id, id
),
flagged_sales AS (
    UPDATE parking.pi_sales_staging s
    SET processed_to_final = true, transaction_id = i.id
    FROM ins i
    WHERE s.id = i.staging_record_id
    RETURNING s.id
),
flagged_payments AS (
    UPDATE parking.pi_payments_staging p
    SET processed_to_final = true, transaction_id = i.id
    FROM ins i
    JOIN pairs x ON x.sales_id = i.staging_record_id
    WHERE p.id = x.payment_id
    RETURNING p.id
),
rejected AS (
    INSERT INTO parking.etl_rejects
        (source_type, staging_table, staging_record_id, source_file_id, reject_reason, terminal_id)
    SELECT 'pi_sales', 'pi_sales_staging', s.id, s.source_file_id,
           'no_device_assignment', s.terminal_id
    FROM pairs x
    JOIN sales s ON s.id = x.sales_id
    WHERE x.sales_id NOT IN (SELECT staging_record_id FROM ins)
    ON CONFLICT (staging_table, staging_record_id) DO NOTHING
    RETURNING id
)
SELECT (SELECT count(*) FROM __SCOPED__) AS records_processed,
       (SELECT count(*) FROM ins)        AS records_created,
       (SELECT count(*) FROM rejected)   AS records_failed
`

// sql renders the promotion statement with the given scope fragment.
func (t transformSpec) sql(scope string) string {
	if t.source == SourcePISales || t.source == SourcePIPayments {
		return t.piSQL(scope)
	}
	payType := t.payTypeExpr
	if payType == "" {
		payType = strings.ReplaceAll(cardBrandCase, "__CARD__", t.cardExpr)
	}
	r := strings.NewReplacer(
		"__TABLE__", t.table,
		"__SOURCE__", string(t.source),
		"__SCOPE__", scope,
		"__TIME__", t.timeExpr,
		"__SETTLE__", t.settleExpr,
		"__AMOUNT__", t.amountExpr,
		"__PAYTYPE__", payType,
		"__TERMINAL__", t.terminalExpr,
		"__REFERENCE__", t.referenceExpr,
		"__CARD__", t.cardExpr,
	)
	return r.Replace(promoteTemplate)
}

// piSQL renders the pairing statement, scoping whichever side this source
// owns and leaving the other side open.
func (t transformSpec) piSQL(scope string) string {
	salesScope, payScope, scoped := scope, "true", "sales"
	if t.source == SourcePIPayments {
		salesScope, payScope, scoped = "true", scope, "payments"
	}
	r := strings.NewReplacer(
		"__SALES_SCOPE__", salesScope,
		"__PAY_SCOPE__", payScope,
		"__SCOPED__", scoped,
		"__PAYTYPE__", strings.ReplaceAll(cardBrandCase, "__CARD__", t.cardExpr),
	)
	return r.Replace(piPromoteTemplate)
}

// FileSQL is the promotion statement scoped to one staged file ($1).
func (t transformSpec) FileSQL() string {
	return t.sql(t.fileScope)
}

// DateSQL is the promotion statement scoped to one business date ($1).
func (t transformSpec) DateSQL() string {
	return t.sql(t.dateScope)
}

// ValidateTransforms checks every loadable source has a complete, renderable
// transform. Run at service start so a wiring mistake fails the process
// instead of the first ETL run.
func ValidateTransforms() error {
	for _, src := range AllSourceTypes() {
		t, err := transformFor(src)
		if err != nil {
			return fmt.Errorf("source %s: %w", src, err)
		}
		table, err := src.StagingTable()
		if err != nil {
			return fmt.Errorf("source %s: %w", src, err)
		}
		if t.table != table {
			return fmt.Errorf("source %s: transform table %q does not match staging table %q", src, t.table, table)
		}
		for _, rendered := range []string{t.FileSQL(), t.DateSQL()} {
			if strings.Contains(rendered, "__") {
				return fmt.Errorf("source %s: transform has unbound placeholders", src)
			}
			if !strings.Contains(rendered, "$1") {
				return fmt.Errorf("source %s: transform scope is not parameterized", src)
			}
		}
	}
	return nil
}
