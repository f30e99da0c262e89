package datalake

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"ParkRevLake/internal/checksum"
)

type colKind int

const (
	colText colKind = iota
	colDate
	colTimestamp
	colInt
	colAmount
)

type columnSpec struct {
	header string // normalized source header
	column string // staging table column
	kind   colKind
}

// stagingDef describes how one source report maps onto its staging table.
// keyHeader names the column a data row must have a value in; vendor
// exports end with summary rows that leave it blank.
type stagingDef struct {
	source        SourceType
	table         string
	keyHeader     string
	runDateColumn string
	columns       []columnSpec
	rowFilter     func(row map[string]string) bool
}

func stagingDefFor(src SourceType) (stagingDef, error) {
	switch src {
	case SourceWindcave:
		return windcaveDef(), nil
	case SourcePISales:
		return piSalesDef(), nil
	case SourcePIPayments:
		return piPaymentsDef(), nil
	case SourceIPSCC:
		return ipsCCDef(), nil
	case SourceIPSMobile:
		return ipsMobileDef(), nil
	case SourceIPSCash:
		return ipsCashDef(), nil
	case SourceOther:
		return stagingDef{}, ErrUnknownSource
	}
	return stagingDef{}, fmt.Errorf("unknown source type %q", string(src))
}

func windcaveDef() stagingDef {
	return stagingDef{
		source:        SourceWindcave,
		table:         "windcave_staging",
		keyHeader:     "txn_time",
		runDateColumn: "settlement_date",
		columns: []columnSpec{
			{"txn_time", "txn_time", colTimestamp},
			{"settlement_date", "settlement_date", colDate},
			{"group_account", "group_account", colText},
			{"type", "type", colText},
			{"authorized", "authorized", colInt},
			{"reference", "reference", colText},
			{"auth_code", "auth_code", colText},
			{"cur", "cur", colText},
			{"amount", "amount", colAmount},
			{"card_num", "card_num", colText},
			{"card_type", "card_type", colText},
			{"card_holder_name", "card_holder_name", colText},
			{"txnref", "txnref", colText},
			{"reco", "reco", colInt},
			{"responsetext", "responsetext", colText},
			{"billingid", "billingid", colInt},
			{"dpsbillingid", "dpsbillingid", colInt},
			{"username", "username", colText},
			{"caid", "caid", colText},
			{"catid", "catid", colInt},
			{"merch_corp_ref", "merch_corp_ref", colInt},
			{"order_number", "order_number", colInt},
			{"device_id", "device_id", colText},
			{"voided", "voided", colInt},
		},
		// Voided transactions never reach staging
		rowFilter: func(row map[string]string) bool {
			v := strings.TrimSpace(row["voided"])
			return v == "" || v == "0"
		},
	}
}

func piSalesDef() stagingDef {
	return stagingDef{
		source:        SourcePISales,
		table:         "pi_sales_staging",
		keyHeader:     "transaction_date",
		runDateColumn: "transaction_date",
		columns: []columnSpec{
			{"business_name", "business_name", colText},
			{"mid", "mid", colText},
			{"store_number", "store_number", colInt},
			{"card_brand", "card_brand", colText},
			{"card_number", "card_number", colText},
			{"transaction_type", "transaction_type", colText},
			{"void_ind", "void_ind", colText},
			{"settled_amount", "settled_amount", colAmount},
			{"settled_currency", "settled_currency", colText},
			{"settled_date", "settled_date", colDate},
			{"transaction_amount", "transaction_amount", colAmount},
			{"transaction_currency", "transaction_currency", colText},
			{"transaction_date", "transaction_date", colDate},
			{"transaction_time", "transaction_time", colText},
			{"authorization_code", "authorization_code", colText},
			{"gbok_batch_id", "gbok_batch_id", colText},
			{"terminal_id", "terminal_id", colText},
			{"roc_text", "roc_text", colText},
			{"invoice", "invoice", colText},
			{"order_number", "order_number", colText},
			{"card_swipe_indicator", "card_swipe_indicator", colText},
			{"pos_entry", "pos_entry", colInt},
		},
		// Voided sales are reversals of rows already in the report
		rowFilter: func(row map[string]string) bool {
			return !strings.EqualFold(strings.TrimSpace(row["void_ind"]), "y")
		},
	}
}

func piPaymentsDef() stagingDef {
	return stagingDef{
		source:        SourcePIPayments,
		table:         "pi_payments_staging",
		keyHeader:     "payment_date",
		runDateColumn: "payment_date",
		columns: []columnSpec{
			{"payment_amount", "payment_amount", colAmount},
			{"currency", "currency", colText},
			{"transaction_amount", "transaction_amount", colAmount},
			{"payment_no", "payment_no", colText},
			{"payment_date", "payment_date", colDate},
			{"fund_source", "fund_source", colText},
			{"account", "account", colText},
			{"merchant_id", "merchant_id", colText},
			{"business_name", "business_name", colText},
			{"payment_type", "payment_type", colText},
			{"batch_amount", "batch_amount", colAmount},
			{"net_fund_batch_amount", "net_fund_batch_amount", colAmount},
			{"gbok_batch_id", "gbok_batch_id", colText},
			{"terminal_id", "terminal_id", colText},
			{"card_brand", "card_brand", colText},
			{"card_number", "card_number", colText},
			{"transaction_date", "transaction_date", colDate},
			{"authorization_code", "authorization_code", colText},
			{"settlement_date", "settlement_date", colDate},
		},
	}
}

func ipsCCDef() stagingDef {
	return stagingDef{
		source:        SourceIPSCC,
		table:         "ips_cc_staging",
		keyHeader:     "settlement_date_time",
		runDateColumn: "settlement_date_time",
		columns: []columnSpec{
			{"settlement_date_time", "settlement_date_time", colTimestamp},
			{"transaction_reference", "transaction_reference", colText},
			{"transaction_date_time", "transaction_date_time", colTimestamp},
			{"zone", "zone", colText},
			{"area", "area", colText},
			{"sub_area", "sub_area", colText},
			{"pole", "pole", colText},
			{"terminal", "terminal", colText},
			{"batch_number", "batch_number", colInt},
			{"authorization_code", "authorization_code", colText},
			{"card_type", "card_type", colText},
			{"card_number", "card_number", colText},
			{"expiry", "expiry", colText},
			{"amount", "amount", colAmount},
		},
	}
}

func ipsMobileDef() stagingDef {
	return stagingDef{
		source:        SourceIPSMobile,
		table:         "ips_mobile_staging",
		keyHeader:     "received_date_time",
		runDateColumn: "received_date_time",
		columns: []columnSpec{
			{"received_date_time", "received_date_time", colTimestamp},
			{"zone", "zone", colText},
			{"area", "area", colText},
			{"sub_area", "sub_area", colText},
			{"pole", "pole", colText},
			{"meter_type", "meter_type", colText},
			{"space_name", "space_name", colInt},
			{"license_plate", "license_plate", colText},
			{"prid", "prid", colInt},
			{"paid", "paid", colAmount},
			{"convenience_fee", "convenience_fee", colAmount},
			{"session_start_date_time", "session_start_date_time", colTimestamp},
			{"session_end_date_time", "session_end_date_time", colTimestamp},
			{"partner_name", "partner_name", colText},
		},
	}
}

func ipsCashDef() stagingDef {
	return stagingDef{
		source:        SourceIPSCash,
		table:         "ips_cash_staging",
		keyHeader:     "collection_date",
		runDateColumn: "collection_date",
		columns: []columnSpec{
			{"collection_date", "collection_date", colDate},
			{"collection_time", "collection_time", colText},
			{"zone", "zone", colText},
			{"area", "area", colText},
			{"sub_area", "sub_area", colText},
			{"pole_ser_no", "pole_ser_no", colText},
			{"terminal", "terminal", colText},
			{"meter_type", "meter_type", colText},
			{"collector_id", "collector_id", colText},
			{"coin_total", "coin_total", colInt},
			{"coin_revenue", "coin_revenue", colAmount},
			{"unrecognized_coins", "unrecognized_coins", colInt},
			{"invalid_coin_revenue", "invalid_coin_revenue", colAmount},
			{"coin_reversal_count", "coin_reversal_count", colInt},
		},
	}
}

// convertCell maps one cell to an insertable value. Unparsable cells load
// as NULL rather than failing the whole file; the count is reported so
// bad exports are visible in the logs.
func convertCell(spec columnSpec, raw string) (interface{}, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	switch spec.kind {
	case colText:
		return raw, true
	case colDate:
		if t, ok := ParseDate(raw); ok {
			return t, true
		}
		return nil, false
	case colTimestamp:
		if t, ok := ParseTimestamp(raw); ok {
			return t, true
		}
		return nil, false
	case colInt:
		v, err := ParseNullableInt(raw)
		if err != nil {
			return nil, false
		}
		return v, true
	case colAmount:
		d, ok := ParseAmount(raw)
		if !ok {
			return nil, false
		}
		// Exact numeric over the wire; a float here would round cents.
		d = d.Round(2)
		return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}, true
	}
	return nil, false
}

// LoadStaging parses the stored file and bulk-loads it into the source's
// staging table. The file row is claimed first inside the same transaction,
// so a file can be staged exactly once.
func LoadStaging(ctx context.Context, pool *pgxpool.Pool, file *UploadedFile) (int, error) {
	def, err := stagingDefFor(file.SourceType)
	if err != nil {
		return 0, err
	}

	// The stored file must still be the bytes that were registered.
	digest, err := checksum.DigestFile(file.StoredPath)
	if err != nil {
		return 0, fmt.Errorf("failed to read stored file %s: %w", file.ID, err)
	}
	if digest != file.ChecksumSHA256 {
		return 0, fmt.Errorf("stored file for %s does not match its registered checksum", file.ID)
	}

	headers, rows, err := ParseFile(file.StoredPath, file.SourceType)
	if err != nil {
		if errors.Is(err, ErrEmptyFile) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %v", ErrUnparsableFile, err)
	}
	if err := checkHeaders(def, headers); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadHeaders, err)
	}

	columns := make([]string, 0, len(def.columns)+1)
	columns = append(columns, "source_file_id")
	for _, spec := range def.columns {
		columns = append(columns, spec.column)
	}

	var copyRows [][]interface{}
	badCells := 0
	for _, row := range rows {
		if strings.TrimSpace(row[def.keyHeader]) == "" {
			continue // trailing summary row
		}
		if def.rowFilter != nil && !def.rowFilter(row) {
			continue
		}
		values := make([]interface{}, 0, len(columns))
		values = append(values, file.ID)
		for _, spec := range def.columns {
			v, ok := convertCell(spec, row[spec.header])
			if !ok {
				badCells++
			}
			values = append(values, v)
		}
		copyRows = append(copyRows, values)
	}
	if badCells > 0 {
		log.Printf("[Datalake] %s: %d unparsable cells loaded as NULL in %s", file.ID, badCells, file.OriginalFilename)
	}
	if len(copyRows) == 0 {
		return 0, ErrEmptyFile
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE parking.uploaded_files
		SET is_processed = true, processed_at = now(), records_processed = $2
		WHERE id = $1 AND is_processed = false`,
		file.ID, len(copyRows))
	if err != nil {
		return 0, fmt.Errorf("failed to claim file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrFileAlreadyStaged
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{"parking", def.table}, columns, pgx.CopyFromRows(copyRows))
	if err != nil {
		return 0, fmt.Errorf("staging copy failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	log.Printf("[Datalake] Staged %d rows into %s for file %s", n, def.table, file.ID)
	return int(n), nil
}

// checkHeaders verifies the headers the mapping depends on are present.
// Only the key column is mandatory; vendors add and drop minor columns
// between export versions.
func checkHeaders(def stagingDef, headers []string) error {
	seen := make(map[string]bool, len(headers))
	for _, h := range headers {
		seen[h] = true
	}
	if !seen[def.keyHeader] {
		return fmt.Errorf("missing required column %q in %s report", def.keyHeader, def.source)
	}
	matched := 0
	for _, spec := range def.columns {
		if seen[spec.header] {
			matched++
		}
	}
	if matched < len(def.columns)/2 {
		return fmt.Errorf("only %d of %d expected columns found, wrong report for source %s", matched, len(def.columns), def.source)
	}
	return nil
}

// stagingDate normalizes a parsed timestamp into a date for date-scoped runs.
func stagingDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
