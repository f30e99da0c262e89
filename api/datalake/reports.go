package datalake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// TransactionFilter narrows ledger searches. All fields are optional and
// combine with AND.
type TransactionFilter struct {
	SourceType  string     `json:"source_type,omitempty"`
	OrgCode     string     `json:"org_code,omitempty"`
	ChargeCode  string     `json:"charge_code,omitempty"`
	PaymentType string     `json:"payment_type,omitempty"`
	DateFrom    *time.Time `json:"date_from,omitempty"`
	DateTo      *time.Time `json:"date_to,omitempty"`
	MinAmount   *float64   `json:"min_amount,omitempty"`
	MaxAmount   *float64   `json:"max_amount,omitempty"`
	Limit       int        `json:"limit,omitempty"`
	Offset      int        `json:"offset,omitempty"`
}

// LedgerTransaction is a row of parking.transactions as served to clients.
// Amount travels as a string to avoid float rounding in JSON.
type LedgerTransaction struct {
	ID              uuid.UUID  `json:"id"`
	SourceType      SourceType `json:"source_type"`
	StagingTable    string     `json:"staging_table"`
	StagingRecordID int64      `json:"staging_record_id"`
	SourceFileID    *uuid.UUID `json:"source_file_id,omitempty"`
	TransactionTime *time.Time `json:"transaction_time,omitempty"`
	SettlementDate  *time.Time `json:"settlement_date,omitempty"`
	Amount          string     `json:"amount"`
	SettleAmount    string     `json:"settle_amount,omitempty"`
	PaymentType     string     `json:"payment_type"`
	LocationType    string     `json:"location_type"`
	ChargeCode      string     `json:"charge_code,omitempty"`
	OrgCode         string     `json:"org_code,omitempty"`
	LocationName    string     `json:"location_name,omitempty"`
	TerminalID      string     `json:"terminal_id,omitempty"`
	Reference       string     `json:"reference,omitempty"`
	CardType        string     `json:"card_type,omitempty"`
}

func (f TransactionFilter) whereClause() (string, []interface{}, error) {
	var where []string
	var args []interface{}

	add := func(cond string, val interface{}) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.SourceType != "" {
		if _, err := ParseSourceType(f.SourceType); err != nil {
			return "", nil, err
		}
		add("t.source_type = $%d", f.SourceType)
	}
	if f.OrgCode != "" {
		add("t.org_code = $%d", f.OrgCode)
	}
	if f.ChargeCode != "" {
		add("t.charge_code = $%d", f.ChargeCode)
	}
	if f.PaymentType != "" {
		add("t.payment_type = $%d", f.PaymentType)
	}
	if f.DateFrom != nil {
		add("t.settlement_date >= $%d", *f.DateFrom)
	}
	if f.DateTo != nil {
		add("t.settlement_date <= $%d", *f.DateTo)
	}
	if f.MinAmount != nil {
		add("t.amount >= $%d", *f.MinAmount)
	}
	if f.MaxAmount != nil {
		add("t.amount <= $%d", *f.MaxAmount)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	return clause, args, nil
}

// SearchTransactions pages through ledger rows matching the filter. Missing
// location names are backfilled from the lookup cache when it knows the
// charge code.
func SearchTransactions(ctx context.Context, pool *pgxpool.Pool, cache *LookupCache, f TransactionFilter) ([]LedgerTransaction, int, error) {
	clause, args, err := f.whereClause()
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := pool.QueryRow(ctx, "SELECT count(*) FROM parking.transactions t"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count query failed: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, f.Offset)
	query := fmt.Sprintf(`
		SELECT t.id, t.source_type, t.staging_table, t.staging_record_id, t.source_file_id,
		       t.transaction_time, t.settlement_date, t.amount::text,
		       COALESCE(t.settle_amount::text, ''),
		       t.payment_type, t.location_type,
		       COALESCE(t.charge_code, ''), COALESCE(t.org_code, ''), COALESCE(t.location_name, ''),
		       COALESCE(t.terminal_id, ''), COALESCE(t.reference, ''), COALESCE(t.card_type, '')
		FROM parking.transactions t%s
		ORDER BY t.settlement_date DESC, t.id
		LIMIT $%d OFFSET $%d`, clause, len(args)-1, len(args))

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search query failed: %w", err)
	}
	defer rows.Close()

	results := make([]LedgerTransaction, 0, limit)
	for rows.Next() {
		var t LedgerTransaction
		var src string
		if err := rows.Scan(&t.ID, &src, &t.StagingTable, &t.StagingRecordID, &t.SourceFileID,
			&t.TransactionTime, &t.SettlementDate, &t.Amount, &t.SettleAmount,
			&t.PaymentType, &t.LocationType,
			&t.ChargeCode, &t.OrgCode, &t.LocationName,
			&t.TerminalID, &t.Reference, &t.CardType); err != nil {
			return nil, 0, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.SourceType = SourceType(src)
		if t.LocationName == "" && t.ChargeCode != "" {
			if g, ok := cache.GarageForChargeCode(t.ChargeCode); ok {
				t.LocationName = g.GarageName
			}
		}
		results = append(results, t)
	}
	return results, total, rows.Err()
}

// SummaryRow is one aggregation bucket of the revenue summary.
type SummaryRow struct {
	Bucket       string `json:"bucket"`
	Transactions int    `json:"transactions"`
	Total        string `json:"total"`
}

// summaryBuckets whitelists the group-by dimension.
var summaryBuckets = map[string]string{
	"source_type":     "t.source_type",
	"payment_type":    "t.payment_type",
	"location_type":   "t.location_type",
	"org_code":        "COALESCE(t.org_code, '')",
	"charge_code":     "COALESCE(t.charge_code, '')",
	"settlement_date": "t.settlement_date::text",
}

// SummarizeTransactions aggregates ledger revenue by one dimension. Totals
// accumulate as decimals; the database emits exact numerics and they stay
// exact through to JSON.
func SummarizeTransactions(ctx context.Context, pool *pgxpool.Pool, groupBy string, f TransactionFilter) ([]SummaryRow, string, error) {
	bucket, ok := summaryBuckets[groupBy]
	if !ok {
		return nil, "", fmt.Errorf("unsupported group_by %q", groupBy)
	}
	clause, args, err := f.whereClause()
	if err != nil {
		return nil, "", err
	}

	query := fmt.Sprintf(`
		SELECT %s AS bucket, count(*), COALESCE(SUM(t.amount), 0)::text
		FROM parking.transactions t%s
		GROUP BY 1
		ORDER BY 1`, bucket, clause)

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("summary query failed: %w", err)
	}
	defer rows.Close()

	grand := decimal.Zero
	results := make([]SummaryRow, 0)
	for rows.Next() {
		var r SummaryRow
		if err := rows.Scan(&r.Bucket, &r.Transactions, &r.Total); err != nil {
			return nil, "", fmt.Errorf("failed to scan summary row: %w", err)
		}
		d, err := decimal.NewFromString(r.Total)
		if err != nil {
			return nil, "", fmt.Errorf("bad total %q: %w", r.Total, err)
		}
		grand = grand.Add(d)
		results = append(results, r)
	}
	return results, grand.StringFixed(2), rows.Err()
}

// RejectRecord is a row of parking.etl_rejects as served to clients.
type RejectRecord struct {
	ID              int64      `json:"id"`
	SourceType      SourceType `json:"source_type"`
	StagingTable    string     `json:"staging_table"`
	StagingRecordID int64      `json:"staging_record_id"`
	SourceFileID    *uuid.UUID `json:"source_file_id,omitempty"`
	RejectReason    string     `json:"reject_reason"`
	TerminalID      string     `json:"terminal_id,omitempty"`
	RejectedAt      time.Time  `json:"rejected_at"`
	TerminalKnown   bool       `json:"terminal_known"`
}

// ListRejects returns the rejects of one file. TerminalKnown flags whether
// the cache has any assignment interval for the terminal, which separates
// "never mapped" from "mapped for the wrong dates" at a glance.
func ListRejects(ctx context.Context, pool *pgxpool.Pool, cache *LookupCache, fileID uuid.UUID) ([]RejectRecord, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, source_type, staging_table, staging_record_id, source_file_id,
		       reject_reason, COALESCE(terminal_id, ''), rejected_at
		FROM parking.etl_rejects
		WHERE source_file_id = $1
		ORDER BY id`, fileID)
	if err != nil {
		return nil, fmt.Errorf("rejects query failed: %w", err)
	}
	defer rows.Close()

	rejects := make([]RejectRecord, 0)
	for rows.Next() {
		var r RejectRecord
		var src string
		if err := rows.Scan(&r.ID, &src, &r.StagingTable, &r.StagingRecordID, &r.SourceFileID,
			&r.RejectReason, &r.TerminalID, &r.RejectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reject: %w", err)
		}
		r.SourceType = SourceType(src)
		r.TerminalKnown = r.TerminalID != "" && cache.HasTerminal(r.TerminalID)
		rejects = append(rejects, r)
	}
	return rejects, rows.Err()
}

// RequeueRejects deletes a file's reject records so the next run retries
// those rows, used after reference data has been corrected.
func RequeueRejects(ctx context.Context, pool *pgxpool.Pool, fileID uuid.UUID) (int64, error) {
	tag, err := pool.Exec(ctx, `DELETE FROM parking.etl_rejects WHERE source_file_id = $1`, fileID)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue rejects: %w", err)
	}
	return tag.RowsAffected(), nil
}
