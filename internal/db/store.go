package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voidcat/grant-discovery/internal/models"
)

// ErrNotFound is returned when a record id has no row.
var ErrNotFound = errors.New("record not found")

// Store is the persistent snapshot of canonical records. Upserts are keyed
// by the deterministic record id, so re-ingesting the same upstream data is
// a no-op.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ListParams filter a store query. Zero values mean "not filtered"; all
// provided filters compose with AND semantics.
type ListParams struct {
	Query        string
	Agencies     []string
	AmountMin    float64
	AmountMax    float64
	DeadlineFrom *time.Time
	DeadlineTo   *time.Time
	Eligibility  string
	ProgramType  string
	Limit        int
	Offset       int
}

type ListResult struct {
	Records []models.CanonicalRecord `json:"records"`
	Total   int                      `json:"total"`
	Limit   int                      `json:"limit"`
	Offset  int                      `json:"offset"`
}

const selectCols = `id, title, issuing_body, program, program_type, description,
	deadline_at, deadline_raw, amount_min, amount_max, currency, amount_raw,
	eligibility, tags, external_url, source_name, source_id, last_verified`

func scanRecord(scan func(dest ...interface{}) error) (models.CanonicalRecord, error) {
	var r models.CanonicalRecord
	var amountMin, amountMax *float64
	var currency *string

	err := scan(
		&r.ID, &r.Title, &r.IssuingBody, &r.Program, &r.ProgramType, &r.Description,
		&r.Deadline, &r.DeadlineRaw, &amountMin, &amountMax, &currency, &r.AmountRaw,
		&r.Eligibility, &r.Tags, &r.ExternalURL, &r.SourceName, &r.SourceID, &r.LastVerified,
	)
	if err != nil {
		return r, err
	}

	if amountMin != nil || amountMax != nil {
		r.Amount = &models.AmountRange{}
		if amountMin != nil {
			r.Amount.Min = *amountMin
		}
		if amountMax != nil {
			r.Amount.Max = *amountMax
		}
		if currency != nil {
			r.Amount.Currency = *currency
		}
	}
	return r, nil
}

// Upsert writes records idempotently. An existing row is refreshed; fields
// the new row lacks keep their stored values.
func (s *Store) Upsert(ctx context.Context, records []models.CanonicalRecord) (int, error) {
	saved := 0
	for _, rec := range records {
		var amountMin, amountMax interface{}
		var currency interface{}
		if rec.Amount != nil {
			amountMin, amountMax, currency = rec.Amount.Min, rec.Amount.Max, rec.Amount.Currency
		}

		_, err := s.pool.Exec(ctx, `
			INSERT INTO records (
				id, title, issuing_body, program, program_type, description,
				deadline_at, deadline_raw, amount_min, amount_max, currency, amount_raw,
				eligibility, tags, external_url, source_name, source_id, last_verified
			) VALUES (
				$1, $2, $3, $4, $5, $6,
				$7, $8, $9, $10, $11, $12,
				$13, $14, $15, $16, $17, $18
			)
			ON CONFLICT (id) DO UPDATE SET
				updated_at = NOW(),
				title = EXCLUDED.title,
				issuing_body = EXCLUDED.issuing_body,
				program = COALESCE(NULLIF(EXCLUDED.program, ''), records.program),
				program_type = COALESCE(NULLIF(EXCLUDED.program_type, ''), records.program_type),
				description = COALESCE(NULLIF(EXCLUDED.description, ''), records.description),
				deadline_at = COALESCE(EXCLUDED.deadline_at, records.deadline_at),
				deadline_raw = COALESCE(NULLIF(EXCLUDED.deadline_raw, ''), records.deadline_raw),
				amount_min = COALESCE(EXCLUDED.amount_min, records.amount_min),
				amount_max = COALESCE(EXCLUDED.amount_max, records.amount_max),
				currency = COALESCE(EXCLUDED.currency, records.currency),
				amount_raw = COALESCE(NULLIF(EXCLUDED.amount_raw, ''), records.amount_raw),
				eligibility = COALESCE(NULLIF(EXCLUDED.eligibility, '{}'::text[]), records.eligibility),
				tags = COALESCE(NULLIF(EXCLUDED.tags, '{}'::text[]), records.tags),
				external_url = COALESCE(NULLIF(EXCLUDED.external_url, ''), records.external_url),
				last_verified = GREATEST(EXCLUDED.last_verified, records.last_verified)
		`,
			rec.ID, rec.Title, rec.IssuingBody, rec.Program, rec.ProgramType, rec.Description,
			rec.Deadline, rec.DeadlineRaw, amountMin, amountMax, currency, rec.AmountRaw,
			rec.Eligibility, rec.Tags, rec.ExternalURL, rec.SourceName, rec.SourceID, rec.LastVerified,
		)
		if err != nil {
			return saved, fmt.Errorf("upsert %q failed: %w", rec.Title, err)
		}
		saved++
	}
	return saved, nil
}

// List runs a filtered, full-text-ranked query over the snapshot.
func (s *Store) List(ctx context.Context, params ListParams) (*ListResult, error) {
	where := "WHERE 1=1"
	var args []interface{}
	argIdx := 1

	if params.Query != "" {
		where += fmt.Sprintf(" AND (search_vector @@ plainto_tsquery('english', $%d) OR title ILIKE '%%' || $%d || '%%')", argIdx, argIdx)
		args = append(args, params.Query)
		argIdx++
	}
	if len(params.Agencies) > 0 {
		where += fmt.Sprintf(" AND issuing_body = ANY($%d)", argIdx)
		args = append(args, params.Agencies)
		argIdx++
	}
	if params.AmountMin > 0 {
		where += fmt.Sprintf(" AND amount_max >= $%d", argIdx)
		args = append(args, params.AmountMin)
		argIdx++
	}
	if params.AmountMax > 0 {
		where += fmt.Sprintf(" AND amount_min <= $%d", argIdx)
		args = append(args, params.AmountMax)
		argIdx++
	}
	if params.DeadlineFrom != nil {
		where += fmt.Sprintf(" AND deadline_at >= $%d", argIdx)
		args = append(args, *params.DeadlineFrom)
		argIdx++
	}
	if params.DeadlineTo != nil {
		where += fmt.Sprintf(" AND deadline_at <= $%d", argIdx)
		args = append(args, *params.DeadlineTo)
		argIdx++
	}
	if params.Eligibility != "" {
		where += fmt.Sprintf(" AND EXISTS (SELECT 1 FROM unnest(eligibility) e WHERE e ILIKE '%%' || $%d || '%%')", argIdx)
		args = append(args, params.Eligibility)
		argIdx++
	}
	if params.ProgramType != "" {
		where += fmt.Sprintf(" AND program_type = $%d", argIdx)
		args = append(args, params.ProgramType)
		argIdx++
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM records "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count failed: %w", err)
	}

	selectSQL := fmt.Sprintf("SELECT %s FROM records %s", selectCols, where)
	if params.Query != "" {
		queryArg := argIdx
		args = append(args, params.Query)
		argIdx++
		selectSQL += fmt.Sprintf(" ORDER BY ts_rank(search_vector, plainto_tsquery('english', $%d::text)) DESC, last_verified DESC", queryArg)
	} else {
		selectSQL += " ORDER BY last_verified DESC, title ASC"
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}
	selectSQL += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, params.Offset)

	rows, err := s.pool.Query(ctx, selectSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var records []models.CanonicalRecord
	for rows.Next() {
		r, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	if records == nil {
		records = []models.CanonicalRecord{}
	}

	return &ListResult{Records: records, Total: total, Limit: limit, Offset: params.Offset}, nil
}

// Get fetches one record by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*models.CanonicalRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM records WHERE id = $1", selectCols), id)
	r, err := scanRecord(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get failed: %w", err)
	}
	return &r, nil
}

// Count reports how many records the snapshot holds.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM records").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Sources lists the distinct source names present in the snapshot.
func (s *Store) Sources(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT DISTINCT source_name FROM records ORDER BY source_name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err == nil {
			out = append(out, name)
		}
	}
	return out, rows.Err()
}
