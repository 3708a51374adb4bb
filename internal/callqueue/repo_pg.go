package callqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"outreach-platform/internal/locations"
	"outreach-platform/pkg/utils"
)

// PGRepo is the durable queue store.
//
// Expected schema:
//
//	CREATE TABLE call_requests (
//	    id            BIGSERIAL PRIMARY KEY,
//	    location_id   BIGINT NOT NULL REFERENCES locations(id),
//	    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    vesting_at    TIMESTAMPTZ NOT NULL,
//	    reason        TEXT NOT NULL,
//	    priority_group INT NOT NULL DEFAULT 99,
//	    priority      INT NOT NULL DEFAULT 0,
//	    claimed_by    TEXT,
//	    claimed_until TIMESTAMPTZ,
//	    completed     BOOLEAN NOT NULL DEFAULT FALSE,
//	    completed_at  TIMESTAMPTZ,
//	    tip_type      TEXT,
//	    tip_report_id TEXT
//	);
//	CREATE UNIQUE INDEX one_incomplete_request_per_location
//	    ON call_requests (location_id) WHERE NOT completed;
//
// The partial unique index is the backstop for per-location idempotency;
// CreateForLocations additionally reserves candidate location rows with
// FOR UPDATE SKIP LOCKED so concurrent backfills shed contended
// candidates instead of waiting on each other.

type PGRepo struct {
	db          *sql.DB
	eligibility locations.Eligibility
}

func NewPGRepo(db *sql.DB, e locations.Eligibility) *PGRepo {
	return &PGRepo{db: db, eligibility: e}
}

const requestColumns = `cr.id, cr.location_id, cr.created_at, cr.vesting_at, cr.reason,
	cr.priority_group, cr.priority, cr.claimed_by, cr.claimed_until,
	cr.completed, cr.completed_at, cr.tip_type, cr.tip_report_id`

// queueOrder spells out the rank of each priority group instead of
// relying on the numeric column values.
const queueOrder = `
	CASE cr.priority_group WHEN 1 THEN 0 WHEN 2 THEN 1 WHEN 3 THEN 2 WHEN 4 THEN 3 ELSE 4 END ASC,
	cr.priority DESC,
	cr.id DESC`

func scanRequest(row interface{ Scan(dest ...any) error }) (CallRequest, error) {
	var r CallRequest
	var claimedBy, tipType, tipReport sql.NullString
	var claimedUntil, completedAt sql.NullTime
	err := row.Scan(&r.ID, &r.LocationID, &r.CreatedAt, &r.VestingAt, &r.Reason,
		&r.PriorityGroup, &r.Priority, &claimedBy, &claimedUntil,
		&r.Completed, &completedAt, &tipType, &tipReport)
	if err != nil {
		return CallRequest{}, err
	}
	r.ClaimedBy = claimedBy.String
	if claimedUntil.Valid {
		t := claimedUntil.Time
		r.ClaimedUntil = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	r.TipType = TipType(tipType.String)
	r.TipReportID = tipReport.String
	return r, nil
}

// availableWhere builds the availability predicate: request state plus
// location eligibility plus the caller's filter. now is appended to args
// twice (vesting, lease).
func (p *PGRepo) availableWhere(f Filter, now time.Time, args *[]any) string {
	*args = append(*args, now)
	vestingArg := len(*args)
	*args = append(*args, now)
	leaseArg := len(*args)

	clauses := []string{
		"cr.completed = FALSE",
		fmt.Sprintf("cr.vesting_at <= $%d", vestingArg),
		fmt.Sprintf("(cr.claimed_until IS NULL OR cr.claimed_until <= $%d)", leaseArg),
		p.eligibility.CallableClause("l", args),
	}
	if f.State != "" {
		*args = append(*args, f.State)
		clauses = append(clauses, fmt.Sprintf("l.state = $%d", len(*args)))
	}
	if f.NameContains != "" {
		*args = append(*args, "%"+f.NameContains+"%")
		clauses = append(clauses, fmt.Sprintf("l.name ILIKE $%d", len(*args)))
	}
	if f.LocationID != 0 {
		*args = append(*args, f.LocationID)
		clauses = append(clauses, fmt.Sprintf("cr.location_id = $%d", len(*args)))
	}
	return strings.Join(clauses, " AND ")
}

func (p *PGRepo) Get(ctx context.Context, id int64) (CallRequest, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM call_requests cr WHERE cr.id = $1`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return CallRequest{}, ErrNotFound
	}
	return r, err
}

func (p *PGRepo) CountAvailable(ctx context.Context, f Filter, now time.Time) (int, error) {
	var args []any
	query := `SELECT COUNT(*) FROM call_requests cr JOIN locations l ON l.id = cr.location_id WHERE ` +
		p.availableWhere(f, now, &args)
	var n int
	err := p.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

func (p *PGRepo) ListAvailable(ctx context.Context, f Filter, limit int, now time.Time) ([]CallRequest, error) {
	var args []any
	query := `SELECT ` + requestColumns + ` FROM call_requests cr JOIN locations l ON l.id = cr.location_id WHERE ` +
		p.availableWhere(f, now, &args) + ` ORDER BY ` + queueOrder
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PGRepo) ClaimNext(ctx context.Context, f Filter, claimedBy string, until, now time.Time) (*CallRequest, error) {
	var claimed *CallRequest
	err := utils.WithTx(ctx, p.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		var args []any
		selectNext := `SELECT cr.id FROM call_requests cr JOIN locations l ON l.id = cr.location_id WHERE ` +
			p.availableWhere(f, now, &args) +
			` ORDER BY ` + queueOrder + ` LIMIT 1 FOR UPDATE OF cr SKIP LOCKED`

		args = append(args, claimedBy)
		byArg := len(args)
		args = append(args, until)
		untilArg := len(args)
		args = append(args, now)
		guardArg := len(args)

		// The WHERE re-checks the claim state so the lease can never be
		// stolen from a live claimant, even if selection raced.
		query := fmt.Sprintf(`
			UPDATE call_requests cr SET claimed_by = $%d, claimed_until = $%d
			WHERE cr.id = (%s)
			  AND cr.completed = FALSE
			  AND (cr.claimed_until IS NULL OR cr.claimed_until <= $%d)
			RETURNING `+requestColumns, byArg, untilArg, selectNext, guardArg)

		r, err := scanRequest(tx.QueryRowContext(ctx, query, args...))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		claimed = &r
		return nil
	})
	return claimed, err
}

func (p *PGRepo) PeekNext(ctx context.Context, f Filter, now time.Time) (*CallRequest, error) {
	out, err := p.ListAvailable(ctx, f, 1, now)
	if err != nil || len(out) == 0 {
		return nil, err
	}
	r := out[0]
	return &r, nil
}

func (p *PGRepo) BackfillCandidates(ctx context.Context, f Filter, phase CandidatePhase, limit int) ([]int64, error) {
	var args []any
	clauses := []string{
		p.eligibility.CallableClause("l", &args),
		`NOT EXISTS (SELECT 1 FROM call_requests cr WHERE cr.location_id = l.id AND cr.completed = FALSE)`,
	}
	if f.State != "" {
		args = append(args, f.State)
		clauses = append(clauses, fmt.Sprintf("l.state = $%d", len(args)))
	}
	if f.NameContains != "" {
		args = append(args, "%"+f.NameContains+"%")
		clauses = append(clauses, fmt.Sprintf("l.name ILIKE $%d", len(args)))
	}

	order := "l.id"
	if phase == PhaseNeverReported {
		clauses = append(clauses, "l.latest_report_at IS NULL")
	} else {
		order = "l.latest_report_at ASC NULLS FIRST, l.id"
	}

	query := `SELECT l.id FROM locations l WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY ` + order
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *PGRepo) CreateForLocations(ctx context.Context, locationIDs []int64, tmpl NewRequest, limit int) ([]CallRequest, error) {
	if len(locationIDs) == 0 {
		return nil, nil
	}
	var created []CallRequest
	err := utils.WithTx(ctx, p.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// Reserve candidate locations without waiting: a concurrent
		// backfill or editor holding a row lock just drops that
		// candidate from this batch.
		var args []any
		args = append(args, locationIDs)
		lockArgs := fmt.Sprintf("$%d", len(args))
		query := `SELECT l.id FROM locations l WHERE l.id = ANY(` + lockArgs + `) AND ` +
			p.eligibility.CallableClause("l", &args) +
			` AND NOT EXISTS (SELECT 1 FROM call_requests cr WHERE cr.location_id = l.id AND cr.completed = FALSE)`
		if limit > 0 {
			args = append(args, limit)
			query += fmt.Sprintf(" LIMIT $%d", len(args))
		}
		query += " FOR UPDATE OF l SKIP LOCKED"

		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		var reserved []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			reserved = append(reserved, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, locID := range reserved {
			r, err := scanRequest(tx.QueryRowContext(ctx, `
				INSERT INTO call_requests AS cr
					(location_id, vesting_at, reason, priority_group, priority, tip_type, tip_report_id)
				VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''))
				ON CONFLICT (location_id) WHERE NOT completed DO NOTHING
				RETURNING `+requestColumns,
				locID, tmpl.VestingAt, tmpl.Reason, tmpl.PriorityGroup, tmpl.Priority,
				string(tmpl.TipType), tmpl.TipReportID))
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return err
			}
			created = append(created, r)
		}
		return nil
	})
	return created, err
}

func (p *PGRepo) CompleteClaimedBy(ctx context.Context, locationID int64, reporterID string, now time.Time) ([]CallRequest, error) {
	rows, err := p.db.QueryContext(ctx, `
		UPDATE call_requests AS cr SET completed = TRUE, completed_at = $1
		WHERE cr.location_id = $2 AND cr.claimed_by = $3 AND cr.completed = FALSE
		RETURNING `+requestColumns+`
	`, now, locationID, reporterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Most-recently-claimed first; ids track claim recency for rows
	// claimed by the same reporter.
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (p *PGRepo) DeleteIncompleteForLocation(ctx context.Context, locationID int64) (int64, error) {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM call_requests WHERE location_id = $1 AND completed = FALSE`, locationID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (p *PGRepo) Delete(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := p.db.ExecContext(ctx, `DELETE FROM call_requests WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
