package reports

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// PGRepo stores reports in Postgres.
//
// Expected schema:
//
//	CREATE TABLE reports (
//	    id                TEXT PRIMARY KEY,
//	    location_id       BIGINT NOT NULL REFERENCES locations(id),
//	    reporter_id       TEXT NOT NULL,
//	    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    call_request_id   BIGINT REFERENCES call_requests(id),
//	    availability_tags JSONB NOT NULL DEFAULT '[]',
//	    public_notes      TEXT NOT NULL DEFAULT '',
//	    internal_notes    TEXT NOT NULL DEFAULT '',
//	    do_not_call_until TIMESTAMPTZ
//	);

type PGRepo struct {
	db *sql.DB
}

func NewPGRepo(db *sql.DB) *PGRepo { return &PGRepo{db: db} }

func (p *PGRepo) Insert(ctx context.Context, r Report) error {
	tags, err := json.Marshal(r.AvailabilityTags)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO reports
			(id, location_id, reporter_id, created_at, availability_tags, public_notes, internal_notes, do_not_call_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, r.ID, r.LocationID, r.ReporterID, r.CreatedAt, tags, r.PublicNotes, r.InternalNotes, r.DoNotCallUntil)
	return err
}

func (p *PGRepo) Get(ctx context.Context, id string) (Report, error) {
	var r Report
	var callRequestID sql.NullInt64
	var doNotCallUntil sql.NullTime
	var tags []byte
	err := p.db.QueryRowContext(ctx, `
		SELECT id, location_id, reporter_id, created_at, call_request_id,
		       availability_tags, public_notes, internal_notes, do_not_call_until
		FROM reports WHERE id = $1
	`, id).Scan(&r.ID, &r.LocationID, &r.ReporterID, &r.CreatedAt, &callRequestID,
		&tags, &r.PublicNotes, &r.InternalNotes, &doNotCallUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, ErrNotFound
	}
	if err != nil {
		return Report{}, err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &r.AvailabilityTags); err != nil {
			return Report{}, err
		}
	}
	if callRequestID.Valid {
		v := callRequestID.Int64
		r.CallRequestID = &v
	}
	if doNotCallUntil.Valid {
		t := doNotCallUntil.Time
		r.DoNotCallUntil = &t
	}
	return r, nil
}

func (p *PGRepo) LinkCallRequest(ctx context.Context, reportID string, callRequestID int64) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE reports SET call_request_id = $1 WHERE id = $2`, callRequestID, reportID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PGRepo) CountByReporter(ctx context.Context, reporterID string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reports WHERE reporter_id = $1`, reporterID).Scan(&n)
	return n, err
}

func (p *PGRepo) CountByReporterSince(ctx context.Context, reporterID string, since time.Time) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reports WHERE reporter_id = $1 AND created_at >= $2`, reporterID, since).Scan(&n)
	return n, err
}
