package locations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PGDirectory reads the locations table maintained by the directory
// importers. Eligibility is compiled into the WHERE clause so the queue
// and the directory agree on callability.

type PGDirectory struct {
	db          *sql.DB
	eligibility Eligibility
}

func NewPGDirectory(db *sql.DB, e Eligibility) *PGDirectory {
	return &PGDirectory{db: db, eligibility: e}
}

const locationColumns = `id, public_id, name, phone_number, full_address, state,
	soft_deleted, do_not_call, preferred_contact_method, latest_report_at, report_count`

func scanLocation(row interface{ Scan(dest ...any) error }) (Location, error) {
	var l Location
	var addr, pcm sql.NullString
	var latest sql.NullTime
	err := row.Scan(&l.ID, &l.PublicID, &l.Name, &l.PhoneNumber, &addr, &l.State,
		&l.SoftDeleted, &l.DoNotCall, &pcm, &latest, &l.ReportCount)
	if err != nil {
		return Location{}, err
	}
	l.FullAddress = addr.String
	l.PreferredContactMethod = pcm.String
	if latest.Valid {
		t := latest.Time
		l.LatestReportAt = &t
	}
	return l, nil
}

func (d *PGDirectory) Get(ctx context.Context, id int64) (Location, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = $1`, id)
	l, err := scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Location{}, ErrNotFound
	}
	return l, err
}

func (d *PGDirectory) GetByPublicID(ctx context.Context, publicID string) (Location, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+locationColumns+` FROM locations WHERE public_id = $1`, publicID)
	l, err := scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Location{}, ErrNotFound
	}
	return l, err
}

func (d *PGDirectory) ListCallable(ctx context.Context, state string) ([]Location, error) {
	var args []any
	query := `SELECT ` + locationColumns + ` FROM locations WHERE ` + d.eligibility.CallableClause("", &args)
	if state != "" {
		args = append(args, state)
		query += fmt.Sprintf(" AND state = $%d", len(args))
	}
	query += " ORDER BY id"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (d *PGDirectory) IsCallable(ctx context.Context, id int64) (bool, error) {
	args := []any{}
	query := `SELECT ` + locationColumns + ` FROM locations WHERE ` + d.eligibility.CallableClause("", &args)
	args = append(args, id)
	query += fmt.Sprintf(" AND id = $%d", len(args))

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	return rows.Next(), rows.Err()
}

func (d *PGDirectory) SetOutreachFlags(ctx context.Context, id int64, flags OutreachFlags) (Location, error) {
	sets := []string{}
	args := []any{}
	if flags.SoftDeleted != nil {
		args = append(args, *flags.SoftDeleted)
		sets = append(sets, fmt.Sprintf("soft_deleted = $%d", len(args)))
	}
	if flags.DoNotCall != nil {
		args = append(args, *flags.DoNotCall)
		sets = append(sets, fmt.Sprintf("do_not_call = $%d", len(args)))
	}
	if flags.PreferredContactMethod != nil {
		args = append(args, *flags.PreferredContactMethod)
		sets = append(sets, fmt.Sprintf("preferred_contact_method = $%d", len(args)))
	}
	if len(sets) == 0 {
		return d.Get(ctx, id)
	}
	args = append(args, id)
	query := `UPDATE locations SET ` + strings.Join(sets, ", ") +
		fmt.Sprintf(` WHERE id = $%d RETURNING `, len(args)) + locationColumns

	l, err := scanLocation(d.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Location{}, ErrNotFound
	}
	return l, err
}

func (d *PGDirectory) RecordReport(ctx context.Context, id int64, at time.Time) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE locations
		SET latest_report_at = GREATEST(COALESCE(latest_report_at, $1), $1),
		    report_count = report_count + 1
		WHERE id = $2
	`, at, id)
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
