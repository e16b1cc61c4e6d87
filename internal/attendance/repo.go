package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a session, record or officer does not exist.
var ErrNotFound = errors.New("not found")

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertSession writes a new session.
func (r *Repository) InsertSession(ctx context.Context, s Session) (Session, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_sessions (id, officer_id, school, start_at, date)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at
	`, s.ID, s.OfficerID, s.School, s.StartAt, s.Date)
	if err := row.Scan(&s.CreatedAt); err != nil {
		return Session{}, err
	}
	return s, nil
}

// GetSession returns a single session by id.
func (r *Repository) GetSession(ctx context.Context, id string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, officer_id, school, start_at, date, created_at
		FROM attendance_sessions WHERE id = $1
	`, id)
	var s Session
	if err := row.Scan(&s.ID, &s.OfficerID, &s.School, &s.StartAt, &s.Date, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	return s, nil
}

// ListSessions returns an officer's sessions, most recent date first.
func (r *Repository) ListSessions(ctx context.Context, officerID string) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, officer_id, school, start_at, date, created_at
		FROM attendance_sessions
		WHERE officer_id = $1
		ORDER BY date DESC, created_at DESC
	`, officerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.OfficerID, &s.School, &s.StartAt, &s.Date, &s.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// InsertRecord appends a check-in record to its session.
func (r *Repository) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, session_id, first_name, last_name, arrival_time, status)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at
	`, rec.ID, rec.SessionID, rec.FirstName, rec.LastName, rec.ArrivalTime, rec.Status)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// GetRecord returns a single record by id.
func (r *Repository) GetRecord(ctx context.Context, id string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, first_name, last_name, arrival_time, status, created_at
		FROM attendance_records WHERE id = $1
	`, id)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.FirstName, &rec.LastName, &rec.ArrivalTime, &rec.Status, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

// ListRecords returns a session's records oldest first, i.e. check-in order.
func (r *Repository) ListRecords(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, first_name, last_name, arrival_time, status, created_at
		FROM attendance_records
		WHERE session_id = $1
		ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.FirstName, &rec.LastName, &rec.ArrivalTime, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// Officer is a chapter account that owns sessions.
type Officer struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	School       string    `json:"school"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateOfficer writes a new officer account.
func (r *Repository) CreateOfficer(ctx context.Context, o Officer) (Officer, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO officers (id, email, password_hash, first_name, last_name, school)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at
	`, o.ID, o.Email, o.PasswordHash, o.FirstName, o.LastName, o.School)
	if err := row.Scan(&o.CreatedAt); err != nil {
		return Officer{}, err
	}
	return o, nil
}

// GetOfficerByEmail looks up an account for login.
func (r *Repository) GetOfficerByEmail(ctx context.Context, email string) (Officer, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, first_name, last_name, school, created_at
		FROM officers WHERE lower(email) = lower($1)
	`, email)
	var o Officer
	if err := row.Scan(&o.ID, &o.Email, &o.PasswordHash, &o.FirstName, &o.LastName, &o.School, &o.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Officer{}, ErrNotFound
		}
		return Officer{}, err
	}
	return o, nil
}

// SchoolExists reports whether some officer already registered the school.
// One account per chapter.
func (r *Repository) SchoolExists(ctx context.Context, school string) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM officers WHERE lower(school) = lower($1))
	`, school)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, officerID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (officer_id, token, expires_at)
		VALUES ($1, $2, $3)
	`, officerID, token, expiresAt)
	return err
}
