package store

import (
	"context"
	"time"
)

type SessionStore struct {
	db DB
}

func NewSessionStore(db DB) *SessionStore {
	return &SessionStore{db: db}
}

type SessionRow struct {
	ID          string     `db:"id"`
	Plate       string     `db:"plate"`
	UserID      string     `db:"user_id"`
	Gate        string     `db:"gate"`
	StartedAt   time.Time  `db:"started_at"`
	EndedAt     *time.Time `db:"ended_at"`
	RealHours   float64    `db:"real_hours"`
	BilledHours int64      `db:"billed_hours"`
	Amount      int64      `db:"amount"`
	Status      string     `db:"status"`
}

type SessionInput struct {
	ID        string
	Plate     string
	UserID    string
	Gate      string
	StartedAt time.Time
}

// Create inserts a new active session. The caller checks the vehicle flag
// first; the partial unique index on (plate) WHERE status = 'active' is the
// final guard against a racing second start.
func (s *SessionStore) Create(ctx context.Context, tx Execer, input SessionInput) error {
	query := `
		INSERT INTO sessions (id, plate, user_id, gate, started_at, status)
		VALUES ($1, $2, $3, $4, $5, 'active')
	`
	_, err := tx.ExecContext(ctx, query, input.ID, input.Plate, input.UserID, input.Gate, input.StartedAt)
	return err
}

func (s *SessionStore) FindActiveByPlate(ctx context.Context, plate string) (SessionRow, error) {
	var row SessionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, plate, user_id, gate, started_at, ended_at, real_hours, billed_hours, amount, status
		FROM sessions
		WHERE plate = $1 AND status = 'active'
	`, plate)
	if err != nil {
		return SessionRow{}, err
	}
	return row, nil
}

func (s *SessionStore) FindActiveForUpdate(ctx context.Context, tx Getter, plate string) (SessionRow, error) {
	var row SessionRow
	err := tx.GetContext(ctx, &row, `
		SELECT id, plate, user_id, gate, started_at, ended_at, real_hours, billed_hours, amount, status
		FROM sessions
		WHERE plate = $1 AND status = 'active'
		FOR UPDATE
	`, plate)
	if err != nil {
		return SessionRow{}, err
	}
	return row, nil
}

func (s *SessionStore) GetByID(ctx context.Context, sessionID string) (SessionRow, error) {
	var row SessionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, plate, user_id, gate, started_at, ended_at, real_hours, billed_hours, amount, status
		FROM sessions
		WHERE id = $1
	`, sessionID)
	if err != nil {
		return SessionRow{}, err
	}
	return row, nil
}

// Finish transitions active -> finished. The status guard makes the
// transition one-way: zero rows affected means the session was not active.
func (s *SessionStore) Finish(ctx context.Context, tx Execer, sessionID string, endedAt time.Time, realHours float64, billedHours, amount int64) (int64, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE sessions
		SET status = 'finished', ended_at = $1, real_hours = $2, billed_hours = $3, amount = $4
		WHERE id = $5 AND status = 'active'
	`, endedAt, realHours, billedHours, amount, sessionID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *SessionStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]SessionRow, error) {
	var rows []SessionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, plate, user_id, gate, started_at, ended_at, real_hours, billed_hours, amount, status
		FROM sessions
		WHERE user_id = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
