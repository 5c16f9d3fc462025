package store

import "context"

// GateRecordStore is the append-only journal of ingress and egress events.
// Rows carry denormalized snapshots of the user and resolved tariff so
// historical reports are unaffected by later edits.
type GateRecordStore struct {
	db DB
}

func NewGateRecordStore(db DB) *GateRecordStore {
	return &GateRecordStore{db: db}
}

type GateRecordRow struct {
	ID           string  `db:"id"`
	Type         string  `db:"type"`
	Status       string  `db:"status"`
	Plate        string  `db:"plate"`
	Gate         string  `db:"gate"`
	UserDocument string  `db:"user_document"`
	UserName     string  `db:"user_name"`
	UserClass    string  `db:"user_class"`
	HourlyRate   string  `db:"hourly_rate"`
	RateSource   string  `db:"rate_source"`
	Amount       int64   `db:"amount"`
	RealHours    float64 `db:"real_hours"`
	BilledHours  int64   `db:"billed_hours"`
	CreatedAt    any     `db:"created_at"`
}

type GateRecordInput struct {
	ID           string
	Type         string
	Status       string
	Plate        string
	Gate         string
	UserDocument string
	UserName     string
	UserClass    string
	HourlyRate   string
	RateSource   string
	Amount       int64
	RealHours    float64
	BilledHours  int64
}

func (s *GateRecordStore) Append(ctx context.Context, tx Execer, input GateRecordInput) error {
	query := `
		INSERT INTO gate_records (id, type, status, plate, gate, user_document, user_name, user_class, hourly_rate, rate_source, amount, real_hours, billed_hours)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.Type, input.Status, input.Plate, input.Gate,
		input.UserDocument, input.UserName, input.UserClass,
		input.HourlyRate, input.RateSource,
		input.Amount, input.RealHours, input.BilledHours,
	)
	return err
}

func (s *GateRecordStore) FindOpenIngressByPlate(ctx context.Context, tx Getter, plate string) (GateRecordRow, error) {
	var row GateRecordRow
	err := tx.GetContext(ctx, &row, `
		SELECT id, type, status, plate, gate, user_document, user_name, user_class, hourly_rate, rate_source, amount, real_hours, billed_hours, created_at
		FROM gate_records
		WHERE plate = $1 AND type = 'ingress' AND status = 'active'
		ORDER BY created_at DESC
		LIMIT 1
	`, plate)
	if err != nil {
		return GateRecordRow{}, err
	}
	return row, nil
}

// CloseIngress marks the open ingress row finished. Only the row status
// changes; the snapshot stays as written at entry time.
func (s *GateRecordStore) CloseIngress(ctx context.Context, tx Execer, recordID string) (int64, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE gate_records
		SET status = 'finished'
		WHERE id = $1 AND type = 'ingress' AND status = 'active'
	`, recordID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *GateRecordStore) ListByDocument(ctx context.Context, document string, limit, offset int) ([]GateRecordRow, error) {
	var rows []GateRecordRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, type, status, plate, gate, user_document, user_name, user_class, hourly_rate, rate_source, amount, real_hours, billed_hours, created_at
		FROM gate_records
		WHERE user_document = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, document, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *GateRecordStore) ListAll(ctx context.Context, recordType string, limit, offset int) ([]GateRecordRow, error) {
	var rows []GateRecordRow
	if recordType != "" {
		err := s.db.SelectContext(ctx, &rows, `
			SELECT id, type, status, plate, gate, user_document, user_name, user_class, hourly_rate, rate_source, amount, real_hours, billed_hours, created_at
			FROM gate_records
			WHERE type = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3
		`, recordType, limit, offset)
		if err != nil {
			return nil, err
		}
		return rows, nil
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, type, status, plate, gate, user_document, user_name, user_class, hourly_rate, rate_source, amount, real_hours, billed_hours, created_at
		FROM gate_records
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
