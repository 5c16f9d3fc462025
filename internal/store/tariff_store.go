package store

import "context"

type TariffStore struct {
	db DB
}

func NewTariffStore(db DB) *TariffStore {
	return &TariffStore{db: db}
}

type TariffRow struct {
	ID         string `db:"id"`
	UserClass  string `db:"user_class"`
	HourlyRate string `db:"hourly_rate"`
	Active     bool   `db:"active"`
	CreatedAt  any    `db:"created_at"`
}

func (s *TariffStore) Create(ctx context.Context, tx Execer, id, userClass, hourlyRate string) error {
	query := `
		INSERT INTO tariffs (id, user_class, hourly_rate, active)
		VALUES ($1, $2, $3, TRUE)
	`
	_, err := tx.ExecContext(ctx, query, id, userClass, hourlyRate)
	return err
}

func (s *TariffStore) GetByID(ctx context.Context, tariffID string) (TariffRow, error) {
	var row TariffRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_class, hourly_rate, active, created_at
		FROM tariffs
		WHERE id = $1
	`, tariffID)
	if err != nil {
		return TariffRow{}, err
	}
	return row, nil
}

// GetActiveByClass returns the newest active tariff for a class. More than
// one active row per class is tolerated; the newest wins.
func (s *TariffStore) GetActiveByClass(ctx context.Context, userClass string) (TariffRow, error) {
	var row TariffRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_class, hourly_rate, active, created_at
		FROM tariffs
		WHERE user_class = $1 AND active = TRUE
		ORDER BY created_at DESC
		LIMIT 1
	`, userClass)
	if err != nil {
		return TariffRow{}, err
	}
	return row, nil
}

// GetActiveByClassForUpdate row-locks the newest active tariff for a class
// so concurrent replacements serialize instead of both retiring the same row.
func (s *TariffStore) GetActiveByClassForUpdate(ctx context.Context, tx Getter, userClass string) (TariffRow, error) {
	var row TariffRow
	err := tx.GetContext(ctx, &row, `
		SELECT id, user_class, hourly_rate, active, created_at
		FROM tariffs
		WHERE user_class = $1 AND active = TRUE
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, userClass)
	if err != nil {
		return TariffRow{}, err
	}
	return row, nil
}

func (s *TariffStore) Deactivate(ctx context.Context, tx Execer, tariffID string) (int64, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE tariffs
		SET active = FALSE, updated_at = NOW()
		WHERE id = $1 AND active = TRUE
	`, tariffID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *TariffStore) List(ctx context.Context) ([]TariffRow, error) {
	var rows []TariffRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_class, hourly_rate, active, created_at
		FROM tariffs
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
