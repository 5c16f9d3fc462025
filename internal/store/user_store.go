package store

import "context"

type UserStore struct {
	db DB
}

func NewUserStore(db DB) *UserStore {
	return &UserStore{db: db}
}

type UserRow struct {
	ID               string  `db:"id"`
	DocumentID       string  `db:"document_id"`
	Name             string  `db:"name"`
	PasswordHash     string  `db:"password_hash"`
	MembershipClass  string  `db:"membership_class"`
	AssignedTariffID *string `db:"assigned_tariff_id"`
	Balance          int64   `db:"balance"`
	Active           bool    `db:"active"`
	CreatedAt        any     `db:"created_at"`
}

type UserInput struct {
	ID              string
	DocumentID      string
	Name            string
	PasswordHash    string
	MembershipClass string
	Balance         int64
}

func (s *UserStore) Create(ctx context.Context, tx Execer, input UserInput) error {
	query := `
		INSERT INTO users (id, document_id, name, password_hash, membership_class, balance, active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.DocumentID, input.Name, input.PasswordHash, input.MembershipClass, input.Balance,
	)
	return err
}

func (s *UserStore) GetByID(ctx context.Context, userID string) (UserRow, error) {
	var row UserRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, document_id, name, password_hash, membership_class, assigned_tariff_id, balance, active, created_at
		FROM users
		WHERE id = $1
	`, userID)
	if err != nil {
		return UserRow{}, err
	}
	return row, nil
}

func (s *UserStore) GetByDocument(ctx context.Context, documentID string) (UserRow, error) {
	var row UserRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, document_id, name, password_hash, membership_class, assigned_tariff_id, balance, active, created_at
		FROM users
		WHERE document_id = $1
	`, documentID)
	if err != nil {
		return UserRow{}, err
	}
	return row, nil
}

func (s *UserStore) GetForUpdate(ctx context.Context, tx Getter, userID string) (UserRow, error) {
	var row UserRow
	err := tx.GetContext(ctx, &row, `
		SELECT id, document_id, name, password_hash, membership_class, assigned_tariff_id, balance, active
		FROM users
		WHERE id = $1
		FOR UPDATE
	`, userID)
	if err != nil {
		return UserRow{}, err
	}
	return row, nil
}

func (s *UserStore) UpdateBalance(ctx context.Context, tx Execer, userID string, balance int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE users
		SET balance = $1, updated_at = NOW()
		WHERE id = $2
	`, balance, userID)
	return err
}

func (s *UserStore) AssignTariff(ctx context.Context, tx Execer, userID string, tariffID *string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE users
		SET assigned_tariff_id = $1, updated_at = NOW()
		WHERE id = $2
	`, tariffID, userID)
	return err
}

// Deactivate soft-deletes a user; records referencing it stay intact.
func (s *UserStore) Deactivate(ctx context.Context, tx Execer, userID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE users
		SET active = FALSE, updated_at = NOW()
		WHERE id = $1
	`, userID)
	return err
}

func (s *UserStore) ListAll(ctx context.Context, limit, offset int) ([]UserRow, error) {
	var rows []UserRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, document_id, name, password_hash, membership_class, assigned_tariff_id, balance, active, created_at
		FROM users
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
