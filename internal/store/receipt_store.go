package store

import "context"

type ReceiptStore struct {
	db DB
}

func NewReceiptStore(db DB) *ReceiptStore {
	return &ReceiptStore{db: db}
}

type ReceiptRow struct {
	ID           string `db:"id"`
	Number       int64  `db:"number"`
	UserID       string `db:"user_id"`
	UserDocument string `db:"user_document"`
	UserName     string `db:"user_name"`
	Amount       int64  `db:"amount"`
	CreatedAt    any    `db:"created_at"`
}

type ReceiptInput struct {
	ID           string
	Number       int64
	UserID       string
	UserDocument string
	UserName     string
	Amount       int64
}

// NextReceiptNumber advances the company-wide receipt counter. The single
// company_settings row serializes concurrent top-ups without an extra lock.
func (s *ReceiptStore) NextReceiptNumber(ctx context.Context, tx Tx) (int64, error) {
	var number int64
	err := tx.GetContext(ctx, &number, `
		UPDATE company_settings
		SET receipt_seq = receipt_seq + 1
		WHERE id = 1
		RETURNING receipt_seq
	`)
	if err != nil {
		return 0, err
	}
	return number, nil
}

func (s *ReceiptStore) Create(ctx context.Context, tx Execer, input ReceiptInput) error {
	query := `
		INSERT INTO receipts (id, number, user_id, user_document, user_name, amount)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.Number, input.UserID, input.UserDocument, input.UserName, input.Amount,
	)
	return err
}

func (s *ReceiptStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]ReceiptRow, error) {
	var rows []ReceiptRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, number, user_id, user_document, user_name, amount, created_at
		FROM receipts
		WHERE user_id = $1
		ORDER BY number DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
