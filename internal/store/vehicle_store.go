package store

import (
	"context"
	"time"
)

type VehicleStore struct {
	db DB
}

func NewVehicleStore(db DB) *VehicleStore {
	return &VehicleStore{db: db}
}

type VehicleRow struct {
	ID          string     `db:"id"`
	Plate       string     `db:"plate"`
	UserID      string     `db:"user_id"`
	IsParked    bool       `db:"is_parked"`
	LastEntryAt *time.Time `db:"last_entry_at"`
	CreatedAt   any        `db:"created_at"`
}

func (s *VehicleStore) Create(ctx context.Context, tx Execer, id, plate, userID string) error {
	query := `
		INSERT INTO vehicles (id, plate, user_id, is_parked)
		VALUES ($1, $2, $3, FALSE)
	`
	_, err := tx.ExecContext(ctx, query, id, plate, userID)
	return err
}

func (s *VehicleStore) GetByPlate(ctx context.Context, plate string) (VehicleRow, error) {
	var row VehicleRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, plate, user_id, is_parked, last_entry_at, created_at
		FROM vehicles
		WHERE plate = $1
	`, plate)
	if err != nil {
		return VehicleRow{}, err
	}
	return row, nil
}

func (s *VehicleStore) GetForUpdate(ctx context.Context, tx Getter, plate string) (VehicleRow, error) {
	var row VehicleRow
	err := tx.GetContext(ctx, &row, `
		SELECT id, plate, user_id, is_parked, last_entry_at
		FROM vehicles
		WHERE plate = $1
		FOR UPDATE
	`, plate)
	if err != nil {
		return VehicleRow{}, err
	}
	return row, nil
}

// SetParked flips the occupancy flag. entryAt is recorded only when parking;
// pass nil when freeing the vehicle.
func (s *VehicleStore) SetParked(ctx context.Context, tx Execer, vehicleID string, parked bool, entryAt *time.Time) error {
	if entryAt != nil {
		_, err := tx.ExecContext(ctx, `
			UPDATE vehicles
			SET is_parked = $1, last_entry_at = $2, updated_at = NOW()
			WHERE id = $3
		`, parked, entryAt, vehicleID)
		return err
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE vehicles
		SET is_parked = $1, updated_at = NOW()
		WHERE id = $2
	`, parked, vehicleID)
	return err
}

func (s *VehicleStore) ListByUser(ctx context.Context, userID string) ([]VehicleRow, error) {
	var rows []VehicleRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, plate, user_id, is_parked, last_entry_at, created_at
		FROM vehicles
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
