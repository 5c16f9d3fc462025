package store

import "context"

type AuditStore struct {
	db DB
}

type auditRow struct {
	ID          string  `db:"id"`
	ActorUserID *string `db:"actor_user_id"`
	Action      string  `db:"action"`
	EntityType  string  `db:"entity_type"`
	EntityID    string  `db:"entity_id"`
	Before      string  `db:"before_data"`
	After       string  `db:"after_data"`
	Reason      string  `db:"reason"`
	IP          string  `db:"ip"`
	CreatedAt   any     `db:"created_at"`
}

func NewAuditStore(db DB) *AuditStore {
	return &AuditStore{db: db}
}

type AuditInput struct {
	ActorUserID string
	Action      string
	EntityType  string
	EntityID    string
	Before      string
	After       string
	Reason      string
	IP          string
}

func (s *AuditStore) Log(ctx context.Context, tx Execer, input AuditInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_user_id, action, entity_type, entity_id, before_data, after_data, reason, ip)
		VALUES (gen_random_uuid()::text, $1, $2, $3, $4, $5, $6, $7, $8)
	`, input.ActorUserID, input.Action, input.EntityType, input.EntityID, input.Before, input.After, input.Reason, input.IP)
	return err
}

func (s *AuditStore) List(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	var rows []auditRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, actor_user_id, action, entity_type, entity_id, before_data, after_data, reason, ip, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	logs := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		logs = append(logs, map[string]any{
			"id":            row.ID,
			"actor_user_id": derefStringPtr(row.ActorUserID),
			"action":        row.Action,
			"entity_type":   row.EntityType,
			"entity_id":     row.EntityID,
			"before":        row.Before,
			"after":         row.After,
			"reason":        row.Reason,
			"ip":            row.IP,
			"created_at":    row.CreatedAt,
		})
	}
	return logs, nil
}

func derefStringPtr(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
