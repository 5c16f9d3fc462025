// Package queue publishes gate events to RabbitMQ for downstream consumers
// (barrier displays, analytics) without touching the primary database path.
package queue

// GateEvent is published on every vehicle ingress and egress. It carries
// enough for consumers to react without querying the backend.
type GateEvent struct {
	Type        string `json:"type"`
	Plate       string `json:"plate"`
	Gate        string `json:"gate"`
	SessionID   string `json:"session_id"`
	Amount      string `json:"amount"`
	BilledHours int64  `json:"billed_hours"`
	OccurredAt  string `json:"occurred_at"`
}
