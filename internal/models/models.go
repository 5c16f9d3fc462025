package models

import "time"

const (
	MembershipAssociated    = "associated"
	MembershipNonAssociated = "non_associated"
)

const (
	SessionActive   = "active"
	SessionFinished = "finished"
)

const (
	RecordIngress = "ingress"
	RecordEgress  = "egress"
)

type User struct {
	ID               string    `db:"id" json:"id"`
	DocumentID       string    `db:"document_id" json:"document_id"`
	Name             string    `db:"name" json:"name"`
	PasswordHash     string    `db:"password_hash" json:"-"`
	MembershipClass  string    `db:"membership_class" json:"membership_class"`
	AssignedTariffID *string   `db:"assigned_tariff_id" json:"assigned_tariff_id,omitempty"`
	Balance          int64     `db:"balance" json:"balance"`
	Active           bool      `db:"active" json:"active"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

type Vehicle struct {
	ID          string     `db:"id" json:"id"`
	Plate       string     `db:"plate" json:"plate"`
	UserID      string     `db:"user_id" json:"user_id"`
	IsParked    bool       `db:"is_parked" json:"is_parked"`
	LastEntryAt *time.Time `db:"last_entry_at" json:"last_entry_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

type Tariff struct {
	ID         string    `db:"id" json:"id"`
	UserClass  string    `db:"user_class" json:"user_class"`
	HourlyRate string    `db:"hourly_rate" json:"hourly_rate"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

type Session struct {
	ID          string     `db:"id" json:"id"`
	Plate       string     `db:"plate" json:"plate"`
	UserID      string     `db:"user_id" json:"user_id"`
	Gate        string     `db:"gate" json:"gate"`
	StartedAt   time.Time  `db:"started_at" json:"started_at"`
	EndedAt     *time.Time `db:"ended_at" json:"ended_at,omitempty"`
	RealHours   float64    `db:"real_hours" json:"real_hours"`
	BilledHours int64      `db:"billed_hours" json:"billed_hours"`
	Amount      int64      `db:"amount" json:"amount"`
	Status      string     `db:"status" json:"status"`
}

// GateRecord is an append-only journal entry. User and tariff fields are
// snapshots taken at event time so historical reports survive later edits
// to users, vehicles or tariffs.
type GateRecord struct {
	ID           string    `db:"id" json:"id"`
	Type         string    `db:"type" json:"type"`
	Status       string    `db:"status" json:"status"`
	Plate        string    `db:"plate" json:"plate"`
	Gate         string    `db:"gate" json:"gate"`
	UserDocument string    `db:"user_document" json:"user_document"`
	UserName     string    `db:"user_name" json:"user_name"`
	UserClass    string    `db:"user_class" json:"user_class"`
	HourlyRate   string    `db:"hourly_rate" json:"hourly_rate"`
	RateSource   string    `db:"rate_source" json:"rate_source"`
	Amount       int64     `db:"amount" json:"amount"`
	RealHours    float64   `db:"real_hours" json:"real_hours"`
	BilledHours  int64     `db:"billed_hours" json:"billed_hours"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type AuditLogEntry struct {
	ID          string    `db:"id" json:"id"`
	ActorUserID *string   `db:"actor_user_id" json:"actor_user_id,omitempty"`
	Action      string    `db:"action" json:"action"`
	EntityType  string    `db:"entity_type" json:"entity_type"`
	EntityID    string    `db:"entity_id" json:"entity_id"`
	Before      string    `db:"before_data" json:"before"`
	After       string    `db:"after_data" json:"after"`
	Reason      string    `db:"reason" json:"reason"`
	IP          string    `db:"ip" json:"ip"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

type Receipt struct {
	ID           string    `db:"id" json:"id"`
	Number       int64     `db:"number" json:"number"`
	UserID       string    `db:"user_id" json:"user_id"`
	UserDocument string    `db:"user_document" json:"user_document"`
	UserName     string    `db:"user_name" json:"user_name"`
	Amount       int64     `db:"amount" json:"amount"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
