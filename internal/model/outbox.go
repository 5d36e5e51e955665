package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// Realtime event names.
const (
	EventPatientJoined  = "patient-joined"
	EventPatientCalled  = "patient-called"
	EventPatientServed  = "patient-served"
	EventPatientUpdated = "patient-updated"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       string          `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
}

// QueueEvent is the payload carried by every realtime event.
type QueueEvent struct {
	TicketNumber string      `json:"ticketNumber"`
	Status       QueueStatus `json:"status"`
	StaffID      string      `json:"staffId,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// NewQueueOutboxEvent builds a pending outbox row for a status change of p.
func NewQueueOutboxEvent(p *Patient, staffID string, now time.Time) (*OutboxEvent, error) {
	payload, err := json.Marshal(QueueEvent{
		TicketNumber: p.TicketNumber,
		Status:       p.Status,
		StaffID:      staffID,
		Timestamp:    now.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal queue event: %w", err)
	}
	return &OutboxEvent{
		ID:        uuid.New(),
		EventType: EventTypeFor(p.Status),
		Payload:   payload,
		Status:    string(OutboxStatusPending),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Envelope is what travels over the broker and out to stream clients.
type Envelope struct {
	ID      uuid.UUID       `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}
