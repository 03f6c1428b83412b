package audit

import (
	"encoding/json"
	"log"
	"time"
)

type AuditEvent struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	EscrowID  string    `json:"escrow_id"`
	ActorID   string    `json:"actor_id,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	Status    string    `json:"status"`
	Details   any       `json:"details,omitempty"`
}

// Sink receives encoded audit lines.
type Sink func(line string)

type AuditLogger struct {
	sink Sink
	now  func() time.Time
}

func NewAuditLogger() *AuditLogger {
	return &AuditLogger{
		sink: func(line string) { log.Printf("AUDIT: %s", line) },
		now:  time.Now,
	}
}

// NewAuditLoggerWithSink routes audit lines to sink instead of the log.
func NewAuditLoggerWithSink(sink Sink) *AuditLogger {
	return &AuditLogger{sink: sink, now: time.Now}
}

func (a *AuditLogger) LogTransition(escrowID, actorID, from, to string) {
	a.log(AuditEvent{
		EventType: "ESCROW_TRANSITION",
		EscrowID:  escrowID,
		ActorID:   actorID,
		Status:    to,
		Details:   map[string]string{"from": from, "to": to},
	})
}

func (a *AuditLogger) LogDeposit(escrowID, reference string, amount int64, counted bool) {
	status := "COUNTED"
	if !counted {
		status = "HELD"
	}
	a.log(AuditEvent{
		EventType: "DEPOSIT",
		EscrowID:  escrowID,
		Amount:    amount,
		Status:    status,
		Details:   map[string]string{"reference": reference},
	})
}

func (a *AuditLogger) LogApproval(escrowID, adminID, role, action, reason string) {
	a.log(AuditEvent{
		EventType: "APPROVAL",
		EscrowID:  escrowID,
		ActorID:   adminID,
		Status:    action,
		Details:   map[string]string{"role": role, "reason": reason},
	})
}

func (a *AuditLogger) LogTransfer(kind, escrowID, transactionID string, amount int64, status string) {
	a.log(AuditEvent{
		EventType: kind,
		EscrowID:  escrowID,
		Amount:    amount,
		Status:    status,
		Details:   map[string]string{"transaction_id": transactionID},
	})
}

func (a *AuditLogger) LogError(escrowID, operation string, err error) {
	a.log(AuditEvent{
		EventType: "ERROR",
		EscrowID:  escrowID,
		Status:    "FAILED",
		Details:   map[string]string{"operation": operation, "error": err.Error()},
	})
}

func (a *AuditLogger) log(event AuditEvent) {
	event.Timestamp = a.now().UTC()
	data, _ := json.Marshal(event)
	a.sink(string(data))
}
