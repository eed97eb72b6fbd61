package model

import (
	"time"

	"github.com/google/uuid"
)

type JournalKind string

const (
	JournalUserCreated JournalKind = "USER_CREATED"
	JournalAppended    JournalKind = "APPENDED"
	JournalTokenIssued JournalKind = "TOKEN_ISSUED"
)

// JournalEvent records one state change of a user's log. Events are
// informational; the log files remain the source of truth.
type JournalEvent struct {
	ID        uuid.UUID   `db:"id" json:"id"`
	User      string      `db:"user_name" json:"user"`
	Kind      JournalKind `db:"kind" json:"kind"`
	Bytes     int64       `db:"bytes" json:"bytes"`
	ConnID    string      `db:"conn_id" json:"conn_id,omitempty"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}
