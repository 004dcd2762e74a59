// Package entrypub publishes a notification for every ledger entry that was appended.
//
// Publishing happens after the entry is durable, so a failed publish never undoes an
// operation. Consumers must tolerate duplicates and gaps.
package entrypub

import (
	"strings"
	"time"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/moneypkg"
	"github.com/google/uuid"
)

// EventEntryRecorded names the EntryRecorded event type.
const EventEntryRecorded = "ledger.entry_recorded"

// EntryRecorded is the payload published for an appended entry.
type EntryRecorded struct {
	Event                string           `json:"event"`
	EntryID              uuid.UUID        `json:"entry_id"`
	Kind                 domain.EntryKind `json:"kind"`
	SourceAccountID      uuid.UUID        `json:"source_account_id"`
	DestinationAccountID *uuid.UUID       `json:"destination_account_id,omitempty"`
	Amount               moneypkg.Money   `json:"amount"`
	Timestamp            time.Time        `json:"timestamp"`
}

// NewEntryRecorded builds the event for e.
func NewEntryRecorded(e domain.Entry) EntryRecorded {
	ev := EntryRecorded{
		Event:           EventEntryRecorded,
		EntryID:         e.ID(),
		Kind:            e.Kind(),
		SourceAccountID: e.SourceAccountID(),
		Amount:          e.Amount(),
		Timestamp:       e.Timestamp(),
	}

	if dst := e.DestinationAccountID(); dst.Valid {
		id := dst.UUID
		ev.DestinationAccountID = &id
	}

	return ev
}

// RoutingKey returns "entry.<kind>" in lower case, e.g. "entry.deposit".
func (ev EntryRecorded) RoutingKey() string {
	return "entry." + strings.ToLower(string(ev.Kind))
}
