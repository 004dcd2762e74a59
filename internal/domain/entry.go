package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/go-petr/pet-ledger/pkg/moneypkg"
	"github.com/google/uuid"
)

// EntryKind is the kind of money movement an Entry records.
type EntryKind string

// Supported entry kinds.
const (
	EntryDeposit  EntryKind = "DEPOSIT"
	EntryWithdraw EntryKind = "WITHDRAW"
	EntryTransfer EntryKind = "TRANSFER"
)

// Valid reports whether k is one of the supported kinds.
func (k EntryKind) Valid() bool {
	switch k {
	case EntryDeposit, EntryWithdraw, EntryTransfer:
		return true
	}

	return false
}

var (
	// ErrMissingAccount indicates an entry without a required account reference.
	ErrMissingAccount = errors.New("entry account is required")
	// ErrInvalidEntryKind indicates an unknown entry kind.
	ErrInvalidEntryKind = errors.New("invalid entry kind")
)

// Entry is an immutable record of one money movement.
//
// Entries reference accounts by id only. They are appended to the ledger once and never
// updated or deleted.
type Entry struct {
	id          uuid.UUID
	source      uuid.UUID
	destination uuid.NullUUID
	kind        EntryKind
	amount      moneypkg.Money
	timestamp   time.Time
}

// NewDepositEntry records money entering accountID.
func NewDepositEntry(accountID uuid.UUID, amount moneypkg.Money) (Entry, error) {
	return newEntry(accountID, uuid.NullUUID{}, EntryDeposit, amount)
}

// NewWithdrawEntry records money leaving accountID.
func NewWithdrawEntry(accountID uuid.UUID, amount moneypkg.Money) (Entry, error) {
	return newEntry(accountID, uuid.NullUUID{}, EntryWithdraw, amount)
}

// NewTransferEntry records money moving from source to destination.
func NewTransferEntry(source, destination uuid.UUID, amount moneypkg.Money) (Entry, error) {
	if destination == uuid.Nil {
		return Entry{}, ErrMissingAccount
	}

	if source == destination {
		return Entry{}, ErrOperationNotAllowed
	}

	return newEntry(source, uuid.NullUUID{UUID: destination, Valid: true}, EntryTransfer, amount)
}

func newEntry(source uuid.UUID, destination uuid.NullUUID, kind EntryKind, amount moneypkg.Money) (Entry, error) {
	if source == uuid.Nil {
		return Entry{}, ErrMissingAccount
	}

	if err := amount.ValidateAmount(); err != nil {
		return Entry{}, err
	}

	return Entry{
		id:          uuid.New(),
		source:      source,
		destination: destination,
		kind:        kind,
		amount:      amount,
		timestamp:   Now(),
	}, nil
}

// RestoreEntry rebuilds an entry read back from a log store.
func RestoreEntry(
	id, source uuid.UUID,
	destination uuid.NullUUID,
	kind EntryKind,
	amount moneypkg.Money,
	timestamp time.Time,
) (Entry, error) {
	if !kind.Valid() {
		return Entry{}, ErrInvalidEntryKind
	}

	if source == uuid.Nil || (kind == EntryTransfer && !destination.Valid) {
		return Entry{}, ErrMissingAccount
	}

	if err := amount.ValidateAmount(); err != nil {
		return Entry{}, err
	}

	if kind != EntryTransfer {
		destination = uuid.NullUUID{}
	}

	return Entry{
		id:          id,
		source:      source,
		destination: destination,
		kind:        kind,
		amount:      amount,
		timestamp:   timestamp.UTC(),
	}, nil
}

// ID returns the entry id.
func (e Entry) ID() uuid.UUID { return e.id }

// SourceAccountID returns the account the movement starts from.
func (e Entry) SourceAccountID() uuid.UUID { return e.source }

// DestinationAccountID returns the receiving account of a transfer.
func (e Entry) DestinationAccountID() uuid.NullUUID { return e.destination }

// Kind returns the entry kind.
func (e Entry) Kind() EntryKind { return e.kind }

// Amount returns the moved amount. Always positive.
func (e Entry) Amount() moneypkg.Money { return e.amount }

// Timestamp returns the moment the entry was created.
func (e Entry) Timestamp() time.Time { return e.timestamp }

// Involves reports whether accountID is the source or the destination of the entry.
func (e Entry) Involves(accountID uuid.UUID) bool {
	return e.source == accountID || (e.destination.Valid && e.destination.UUID == accountID)
}

// Contribution returns the signed effect of the entry on accountID's balance.
func (e Entry) Contribution(accountID uuid.UUID) moneypkg.Money {
	switch e.kind {
	case EntryDeposit:
		return e.amount
	case EntryWithdraw:
		return e.amount.Neg()
	case EntryTransfer:
		if e.destination.Valid && e.destination.UUID == accountID {
			return e.amount
		}

		if e.source == accountID {
			return e.amount.Neg()
		}
	}

	return moneypkg.Zero
}

type entryJSON struct {
	ID                   uuid.UUID      `json:"id"`
	SourceAccountID      uuid.UUID      `json:"source_account_id"`
	DestinationAccountID *uuid.UUID     `json:"destination_account_id,omitempty"`
	Kind                 EntryKind      `json:"kind"`
	Amount               moneypkg.Money `json:"amount"`
	Timestamp            time.Time      `json:"timestamp"`
}

// MarshalJSON implements json.Marshaler.
func (e Entry) MarshalJSON() ([]byte, error) {
	v := entryJSON{
		ID:              e.id,
		SourceAccountID: e.source,
		Kind:            e.kind,
		Amount:          e.amount,
		Timestamp:       e.timestamp,
	}

	if e.destination.Valid {
		dst := e.destination.UUID
		v.DestinationAccountID = &dst
	}

	return json.Marshal(v)
}

// UnmarshalJSON implements json.Unmarshaler and validates the decoded entry.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var v entryJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	var dst uuid.NullUUID
	if v.DestinationAccountID != nil {
		dst = uuid.NullUUID{UUID: *v.DestinationAccountID, Valid: true}
	}

	restored, err := RestoreEntry(v.ID, v.SourceAccountID, dst, v.Kind, v.Amount, v.Timestamp)
	if err != nil {
		return err
	}

	*e = restored

	return nil
}
