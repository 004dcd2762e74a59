package tokenpkg

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Different types of error returned by the VerifyToken function.
var (
	ErrInvalidToken = errors.New("token is invalid")
	ErrExpiredToken = errors.New("token has expired")
)

// Payload contains the payload data of the token.
//
// OwnerID is the subject of the token and selects the wallet the caller acts on.
type Payload struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   string    `json:"owner_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiredAt time.Time `json:"expired_at"`
}

// NewPayload creates a new token payload with a specific owner and duration.
func NewPayload(ownerID string, duration time.Duration) (*Payload, error) {
	tokenID, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}

	payload := &Payload{
		ID:        tokenID,
		OwnerID:   ownerID,
		IssuedAt:  time.Now(),
		ExpiredAt: time.Now().Add(duration),
	}

	return payload, nil
}

// Valid checks if the token payload is valid or not. A token without an owner cannot
// select a wallet and is invalid.
func (payload *Payload) Valid() error {
	if payload.OwnerID == "" {
		return ErrInvalidToken
	}

	if time.Now().After(payload.ExpiredAt) {
		return ErrExpiredToken
	}

	return nil
}
