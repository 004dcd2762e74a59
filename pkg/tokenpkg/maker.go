// Package tokenpkg provides access token creation and verification.
package tokenpkg

import "time"

// Maker is an interface for managing tokens.
type Maker interface {
	// CreateToken creates a new token for a specific owner and duration.
	CreateToken(ownerID string, duration time.Duration) (string, *Payload, error)

	// VerifyToken checks if the token is valid or not.
	VerifyToken(token string) (*Payload, error)
}
