package tokenpkg

import "fmt"

// Supported TOKEN_TYPE values.
const (
	TypePaseto = "paseto"
	TypeJWT    = "jwt"
)

// NewMaker returns the Maker for tokenType keyed with symmetricKey.
func NewMaker(tokenType, symmetricKey string) (Maker, error) {
	switch tokenType {
	case TypePaseto, "":
		return NewPasetoMaker(symmetricKey)
	case TypeJWT:
		return NewJWTMaker(symmetricKey)
	}

	return nil, fmt.Errorf("unsupported token type %q", tokenType)
}
