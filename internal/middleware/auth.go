// Package middleware provides gin middlewares shared by all routes.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-petr/pet-ledger/pkg/tokenpkg"
	"github.com/go-petr/pet-ledger/pkg/web"
)

// Authorization header parts and the gin context key holding the verified payload.
const (
	AuthHeaderKey  = "authorization"
	AuthTypeBearer = "bearer"
	AuthPayloadKey = "authorization_payload"
)

// Errors returned to clients with a bad authorization header.
var (
	ErrAuthHeaderNotFound  = errors.New("authorization header is not provided")
	ErrBadAuthHeaderFormat = errors.New("invalid authorization header format")
	ErrUnsupportedAuthType = errors.New("unsupported authorization type")
)

// AddAuthorization sets the authorization header of r to a fresh token of ownerID.
func AddAuthorization(
	r *http.Request,
	tokenMaker tokenpkg.Maker,
	authorizationType string,
	ownerID string,
	duration time.Duration,
) error {
	token, _, err := tokenMaker.CreateToken(ownerID, duration)
	if err != nil {
		return err
	}

	authorizationHeader := fmt.Sprintf("%s %s", authorizationType, token)
	r.Header.Set(AuthHeaderKey, authorizationHeader)

	return nil
}

// AuthMiddleware verifies the bearer token of the request and stores its payload under
// AuthPayloadKey.
func AuthMiddleware(tokenMaker tokenpkg.Maker) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		authorizationHeader := gctx.GetHeader(AuthHeaderKey)
		if len(authorizationHeader) == 0 {
			gctx.AbortWithStatusJSON(http.StatusUnauthorized, web.Error(ErrAuthHeaderNotFound))
			return
		}

		fields := strings.Fields(authorizationHeader)
		if len(fields) < 2 {
			gctx.AbortWithStatusJSON(http.StatusUnauthorized, web.Error(ErrBadAuthHeaderFormat))
			return
		}

		authorizationType := strings.ToLower(fields[0])
		if authorizationType != AuthTypeBearer {
			gctx.AbortWithStatusJSON(http.StatusUnauthorized, web.Error(ErrUnsupportedAuthType))
			return
		}

		accessToken := fields[1]

		payload, err := tokenMaker.VerifyToken(accessToken)
		if err != nil {
			gctx.AbortWithStatusJSON(http.StatusUnauthorized, web.Error(err))
			return
		}

		gctx.Set(AuthPayloadKey, payload)
		gctx.Next()
	}
}

// Payload returns the token payload stored by AuthMiddleware.
func Payload(gctx *gin.Context) *tokenpkg.Payload {
	return gctx.MustGet(AuthPayloadKey).(*tokenpkg.Payload)
}
