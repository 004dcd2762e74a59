package middleware

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-petr/pet-ledger/pkg/configpkg"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// CreateLogger returns the application logger configured for config.Environement.
func CreateLogger(config configpkg.Config) zerolog.Logger {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	var (
		output   io.Writer = os.Stderr
		logLevel           = zerolog.InfoLevel // default to INFO
	)

	log := zerolog.New(output).
		Level(logLevel).
		With().
		Timestamp().
		Logger()

	if config.Environement == "development" {
		log = log.
			Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			Level(zerolog.TraceLevel).
			With().
			Caller().
			Logger()
	}

	return log
}

// RequestLogger attaches a request scoped logger carrying request_id to the request
// context and logs every request once it is served.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.Request.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
			c.Request.Header.Set(RequestIDHeader, requestID)
		}

		c.Writer.Header().Set(RequestIDHeader, requestID)

		l := logger.With().Str("request_id", requestID).Logger()

		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))

		defer func() {
			if panicVal := recover(); panicVal != nil {
				l.Error().Msgf("panic message: %v", panicVal)
				c.AbortWithStatus(http.StatusInternalServerError)
			}

			// Fill the params
			param := gin.LogFormatterParams{}
			param.TimeStamp = time.Now() // Stop timer
			param.Latency = param.TimeStamp.Sub(start)
			param.ClientIP = c.ClientIP()
			param.Method = c.Request.Method
			param.StatusCode = c.Writer.Status()
			param.ErrorMessage = c.Errors.ByType(gin.ErrorTypePrivate).String()
			param.Path = c.Request.URL.Path

			var logEvent *zerolog.Event
			if param.StatusCode >= 500 {
				logEvent = l.Error()
			} else {
				logEvent = l.Info()
			}

			logEvent.
				Str("client_id", param.ClientIP).
				Str("method", param.Method).
				Int("status_code", param.StatusCode).
				Str("path", param.Path).
				Str("latency", param.Latency.String()).
				Msg(param.ErrorMessage)
		}()

		// Process request
		c.Next()
	}
}
