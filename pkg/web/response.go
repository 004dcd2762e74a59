// Package web defines common components for a web application.
package web

import (
	"github.com/go-playground/validator/v10"
)

// Response holds the common response type for all APIs.
type Response struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Error wraps a given err into the response envelope.
func Error(err error) Response {
	return Response{Error: err.Error()}
}

// GetErrorMsg returns a human readable suffix for a failed binding rule. The caller
// prefixes it with the field name, e.g. "Amount is required".
func GetErrorMsg(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return " is required"
	case "money":
		return " must be a positive amount with at most two decimal places"
	case "uuid":
		return " must be a valid UUID"
	case "min":
		return " must be at least " + fe.Param()
	case "max":
		return " must be at most " + fe.Param()
	}

	return " is invalid"
}
