// Package apperr defines the error values that cross the HTTP boundary and
// the single place they are rendered as {error:{code,message,details}}.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeFileTooLarge        = "FILE_TOO_LARGE"
	CodeUnsupportedFileType = "UNSUPPORTED_FILE_TYPE"
	CodeTooManyFiles        = "TOO_MANY_FILES"
	CodeNotFound            = "NOT_FOUND"
	CodeExpired             = "EXPIRED"
	CodeUploadFailed        = "UPLOAD_FAILED"
	CodeInternal            = "INTERNAL_SERVER_ERROR"
)

// Error is an error with a client-facing status, code and message
type Error struct {
	Status  int         `json:"-"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldDetails describes which input failed validation and why
type FieldDetails struct {
	Field      string `json:"field"`
	Value      string `json:"value"`
	Constraint string `json:"constraint"`
}

func Validation(code, message string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: code, Message: message}
}

func FieldValidation(message, field, value, constraint string) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    CodeValidation,
		Message: message,
		Details: FieldDetails{Field: field, Value: value, Constraint: constraint},
	}
}

func NotFound(message string) *Error {
	return &Error{Status: http.StatusNotFound, Code: CodeNotFound, Message: message}
}

func Gone(message string) *Error {
	return &Error{Status: http.StatusGone, Code: CodeExpired, Message: message}
}

func UploadFailed(message string, details interface{}) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: CodeUploadFailed, Message: message, Details: details}
}

// Internal is the sanitized response for anything unexpected. The cause is
// logged by the caller and never sent to the client.
func Internal(message string) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: CodeInternal, Message: message}
}

// As extracts an *Error from err's chain
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Write renders err. Errors that are not *Error become a generic 500 using
// fallback as the message.
func Write(w http.ResponseWriter, err error, fallback string) {
	appErr, ok := As(err)
	if !ok {
		appErr = Internal(fallback)
	}
	WriteJSON(w, appErr.Status, map[string]interface{}{"error": appErr})
}

// WriteJSON writes v as a JSON response with the given status
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
