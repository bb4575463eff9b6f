// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package apierr carries the stable error-code taxonomy used by both the
// Control API's HTTP envelope and internal Go error values.
package apierr

import (
	"encoding/json"
	"net/http"

	"github.com/autonomyv2/autonomyd/internal/log"
)

// Code is one of the stable, wire-visible error codes.
type Code string

const (
	InvalidRequest           Code = "INVALID_REQUEST"
	InvalidCursor            Code = "INVALID_CURSOR"
	RunNotFound              Code = "RUN_NOT_FOUND"
	InvalidAdminToken        Code = "INVALID_ADMIN_TOKEN"
	AdminTokenNotConfigured  Code = "ADMIN_TOKEN_NOT_CONFIGURED"
	WorkerNotWired           Code = "WORKER_NOT_WIRED"
	TickError                Code = "TICK_ERROR"
	InternalError            Code = "INTERNAL_ERROR"
)

// statusByCode maps each code to its HTTP status family: 400 validation, 401
// auth, 404 absence, 503 wiring/config-missing, 500 otherwise.
var statusByCode = map[Code]int{
	InvalidRequest:          http.StatusBadRequest,
	InvalidCursor:           http.StatusBadRequest,
	RunNotFound:             http.StatusNotFound,
	InvalidAdminToken:       http.StatusUnauthorized,
	AdminTokenNotConfigured: http.StatusServiceUnavailable,
	WorkerNotWired:          http.StatusServiceUnavailable,
	TickError:               http.StatusInternalServerError,
	InternalError:           http.StatusInternalServerError,
}

// Error is a typed, wire-shaped API error. It implements error and unwraps to
// the wrapped cause, if any.
type Error struct {
	Code    Code
	Message string
	Detail  any
	Status  int
	cause   error
}

// New constructs an Error for code with the given human message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Status: statusFor(code)}
}

// Wrap constructs an INTERNAL_ERROR that unwraps to cause. Use this at
// storage boundaries so the original error is preserved for logs while the
// client only ever sees the stable code.
func Wrap(cause error, message string) *Error {
	return &Error{Code: InternalError, Message: message, Status: http.StatusInternalServerError, cause: cause}
}

func statusFor(code Code) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// WithDetail attaches an optional machine-readable detail payload.
func (e *Error) WithDetail(detail any) *Error {
	e.Detail = detail
	return e
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// envelope is the wire shape of an error response:
// {"error": {"code": STRING, "message": STRING, "detail"?: ANY}}.
type envelope struct {
	Error envelopeBody `json:"error"`
}

type envelopeBody struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Detail  any    `json:"detail,omitempty"`
}

// WriteHTTP encodes err as the stable JSON error envelope and writes it with
// err's resolved HTTP status. Non-*Error values are wrapped as INTERNAL_ERROR
// without leaking their message.
func WriteHTTP(w http.ResponseWriter, r *http.Request, err error) {
	apiErr, ok := err.(*Error)
	if !ok {
		apiErr = New(InternalError, "an internal error occurred")
	}

	if apiErr.Status >= http.StatusInternalServerError {
		logger := log.WithComponentFromContext(r.Context(), "apierr")
		logger.Error().Err(err).Str("code", string(apiErr.Code)).Str("path", r.URL.Path).Msg("request failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	_ = json.NewEncoder(w).Encode(envelope{Error: envelopeBody{
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Detail:  apiErr.Detail,
	}})
}
