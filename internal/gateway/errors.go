package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Failure kinds. Every *RequestError matches ErrRequestFailed; lookups with no
// match also match ErrNotFound, rejected calculation payloads ErrValidationRejected.
var (
	ErrRequestFailed      = errors.New("request failed")
	ErrNotFound           = errors.New("not found")
	ErrValidationRejected = errors.New("validation rejected")
)

// RequestError describes a failed call to the analysis service
type RequestError struct {
	Op         string
	StatusCode int
	// Message is the human-readable detail reported by the service, if any
	Message string
	// FieldErrors holds per-field validation messages from a 400 response
	FieldErrors map[string][]string

	kind  error
	cause error
}

func (e *RequestError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.kindOrDefault().Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

// Is reports ErrRequestFailed for every request error, plus the specific kind
func (e *RequestError) Is(target error) bool {
	return target == ErrRequestFailed || target == e.kindOrDefault()
}

func (e *RequestError) kindOrDefault() error {
	if e.kind == nil {
		return ErrRequestFailed
	}
	return e.kind
}

// Unwrap returns the transport or decoding error, if any
func (e *RequestError) Unwrap() error {
	return e.cause
}

// IsTransient reports whether retrying the same call could succeed
func (e *RequestError) IsTransient() bool {
	return e.kindOrDefault() == ErrRequestFailed && (e.StatusCode == 0 || e.StatusCode >= 500)
}

func failed(op string, cause error) *RequestError {
	return &RequestError{Op: op, kind: ErrRequestFailed, cause: cause}
}

// statusError builds the error for a non-2xx response, pulling a message out of the body
func statusError(op string, status int, body []byte, kind error) *RequestError {
	message, fields := extractMessage(body)
	return &RequestError{
		Op:          op,
		StatusCode:  status,
		Message:     message,
		FieldErrors: fields,
		kind:        kind,
	}
}

// extractMessage understands {"detail": ...}, {"message": ...}, {"error": ...}
// and field error maps such as {"area_sqm": ["A valid integer is required."]}.
func extractMessage(body []byte) (string, map[string][]string) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return "", nil
	}

	for _, key := range []string{"detail", "message", "error"} {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s, nil
		}
	}

	fields := make(map[string][]string, len(obj))
	for key, raw := range obj {
		var list []string
		if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
			fields[key] = list
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			fields[key] = []string{s}
		}
	}
	if len(fields) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+": "+strings.Join(fields[key], " "))
	}
	return strings.Join(parts, "; "), fields
}
