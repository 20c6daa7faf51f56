package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnexpectedShape indicates a list endpoint answered with neither a bare
// array nor a {"results": [...]} envelope.
var ErrUnexpectedShape = errors.New("unexpected response shape")

// envelope is the paginated form some list endpoints answer with
type envelope[T any] struct {
	Count   *int `json:"count,omitempty"`
	Results *[]T `json:"results"`
}

// unwrapList decodes a list endpoint body that may or may not be wrapped in
// an envelope. It is the only place that knows about both shapes.
func unwrapList[T any](body []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrUnexpectedShape)
	}

	switch trimmed[0] {
	case '[':
		list := []T{}
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		return list, nil
	case '{':
		var env envelope[T]
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("decode envelope: %w", err)
		}
		if env.Results == nil {
			return nil, fmt.Errorf("%w: object without results", ErrUnexpectedShape)
		}
		return *env.Results, nil
	default:
		return nil, fmt.Errorf("%w: starts with %q", ErrUnexpectedShape, trimmed[0])
	}
}
