package gateway

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractMessage(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		want       string
		wantFields int
	}{
		{name: "detail", body: `{"detail": "Not found."}`, want: "Not found."},
		{name: "message", body: `{"message": "upstream timeout"}`, want: "upstream timeout"},
		{name: "error", body: `{"error": "bad gateway"}`, want: "bad gateway"},
		{name: "field errors sorted", body: `{"b": ["second"], "a": ["first", "again"]}`, want: "a: first again; b: second", wantFields: 2},
		{name: "single string field", body: `{"non_field_errors": "weights invalid"}`, want: "non_field_errors: weights invalid", wantFields: 1},
		{name: "not json", body: `<html>502</html>`, want: ""},
		{name: "empty object", body: `{}`, want: ""},
		{name: "empty detail falls through", body: `{"detail": ""}`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, fields := extractMessage([]byte(tt.body))
			assert.Equal(t, tt.want, got)
			assert.Len(t, fields, tt.wantFields)
		})
	}
}

func TestRequestError_Is(t *testing.T) {
	notFound := statusError(OpGetSite, 404, nil, ErrNotFound)
	assert.True(t, errors.Is(notFound, ErrNotFound))
	assert.True(t, errors.Is(notFound, ErrRequestFailed))
	assert.False(t, errors.Is(notFound, ErrValidationRejected))

	plain := failed(OpGetStatistics, errors.New("dial tcp: refused"))
	assert.True(t, errors.Is(plain, ErrRequestFailed))
	assert.False(t, errors.Is(plain, ErrNotFound))
	assert.Equal(t, "get_statistics: request failed: dial tcp: refused", plain.Error())
}
