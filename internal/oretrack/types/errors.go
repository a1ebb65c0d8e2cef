package types

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrNotFound         = errors.New("record not found")
	ErrInvalidField     = errors.New("field is not editable")
	ErrInvalidValue     = errors.New("invalid field value")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ValidationError reports malformed input with per-field detail.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// IsDomainError reports whether err is a caller mistake rather than a store
// fault. Domain errors are never retried against a fallback store.
func IsDomainError(err error) bool {
	var ve *ValidationError
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidField) ||
		errors.Is(err, ErrInvalidValue) ||
		errors.As(err, &ve)
}

// Error codes carried in the "error" member of API envelopes.
const (
	CodeValidation   = "validation_failed"
	CodeInvalidField = "invalid_field"
	CodeInvalidValue = "invalid_value"
	CodeNotFound     = "not_found"
	CodeBadJSON      = "bad_json"
	CodeRateLimited  = "rate_limited"
	CodeInternal     = "internal_error"
)
