// Package ident canonicalizes entity references before they are compared,
// stored, or put on the wire. References may arrive as plain strings, as
// values with a string conversion, or as decoded JSON wrappers holding an
// id-bearing field. Anything that does not normalize to a canonical shape
// is rejected outright rather than coerced.
package ident

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrRejected indicates a reference could not be normalized to a canonical id.
var ErrRejected = errors.New("identifier rejected")

// maxUnwrapDepth bounds recursion into nested wrapper objects.
const maxUnwrapDepth = 3

// legacyHexLength is the length of legacy object ids still present in
// exported data sets.
const legacyHexLength = 24

// wrapperKeys are the id-bearing fields recognized inside wrapper objects,
// checked in order.
var wrapperKeys = []string{"id", "_id", "$oid"}

// Normalize converts ref into the canonical string id form.
//
// Accepted inputs are canonical strings (UUID or 24-char lowercase hex),
// fmt.Stringer values whose conversion yields a canonical string, and
// wrapper maps holding a recognized id field, unwrapped at most three
// levels deep. Everything else, including the degenerate "[object Object]"
// string produced by naive object-to-string coercion, returns ErrRejected.
func Normalize(ref any) (string, error) {
	return normalize(ref, 0)
}

func normalize(ref any, depth int) (string, error) {
	if depth > maxUnwrapDepth {
		return "", fmt.Errorf("wrapper nesting exceeds %d levels: %w", maxUnwrapDepth, ErrRejected)
	}

	switch v := ref.(type) {
	case nil:
		return "", fmt.Errorf("nil reference: %w", ErrRejected)
	case string:
		return normalizeString(v)
	case fmt.Stringer:
		return normalizeString(v.String())
	case map[string]any:
		for _, key := range wrapperKeys {
			if inner, ok := v[key]; ok {
				return normalize(inner, depth+1)
			}
		}
		return "", fmt.Errorf("wrapper carries no id field: %w", ErrRejected)
	case map[string]string:
		for _, key := range wrapperKeys {
			if inner, ok := v[key]; ok {
				return normalizeString(inner)
			}
		}
		return "", fmt.Errorf("wrapper carries no id field: %w", ErrRejected)
	default:
		return "", fmt.Errorf("unsupported reference type %T: %w", ref, ErrRejected)
	}
}

func normalizeString(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("empty reference: %w", ErrRejected)
	}

	// The classic symptom of an object reaching a string sink unconverted.
	if strings.HasPrefix(value, "[object") {
		return "", fmt.Errorf("degenerate stringified object %q: %w", value, ErrRejected)
	}

	if parsed, err := uuid.Parse(value); err == nil && parsed != uuid.Nil {
		return strings.ToLower(value), nil
	}

	if isLegacyHex(value) {
		return strings.ToLower(value), nil
	}

	return "", fmt.Errorf("reference %q does not match a canonical id shape: %w", value, ErrRejected)
}

func isLegacyHex(value string) bool {
	if len(value) != legacyHexLength {
		return false
	}
	for _, r := range strings.ToLower(value) {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
