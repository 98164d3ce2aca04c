// Package canonical produces RFC 8785 canonical JSON for anything that must
// be hashed or signed byte-for-byte identically across implementations:
// lineage-record signatures.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
	"golang.org/x/text/unicode/norm"
)

// Bytes marshals v to JSON, NFC-normalizes every string so equivalent
// Unicode sequences hash identically, then transforms the result into RFC
// 8785 canonical form.
func Bytes(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}
	normalized, err := normalizeUnicode(raw)
	if err != nil {
		return nil, fmt.Errorf("canonical: unicode normalize: %w", err)
	}
	transformed, err := jcs.Transform(normalized)
	if err != nil {
		return nil, fmt.Errorf("canonical: jcs transform: %w", err)
	}
	return transformed, nil
}

// normalizeUnicode walks a decoded JSON value and replaces every string
// (key and value) with its NFC normal form, so two byte-distinct but
// canonically-equivalent strings produce the same signature.
func normalizeUnicode(raw []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(normalizeValue(v))
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case string:
		return norm.NFC.String(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = normalizeValue(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[norm.NFC.String(k)] = normalizeValue(elem)
		}
		return out
	default:
		return v
	}
}

// Hash returns the lowercase hex SHA-256 digest of v's canonical form.
func Hash(v any) (string, error) {
	b, err := Bytes(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
