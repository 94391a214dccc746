// Package serialization holds JSON helpers and parameter masking shared by the
// adaptor binding codec, the run-details snapshot and the CLI.
package serialization

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/tigerroll/waves/pkg/waves/support/util/exception"
	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
)

const module = "serialization"

// Mask is the replacement used for configured sensitive keys.
const Mask = "********"

var (
	maskedMu   sync.RWMutex
	maskedKeys = []string{"password", "passphrase", "app_key", "secret", "secret_access_key"}
)

// SetMaskedParameterKeys replaces the list of keys masked by MaskedCopy.
func SetMaskedParameterKeys(keys []string) {
	maskedMu.Lock()
	defer maskedMu.Unlock()
	maskedKeys = append([]string(nil), keys...)
}

// IsSensitive reports whether a parameter name holds a secret. Names starting
// with "crypt" are always sensitive.
func IsSensitive(name string) bool {
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "crypt") {
		return true
	}
	maskedMu.RLock()
	defer maskedMu.RUnlock()
	for _, k := range maskedKeys {
		if lower == strings.ToLower(k) {
			return true
		}
	}
	return false
}

// MaskValue hides value with one '*' per character.
func MaskValue(value string) string {
	return strings.Repeat("*", len(value))
}

// MaskedCopy returns a shallow copy of params with sensitive entries masked.
func MaskedCopy(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		if IsSensitive(k) && v != nil && v != "" {
			out[k] = Mask
			continue
		}
		out[k] = v
	}
	return out
}

// Marshal encodes v as compact JSON without HTML escaping, so that the output
// is stable across round trips.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		logger.Errorf("Failed to serialize %T: %v", v, err)
		return nil, exception.NewWavesError(module, "Failed to serialize value", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalStrict decodes data into v, rejecting unknown fields.
func UnmarshalStrict(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		logger.Errorf("Failed to deserialize %T: %v", v, err)
		return exception.NewWavesError(module, "Failed to deserialize value", err)
	}
	return nil
}
