package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// AdaptorBinding records which adaptor kind, parameter schema version and
// parameters created a job. The params are the canonical JSON encoding of the
// kind's typed parameter struct.
type AdaptorBinding struct {
	Kind    string          `json:"kind"`
	Version int             `json:"version"`
	Params  json.RawMessage `json:"params"`
}

// Clone returns a copy that does not share the params buffer.
func (b AdaptorBinding) Clone() AdaptorBinding {
	b.Params = append(json.RawMessage(nil), b.Params...)
	return b
}

// Equal compares kind, version and params byte for byte.
func (b AdaptorBinding) Equal(o AdaptorBinding) bool {
	return b.Kind == o.Kind && b.Version == o.Version && bytes.Equal(b.Params, o.Params)
}

// Value implements driver.Valuer.
func (b AdaptorBinding) Value() (driver.Value, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (b *AdaptorBinding) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*b = AdaptorBinding{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for AdaptorBinding: %T", value)
	}
	if len(data) == 0 {
		*b = AdaptorBinding{}
		return nil
	}
	return json.Unmarshal(data, b)
}
