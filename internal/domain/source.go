package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// RetrievalMethod identifies which adapter produced a community's data.
// Values include MethodPrimary, MethodAnonymous, MethodFeed, MethodArchive, and MethodFailed.
type RetrievalMethod string

const (
	MethodPrimary   RetrievalMethod = "primary"
	MethodAnonymous RetrievalMethod = "fallback-anonymous"
	MethodFeed      RetrievalMethod = "fallback-feed"
	MethodArchive   RetrievalMethod = "fallback-archive"
	MethodFailed    RetrievalMethod = "failed"
)

// AllMethods lists every retrieval method in priority order, failed last.
var AllMethods = []RetrievalMethod{MethodPrimary, MethodAnonymous, MethodFeed, MethodArchive, MethodFailed}

// MethodTally counts community outcomes per retrieval method.
type MethodTally map[RetrievalMethod]int

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the tally.
//   - error: non-nil if marshaling fails.
func (t MethodTally) Value() (driver.Value, error) {
	if t == nil {
		return "{}", nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (t *MethodTally) Scan(value interface{}) error {
	if value == nil {
		*t = MethodTally{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan MethodTally")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, t)
}

// Clone returns an independent copy of the tally.
func (t MethodTally) Clone() MethodTally {
	out := make(MethodTally, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}
