package runner

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/redpesk-common/bindertest/types"
)

// The outcome codec is JSON: field-named rather than positional, so fields
// can be added without breaking older decoders within one suite run
// (unknown fields are ignored on decode).

// EncodeOutcome serializes one case's OutcomeRecord for transmission across
// the isolation boundary.
func EncodeOutcome(rec *types.OutcomeRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding outcome: %w", err)
	}
	return data, nil
}

// DecodeOutcome reconstructs an OutcomeRecord from the bytes read off the
// transport channel. It never fails: empty input means the isolated context
// terminated before transmitting anything, and malformed input means the
// channel was closed mid-message; both decode to a synthetic record carrying
// one transport diagnostic, so the suite can continue instead of crashing.
// The second return value reports whether the record was synthesized here
// rather than decoded as the child sent it, so callers can tell transport
// loss apart from records the child transmitted deliberately.
func DecodeOutcome(data []byte) (*types.OutcomeRecord, bool) {
	if len(bytes.TrimSpace(data)) == 0 {
		return SyntheticOutcome("isolated context terminated without transmitting an outcome"), true
	}

	var rec types.OutcomeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return SyntheticOutcome(fmt.Sprintf("outcome transmission truncated: %v (%d bytes received)", err, len(data))), true
	}
	return &rec, false
}

// SyntheticOutcome builds the record reported for a transport failure:
// exactly one error and a zero RanCount, since no test is known to have run.
func SyntheticOutcome(detail string) *types.OutcomeRecord {
	return &types.OutcomeRecord{
		Errors: []string{detail},
	}
}
