package types

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/DoyleJ11/scouting-backend/internal/engine"
)

const (
	StatusUpdated  = "updated"
	StatusNoChange = "no_change"
	StatusSaved    = "saved"
)

// PicklistResponse is returned by GET and POST /strategy/picklist/submit/.
// Timestamp carries the same value as Version for older clients.
type PicklistResponse struct {
	Status    string       `json:"status"`
	Version   int64        `json:"version"`
	Timestamp int64        `json:"timestamp"`
	Data      engine.State `json:"data"`
	SavedToDB *bool        `json:"saved_to_db,omitempty"`
}

// SubmitRequest is either a bare array of 5 buckets or
// {"version"|"timestamp": base, "data": [...]}.
type SubmitRequest struct {
	Base    int64
	HasBase bool
	Data    engine.State
}

func (r *SubmitRequest) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		return json.Unmarshal(b, &r.Data)
	}

	var obj struct {
		Version   *int64        `json:"version"`
		Timestamp *int64        `json:"timestamp"`
		Data      *engine.State `json:"data"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	if obj.Data == nil {
		return fmt.Errorf("%w: missing data", engine.ErrBadShape)
	}
	r.Data = *obj.Data
	switch {
	case obj.Version != nil:
		r.Base, r.HasBase = *obj.Version, true
	case obj.Timestamp != nil:
		r.Base, r.HasBase = *obj.Timestamp, true
	}
	return nil
}

func (r SubmitRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Version int64        `json:"version"`
		Data    engine.State `json:"data"`
	}{r.Base, r.Data})
}
