package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// IngestKind tells a single reading apart from a batch.
type IngestKind int

const (
	IngestSingle IngestKind = iota + 1
	IngestBatch
)

func (k IngestKind) String() string {
	switch k {
	case IngestSingle:
		return "single"
	case IngestBatch:
		return "batch"
	default:
		return "unknown"
	}
}

// IngestRequest is either one measurement or a batch of them. Items keeps
// producer order in both cases.
type IngestRequest struct {
	Kind  IngestKind
	Items []NewMeasurement
}

// SingleIngest wraps one measurement.
func SingleIngest(m NewMeasurement) IngestRequest {
	return IngestRequest{Kind: IngestSingle, Items: []NewMeasurement{m}}
}

// BatchIngest wraps an ordered batch.
func BatchIngest(items ...NewMeasurement) IngestRequest {
	return IngestRequest{Kind: IngestBatch, Items: items}
}

// Validate checks that the request carries at least one item.
func (r IngestRequest) Validate() error {
	switch r.Kind {
	case IngestSingle:
		if len(r.Items) != 1 {
			return fmt.Errorf("%w: single ingest must carry exactly one measurement", ErrInvalidInput)
		}
	case IngestBatch:
		if len(r.Items) == 0 {
			return fmt.Errorf("%w: empty batch", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown ingest kind", ErrInvalidInput)
	}
	return nil
}

// UnmarshalJSON picks the variant from the first token: an object is a
// single measurement, an array is a batch.
func (r *IngestRequest) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("%w: empty body", ErrInvalidInput)
	}

	switch trimmed[0] {
	case '{':
		var m NewMeasurement
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		*r = SingleIngest(m)
	case '[':
		var items []NewMeasurement
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		*r = BatchIngest(items...)
	default:
		return fmt.Errorf("%w: expected object or array", ErrInvalidInput)
	}
	return nil
}

// MarshalJSON writes the variant back in its wire form.
func (r IngestRequest) MarshalJSON() ([]byte, error) {
	if r.Kind == IngestSingle && len(r.Items) == 1 {
		return json.Marshal(r.Items[0])
	}
	items := r.Items
	if items == nil {
		items = []NewMeasurement{}
	}
	return json.Marshal(items)
}

// Admission confirms that measurements were accepted by the ingestion queue.
// It carries no durability guarantee.
type Admission struct {
	Accepted int `json:"accepted"`
}

// Persisted confirms that measurements were durably stored.
type Persisted struct {
	Measurements []Measurement `json:"measurements"`
}

// Count returns the number of stored measurements.
func (p Persisted) Count() int {
	return len(p.Measurements)
}
