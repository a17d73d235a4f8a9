package core

import (
	"context"

	"hemrs/app/src/domain"
)

// BatchEnqueuer admits an ordered batch, reporting how many items made it in.
type BatchEnqueuer interface {
	EnqueueBatch(ctx context.Context, items []domain.NewMeasurement) (int, error)
}

// Processor runs one measurement through the insert path synchronously.
type Processor interface {
	Process(ctx context.Context, msg domain.NewMeasurement) (domain.Measurement, error)
}

// IngestService is the entry point used by every transport.
type IngestService struct {
	queue     BatchEnqueuer
	processor Processor
}

var _ domain.IngestService = (*IngestService)(nil)

func NewIngestService(queue BatchEnqueuer, processor Processor) *IngestService {
	return &IngestService{queue: queue, processor: processor}
}

// Enqueue admits req into the queue. A nil error means the items were
// accepted, not stored: later failures are only visible on the worker's
// counters and logs.
func (s *IngestService) Enqueue(ctx context.Context, req domain.IngestRequest) (domain.Admission, error) {
	if err := req.Validate(); err != nil {
		return domain.Admission{}, err
	}
	n, err := s.queue.EnqueueBatch(ctx, req.Items)
	return domain.Admission{Accepted: n}, err
}

// Persist stores req on the caller's goroutine and returns what was stored
// before the first failure.
func (s *IngestService) Persist(ctx context.Context, req domain.IngestRequest) (domain.Persisted, error) {
	if err := req.Validate(); err != nil {
		return domain.Persisted{}, err
	}

	out := domain.Persisted{Measurements: make([]domain.Measurement, 0, len(req.Items))}
	for _, item := range req.Items {
		m, err := s.processor.Process(ctx, item)
		if err != nil {
			return out, err
		}
		out.Measurements = append(out.Measurements, m)
	}
	return out, nil
}
