package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no row satisfies the provided filters.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("conflict")
	// ErrInvalidInput is returned when a request fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrQueueFull is returned by a fail-fast queue that has no free slot.
	ErrQueueFull = errors.New("ingestion queue is full")
	// ErrQueueClosed is returned once the queue stopped admitting items.
	ErrQueueClosed = errors.New("ingestion queue is closed")
)

// ResolutionKind names the reference entity a measurement failed to resolve.
type ResolutionKind string

const (
	ResolveDevice ResolutionKind = "device"
	ResolveSensor ResolutionKind = "sensor"
)

// ResolutionError reports an unknown or unreadable device/sensor id.
type ResolutionError struct {
	Kind ResolutionKind
	ID   int
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s %d: %v", e.Kind, e.ID, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// PersistError reports a failed durable write of a resolved measurement.
type PersistError struct {
	Key MeasurementKey
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist measurement device=%d sensor=%d: %v", e.Key.DeviceID, e.Key.SensorID, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// TickError is the result of a failed periodic task iteration.
type TickError struct {
	Task string
	Err  error
}

func (e *TickError) Error() string {
	return fmt.Sprintf("%s tick: %v", e.Task, e.Err)
}

func (e *TickError) Unwrap() error { return e.Err }
