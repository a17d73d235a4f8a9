package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hemrs/app/src/domain"
	"hemrs/app/src/infra"
)

// PeriodicTask is one background job driven by RunPeriodic.
type PeriodicTask struct {
	Name     string
	Interval time.Duration
	Tick     func(ctx context.Context) error
}

// RunPeriodic runs task.Tick immediately and then on every interval until
// ctx is cancelled. A failing or panicking tick is logged and counted; the
// loop keeps going.
func RunPeriodic(ctx context.Context, task PeriodicTask, logger Logger) {
	if task.Interval <= 0 || task.Tick == nil {
		warnf(ctx, logger, "%s: not started, interval=%s", task.Name, task.Interval)
		return
	}

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		if err := runTick(ctx, task); err != nil && ctx.Err() == nil {
			infra.IncTaskFailure(task.Name)
			warnf(ctx, logger, "%s: %v", task.Name, err)
		}

		select {
		case <-ctx.Done():
			logf(ctx, logger, "%s: stopped", task.Name)
			return
		case <-ticker.C:
		}
	}
}

func runTick(ctx context.Context, task PeriodicTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &domain.TickError{Task: task.Name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if err := task.Tick(ctx); err != nil {
		var tickErr *domain.TickError
		if errors.As(err, &tickErr) {
			return err
		}
		return &domain.TickError{Task: task.Name, Err: err}
	}
	return nil
}

func logf(ctx context.Context, logger Logger, format string, v ...any) {
	if logger != nil {
		logger.Printf(ctx, format, v...)
	}
}

func warnf(ctx context.Context, logger Logger, format string, v ...any) {
	if logger != nil {
		logger.Warnf(ctx, format, v...)
	}
}
