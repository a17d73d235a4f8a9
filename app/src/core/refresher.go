package core

import (
	"context"
	"time"

	"hemrs/app/src/domain"
)

const (
	DefaultViewRefreshInterval = 6000 * time.Second
	DeviceSensorView           = "devices_sensors"

	refresherTask = "view_refresher"
)

// ViewRefresher periodically rebuilds the device/sensor association view.
// A failed refresh is retried on the next tick.
type ViewRefresher struct {
	store        domain.ViewRefresherStore
	logger       Logger
	view         string
	interval     time.Duration
	storeTimeout time.Duration
}

type RefresherOption func(*ViewRefresher)

func WithRefreshInterval(d time.Duration) RefresherOption {
	return func(r *ViewRefresher) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithRefreshTimeout(d time.Duration) RefresherOption {
	return func(r *ViewRefresher) {
		if d > 0 {
			r.storeTimeout = d
		}
	}
}

func NewViewRefresher(store domain.ViewRefresherStore, logger Logger, opts ...RefresherOption) *ViewRefresher {
	r := &ViewRefresher{
		store:        store,
		logger:       logger,
		view:         DeviceSensorView,
		interval:     DefaultViewRefreshInterval,
		storeTimeout: time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *ViewRefresher) Refresh(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	started := time.Now()
	if err := r.store.RefreshView(callCtx, r.view); err != nil {
		return &domain.TickError{Task: refresherTask, Err: err}
	}
	logf(ctx, r.logger, "view refresher: refreshed %s in %s", r.view, time.Since(started).Round(time.Millisecond))
	return nil
}

func (r *ViewRefresher) Run(ctx context.Context) {
	RunPeriodic(ctx, PeriodicTask{Name: refresherTask, Interval: r.interval, Tick: r.Refresh}, r.logger)
}
