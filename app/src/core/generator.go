package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"hemrs/app/src/domain"
)

type GeneratorConfig struct {
	Interval   time.Duration
	Targets    []domain.MeasurementKey
	Min        float64
	Max        float64
	RandSource rand.Source
}

// Generator feeds synthetic readings for the configured targets into the
// ingestion queue, one per target and interval.
type Generator struct {
	cfg    GeneratorConfig
	logger Logger
	rnd    *rand.Rand
}

func NewGenerator(cfg GeneratorConfig, logger Logger) *Generator {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Max <= cfg.Min {
		cfg.Min, cfg.Max = 15, 30
	}

	source := cfg.RandSource
	if source == nil {
		source = rand.NewSource(time.Now().UnixNano())
	}
	cfg.RandSource = source

	return &Generator{
		cfg:    cfg,
		logger: logger,
		rnd:    rand.New(source),
	}
}

// Run emits until ctx is cancelled or the queue is closed.
func (g *Generator) Run(ctx context.Context, queue domain.Enqueuer) {
	if len(g.cfg.Targets) == 0 {
		g.log(ctx, "generator: no targets configured")
		return
	}

	ticker := time.NewTicker(g.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.log(ctx, "generator: stopped: %v", ctx.Err())
			return
		case <-ticker.C:
		}

		for _, m := range g.generate() {
			err := queue.Enqueue(ctx, m)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrQueueClosed), ctx.Err() != nil:
				g.log(ctx, "generator: stopped: %v", err)
				return
			default:
				g.log(ctx, "generator: enqueue device=%d sensor=%d: %v", m.DeviceID, m.SensorID, err)
			}
		}
	}
}

func (g *Generator) generate() []domain.NewMeasurement {
	now := time.Now().UTC()
	out := make([]domain.NewMeasurement, len(g.cfg.Targets))
	for i, target := range g.cfg.Targets {
		ts := now
		out[i] = domain.NewMeasurement{
			DeviceID:  target.DeviceID,
			SensorID:  target.SensorID,
			Value:     g.cfg.Min + g.rnd.Float64()*(g.cfg.Max-g.cfg.Min),
			Timestamp: &ts,
		}
	}
	return out
}

// ParseTargets reads a comma separated list of device:sensor pairs.
func ParseTargets(raw string) ([]domain.MeasurementKey, error) {
	var out []domain.MeasurementKey
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		device, sensor, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("target %q: expected device:sensor", part)
		}
		deviceID, err := strconv.Atoi(strings.TrimSpace(device))
		if err != nil || deviceID <= 0 {
			return nil, fmt.Errorf("target %q: invalid device id", part)
		}
		sensorID, err := strconv.Atoi(strings.TrimSpace(sensor))
		if err != nil || sensorID <= 0 {
			return nil, fmt.Errorf("target %q: invalid sensor id", part)
		}
		out = append(out, domain.MeasurementKey{DeviceID: deviceID, SensorID: sensorID})
	}
	return out, nil
}

func (g *Generator) log(ctx context.Context, format string, v ...any) {
	if g.logger != nil {
		g.logger.Printf(ctx, format, v...)
	}
}

var _ domain.BackgroundTask = (*boundGenerator)(nil)

type boundGenerator struct {
	gen   *Generator
	queue domain.Enqueuer
}

func (b *boundGenerator) Run(ctx context.Context) { b.gen.Run(ctx, b.queue) }

// Bind returns the generator as a task feeding queue.
func (g *Generator) Bind(queue domain.Enqueuer) domain.BackgroundTask {
	return &boundGenerator{gen: g, queue: queue}
}
