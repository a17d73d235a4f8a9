package core

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hemrs/app/src/domain"
)

func newTestGenerator(cfg GeneratorConfig) *Generator {
	return NewGenerator(cfg, &stubLogger{})
}

func TestNewGeneratorAppliesDefaults(t *testing.T) {
	logger := &stubLogger{}
	gen := NewGenerator(GeneratorConfig{}, logger)

	assert.Equal(t, time.Second, gen.cfg.Interval)
	assert.Equal(t, 15.0, gen.cfg.Min)
	assert.Equal(t, 30.0, gen.cfg.Max)
	assert.NotNil(t, gen.cfg.RandSource)
	assert.NotNil(t, gen.rnd)
	assert.Equal(t, logger, gen.logger)
}

func TestNewGeneratorUsesProvidedConfig(t *testing.T) {
	source := rand.NewSource(1)
	cfg := GeneratorConfig{
		Interval:   5 * time.Millisecond,
		Targets:    []domain.MeasurementKey{{DeviceID: 1, SensorID: 1}},
		Min:        -10,
		Max:        0,
		RandSource: source,
	}

	gen := newTestGenerator(cfg)

	assert.Equal(t, cfg.Interval, gen.cfg.Interval)
	assert.Equal(t, -10.0, gen.cfg.Min)
	assert.Equal(t, 0.0, gen.cfg.Max)
	assert.Equal(t, source, gen.cfg.RandSource)
}

func TestGeneratorRunFeedsQueue(t *testing.T) {
	cfg := GeneratorConfig{
		Interval:   time.Millisecond,
		Targets:    []domain.MeasurementKey{{DeviceID: 1, SensorID: 1}, {DeviceID: 2, SensorID: 3}},
		Min:        10,
		Max:        20,
		RandSource: rand.NewSource(123),
	}
	gen := newTestGenerator(cfg)
	queue := NewIngestionQueue(16)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		gen.Bind(queue).Run(ctx)
		close(done)
	}()

	var got []domain.NewMeasurement
	for len(got) < 2 {
		select {
		case m := <-queue.Items():
			got = append(got, m)
		case <-time.After(time.Second):
			t.Fatal("no measurement generated in time")
		}
	}
	cancel()
	<-done

	assert.Equal(t, domain.MeasurementKey{DeviceID: 1, SensorID: 1}, got[0].Key())
	assert.Equal(t, domain.MeasurementKey{DeviceID: 2, SensorID: 3}, got[1].Key())
	for _, m := range got {
		require.NotNil(t, m.Timestamp)
		assert.GreaterOrEqual(t, m.Value, 10.0)
		assert.Less(t, m.Value, 20.0)
	}
}

func TestGeneratorStopsWhenQueueCloses(t *testing.T) {
	gen := newTestGenerator(GeneratorConfig{
		Interval: time.Millisecond,
		Targets:  []domain.MeasurementKey{{DeviceID: 1, SensorID: 1}},
	})
	queue := NewIngestionQueue(1)
	queue.Close()

	done := make(chan struct{})
	go func() {
		gen.Run(context.Background(), queue)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("generator kept running after the queue closed")
	}
}

func TestGeneratorWithoutTargetsReturns(t *testing.T) {
	logger := &stubLogger{}
	NewGenerator(GeneratorConfig{}, logger).Run(context.Background(), NewIngestionQueue(1))
	assert.Contains(t, logger.messages(), "generator: no targets configured")
}

func TestParseTargets(t *testing.T) {
	targets, err := ParseTargets(" 1:1, 2:3 ,")
	require.NoError(t, err)
	assert.Equal(t, []domain.MeasurementKey{{DeviceID: 1, SensorID: 1}, {DeviceID: 2, SensorID: 3}}, targets)

	for _, raw := range []string{"1", "a:1", "1:0", "1:-2"} {
		_, err := ParseTargets(raw)
		assert.Error(t, err, raw)
	}
}

func TestGeneratorLogWithNilLogger(t *testing.T) {
	gen := &Generator{}
	assert.NotPanics(t, func() {
		gen.log(context.Background(), "ignored")
	})
}
