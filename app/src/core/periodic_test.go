package core

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hemrs/app/src/infra"
)

func TestRunPeriodicTicksImmediatelyAndRepeats(t *testing.T) {
	var ticks atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		RunPeriodic(ctx, PeriodicTask{Name: "test_repeat", Interval: 10 * time.Millisecond, Tick: func(context.Context) error {
			ticks.Add(1)
			return nil
		}}, nil)
		close(done)
	}()

	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestRunPeriodicSurvivesErrorsAndPanics(t *testing.T) {
	before := testutil.ToFloat64(infra.BackgroundTaskFailuresTotal.WithLabelValues("test_flaky"))
	logger := &stubLogger{}

	var ticks atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunPeriodic(ctx, PeriodicTask{Name: "test_flaky", Interval: 5 * time.Millisecond, Tick: func(context.Context) error {
			switch ticks.Add(1) {
			case 1:
				return errors.New("store unavailable")
			case 2:
				panic("bad tick")
			}
			return nil
		}}, logger)
		close(done)
	}()

	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, before+2, testutil.ToFloat64(infra.BackgroundTaskFailuresTotal.WithLabelValues("test_flaky")))

	var sawError, sawPanic bool
	for _, msg := range logger.messages() {
		if strings.Contains(msg, "test_flaky tick: store unavailable") {
			sawError = true
		}
		if strings.Contains(msg, "panic: bad tick") {
			sawPanic = true
		}
	}
	assert.True(t, sawError)
	assert.True(t, sawPanic)
}

func TestRunPeriodicRejectsInvalidTask(t *testing.T) {
	logger := &stubLogger{}
	RunPeriodic(context.Background(), PeriodicTask{Name: "broken"}, logger)

	msgs := logger.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "broken: not started")
}
