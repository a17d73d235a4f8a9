package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hemrs/app/src/domain"
	"hemrs/app/src/infra"
)

func TestViewRefresherDefaults(t *testing.T) {
	r := NewViewRefresher(newMemoryStore(), nil)
	assert.Equal(t, 6000*time.Second, r.interval)
	assert.Equal(t, "devices_sensors", r.view)
}

func TestViewRefresherRefreshWrapsError(t *testing.T) {
	store := newMemoryStore()
	store.refreshErrs = []error{errors.New("lock timeout")}
	r := NewViewRefresher(store, nil)

	err := r.Refresh(context.Background())
	var tickErr *domain.TickError
	require.True(t, errors.As(err, &tickErr))
	assert.Equal(t, "view_refresher", tickErr.Task)

	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, 2, store.refreshCallCount())
}

func TestViewRefresherKeepsRunningAfterFailure(t *testing.T) {
	store := newMemoryStore()
	store.refreshErrs = []error{errors.New("first"), errors.New("second")}
	before := testutil.ToFloat64(infra.BackgroundTaskFailuresTotal.WithLabelValues("view_refresher"))
	r := NewViewRefresher(store, &stubLogger{}, WithRefreshInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return store.refreshCallCount() >= 4 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, before+2, testutil.ToFloat64(infra.BackgroundTaskFailuresTotal.WithLabelValues("view_refresher")))
}
