package notify

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/syncwave/syncwave/internal/conf"
	"github.com/syncwave/syncwave/internal/observability/metrics"
	"github.com/syncwave/syncwave/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingSender struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (r *recordingSender) Send(title, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Notification{Title: title, Message: message})
	return r.err
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func TestNewServiceDisabledReturnsNil(t *testing.T) {
	t.Parallel()

	s, err := NewService(&conf.NotifySettings{Enabled: false}, Options{})
	require.NoError(t, err)
	assert.Nil(t, s)

	// nil service is inert
	s.Notify("title", "message")
	assert.Zero(t, s.Dropped())
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	require.NoError(t, s.Run(ctx))
}

func TestNewServiceRejectsBadURL(t *testing.T) {
	t.Parallel()

	_, err := NewService(&conf.NotifySettings{Enabled: true, URLs: []string{"notaservice://token@host"}}, Options{})
	require.Error(t, err)

	_, err = NewShoutrrrSender(nil, time.Second)
	require.Error(t, err)

	_, err = NewShoutrrrSender([]string{"ntfy://ntfy.sh/${SYNCWAVE_NOTIFY_TEST_UNSET}"}, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SYNCWAVE_NOTIFY_TEST_UNSET")
}

func TestServiceDeliversAndDeduplicates(t *testing.T) {
	t.Parallel()

	sender := &recordingSender{}
	s := NewServiceWithSender(sender, Options{Cooldown: time.Hour})

	s.Notify("Session started", "Headset")
	s.Notify("Session started", "Headset")
	s.Notify("Device lost", "Headset")

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return sender.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, testutil.Returned(t, done))
}

func TestServiceDrainsQueueOnShutdown(t *testing.T) {
	t.Parallel()

	sender := &recordingSender{}
	s := NewServiceWithSender(sender, Options{})
	for i := range 5 {
		s.Notify("n", fmt.Sprint(i))
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	require.NoError(t, s.Run(ctx))
	assert.Equal(t, 5, sender.count())
}

func TestServiceDropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	s := NewServiceWithSender(&recordingSender{}, Options{})
	for i := range queueSize + 3 {
		s.Notify("n", fmt.Sprint(i))
	}
	assert.Equal(t, uint64(3), s.Dropped())
}

func TestServiceRecordsDeliveryMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	nm, err := metrics.NewNotificationMetrics(reg)
	require.NoError(t, err)

	sender := &recordingSender{err: fmt.Errorf("connection refused")}
	s := NewServiceWithSender(sender, Options{Metrics: nm})
	s.Notify("Device lost", "Headset")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	require.NoError(t, s.Run(ctx))

	assert.Equal(t, 1, sender.count())
	assert.InDelta(t, 1.0, testutil.ToFloat64(nm.DeliveriesTotal.WithLabelValues(serviceName, metrics.StatusError)), 0)
}
