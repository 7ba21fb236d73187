// Package notify delivers session lifecycle notifications through shoutrrr
// service URLs. Delivery happens on a worker goroutine so callers never wait
// on the network.
package notify

import (
	"context"
	"io"
	"log"
	"sync/atomic"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/patrickmn/go-cache"

	"github.com/syncwave/syncwave/internal/conf"
	"github.com/syncwave/syncwave/internal/errors"
	"github.com/syncwave/syncwave/internal/logger"
	"github.com/syncwave/syncwave/internal/observability/metrics"
	"github.com/syncwave/syncwave/internal/secrets"
	"github.com/syncwave/syncwave/internal/telemetry"
)

const (
	queueSize = 32
	// DefaultCooldown suppresses repeats of the same notification.
	DefaultCooldown = time.Minute
	serviceName     = "shoutrrr"
)

// Sender delivers one message.
type Sender interface {
	Send(title, message string) error
}

// Notification is a queued message.
type Notification struct {
	Title   string
	Message string
}

// Options configures a Service.
type Options struct {
	Metrics  *metrics.NotificationMetrics
	Cooldown time.Duration
	Logger   logger.Logger
}

// Service queues notifications and delivers them from Run.
type Service struct {
	sender  Sender
	queue   chan Notification
	recent  *cache.Cache
	metrics *metrics.NotificationMetrics
	log     logger.Logger

	dropped atomic.Uint64
}

// GetLogger returns the notify module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("notify")
}

// NewService builds a shoutrrr-backed service from settings. It returns nil
// when notifications are disabled; a nil *Service accepts and discards
// notifications.
func NewService(settings *conf.NotifySettings, opts Options) (*Service, error) {
	if !settings.Enabled {
		return nil, nil
	}
	sender, err := NewShoutrrrSender(settings.URLs, settings.Timeout)
	if err != nil {
		return nil, err
	}
	return NewServiceWithSender(sender, opts), nil
}

// NewServiceWithSender returns a service delivering through sender.
func NewServiceWithSender(sender Sender, opts Options) *Service {
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.Logger == nil {
		opts.Logger = GetLogger()
	}
	return &Service{
		sender: sender,
		queue:  make(chan Notification, queueSize),
		// no janitor, expired entries are dropped on read
		recent:  cache.New(opts.Cooldown, 0),
		metrics: opts.Metrics,
		log:     opts.Logger,
	}
}

// Notify queues a notification without blocking. A notification identical
// to one queued within the cooldown is dropped, as is one that does not fit
// the queue.
func (s *Service) Notify(title, message string) {
	if s == nil {
		return
	}
	if err := s.recent.Add(title+"\x00"+message, struct{}{}, cache.DefaultExpiration); err != nil {
		return
	}
	select {
	case s.queue <- Notification{Title: title, Message: message}:
	default:
		s.dropped.Add(1)
		s.log.Warn("notification queue full, dropping notification", logger.String("title", title))
	}
}

// Dropped returns how many notifications did not fit the queue.
func (s *Service) Dropped() uint64 {
	if s == nil {
		return 0
	}
	return s.dropped.Load()
}

// Run delivers queued notifications until ctx is done, then delivers what
// is still queued and returns.
func (s *Service) Run(ctx context.Context) error {
	if s == nil {
		<-ctx.Done()
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case n := <-s.queue:
					s.deliver(n)
				default:
					return nil
				}
			}
		case n := <-s.queue:
			s.deliver(n)
		}
	}
}

func (s *Service) deliver(n Notification) {
	start := time.Now()
	err := s.sender.Send(n.Title, n.Message)
	if s.metrics != nil {
		s.metrics.RecordDelivery(serviceName, err, time.Since(start))
	}
	if err != nil {
		s.log.Warn("notification delivery failed",
			logger.String("title", n.Title),
			logger.String("error", telemetry.ScrubMessage(err.Error())))
		return
	}
	s.log.Debug("notification delivered", logger.String("title", n.Title))
}

// ShoutrrrSender sends through one shoutrrr router covering every URL.
type ShoutrrrSender struct {
	router *router.ServiceRouter
}

// NewShoutrrrSender validates urls and builds the router.
func NewShoutrrrSender(urls []string, timeout time.Duration) (*ShoutrrrSender, error) {
	if len(urls) == 0 {
		return nil, errors.Newf("at least one notification URL is required").
			Component("notify").
			Category(errors.CategoryConfiguration).
			Build()
	}
	expanded, err := secrets.ExpandAll(urls)
	if err != nil {
		return nil, err
	}
	sender, err := shoutrrr.CreateSender(expanded...)
	if err != nil {
		// the raw error can echo tokens embedded in the URL
		return nil, errors.Newf("invalid notification URL: %s", telemetry.ScrubMessage(err.Error())).
			Component("notify").
			Category(errors.CategoryConfiguration).
			Context("url_count", len(urls)).
			Build()
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))
	return &ShoutrrrSender{router: sender}, nil
}

// Send implements Sender and returns the first delivery error.
func (s *ShoutrrrSender) Send(title, message string) error {
	params := stypes.Params{}
	if title != "" {
		params.SetTitle(title)
	}
	for _, err := range s.router.Send(message, &params) {
		if err != nil {
			return errors.New(err).
				Component("notify").
				Category(errors.CategoryNetwork).
				Build()
		}
	}
	return nil
}
