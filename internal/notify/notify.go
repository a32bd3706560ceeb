// Package notify fans decision events out to the channels that tell
// applicants and downstream systems about a cutoff.
package notify

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"recruitment-review/internal/common/errors"
	"recruitment-review/internal/common/logger"
	"recruitment-review/internal/common/metrics"
	"recruitment-review/internal/review"
)

// Dispatcher delivers a decision event to one channel.
type Dispatcher interface {
	Name() string
	Dispatch(ctx context.Context, event review.DecisionEvent) error
}

var (
	_ review.Notifier = (*Multi)(nil)
	_ review.Notifier = (*Async)(nil)
)

// Multi sends every event to all dispatchers concurrently. One failing
// dispatcher does not stop the others.
type Multi struct {
	dispatchers []Dispatcher
	logger      logger.Logger
}

func NewMulti(log logger.Logger, dispatchers ...Dispatcher) *Multi {
	return &Multi{dispatchers: dispatchers, logger: log}
}

func (m *Multi) NotifyDecisions(ctx context.Context, event review.DecisionEvent) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range m.dispatchers {
		g.Go(func() error {
			err := d.Dispatch(gctx, event)
			status := "sent"
			if err != nil {
				status = "failed"
				m.logger.Warn("decision dispatch failed", map[string]interface{}{
					"dispatcher": d.Name(),
					"cutoffId":   event.CutoffID,
					"error":      err.Error(),
				})
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			metrics.NotificationsDispatched.WithLabelValues(d.Name(), status).Inc()
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		return errors.NewNotificationSendFailedError("decision", stderrors.Join(errs...))
	}
	return nil
}

// Async hands events to next on a background goroutine so a slow channel
// never holds up the cutoff that produced them.
type Async struct {
	next    review.Notifier
	timeout time.Duration
	logger  logger.Logger
	wg      sync.WaitGroup
}

func NewAsync(next review.Notifier, timeout time.Duration, log logger.Logger) *Async {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Async{next: next, timeout: timeout, logger: log}
}

func (a *Async) NotifyDecisions(ctx context.Context, event review.DecisionEvent) error {
	// detached from the job context, which ends when the job completes
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer cancel()
		if err := a.next.NotifyDecisions(bg, event); err != nil {
			a.logger.Error("decision notification failed", map[string]interface{}{
				"cutoffId": event.CutoffID,
				"cycleId":  event.CycleID,
				"phase":    string(event.Phase),
				"error":    err.Error(),
			})
		}
	}()
	return nil
}

// Wait blocks until in-flight notifications finish.
func (a *Async) Wait() {
	a.wg.Wait()
}
