package reminder

import (
	"context"
	"time"

	"github.com/smallbiznis/kasira/internal/clock"
	"github.com/smallbiznis/kasira/internal/config"
	obsmetrics "github.com/smallbiznis/kasira/internal/observability/metrics"
	"github.com/smallbiznis/kasira/internal/ratelimit"
	"github.com/smallbiznis/kasira/internal/reminder/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const dispatchJob = "payment_reminders"

const dispatchLockKey = "reminders:dispatch:lock"

// scanTimeout bounds one dispatcher pass so a wedged SMTP server cannot
// stall the loop past the next tick indefinitely.
const scanTimeout = 5 * time.Minute

type DispatcherParams struct {
	fx.In

	Log     *zap.Logger
	Holder  *config.ReminderConfigHolder
	Service domain.Service
	Clock   clock.Clock
	Locker  *ratelimit.Locker `optional:"true"`
}

// Dispatcher drives the reminder service on a timer. The interval comes
// from the hot-reloadable config holder, re-read on every tick so cadence
// changes apply without a restart.
type Dispatcher struct {
	log     *zap.Logger
	holder  *config.ReminderConfigHolder
	service domain.Service
	clock   clock.Clock
	locker  *ratelimit.Locker
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	return &Dispatcher{
		log:     p.Log.Named("reminder.dispatcher"),
		holder:  p.Holder,
		service: p.Service,
		clock:   p.Clock,
		locker:  p.Locker,
	}
}

func (d *Dispatcher) RunForever(ctx context.Context) {
	metrics := obsmetrics.Dispatcher()
	nextRun := d.clock.Now().Add(d.holder.Get().DispatchInterval)

	timer := time.NewTimer(d.holder.Get().DispatchInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		runLag := d.clock.Now().Sub(nextRun)
		if runLag > 0 {
			metrics.ObserveRunLoopLag(runLag)
		}

		if err := d.RunOnce(ctx); err != nil && ctx.Err() == nil {
			d.log.Warn("reminder scan failed", zap.Error(err))
		}

		interval := d.holder.Get().DispatchInterval
		nextRun = d.clock.Now().Add(interval)
		timer.Reset(interval)
	}
}

func (d *Dispatcher) RunOnce(parent context.Context) error {
	metrics := obsmetrics.Dispatcher()
	metrics.IncRun(dispatchJob)

	ctx, cancel := context.WithTimeout(parent, scanTimeout)
	defer cancel()

	// With multiple replicas only the lock holder scans. No redis means
	// single-node mode and the lock is skipped.
	if d.locker != nil {
		token, ok, err := d.locker.TryLock(ctx, dispatchLockKey, scanTimeout)
		if err != nil {
			metrics.IncError(dispatchJob, err)
			return err
		}
		if !ok {
			return nil
		}
		defer func() {
			if err := d.locker.Release(ctx, dispatchLockKey, token); err != nil {
				d.log.Warn("dispatch lock release failed", zap.Error(err))
			}
		}()
	}

	start := d.clock.Now()
	result, err := d.service.DispatchDue(ctx)
	metrics.ObserveRunDuration(dispatchJob, d.clock.Now().Sub(start))
	if err != nil {
		metrics.IncError(dispatchJob, err)
		return err
	}

	metrics.AddDispatched(dispatchJob, "sent", result.Sent)
	metrics.AddDispatched(dispatchJob, "skipped", result.Skipped)
	metrics.AddDispatched(dispatchJob, "failed", result.Failed)

	if result.Considered > 0 {
		d.log.Info("reminder scan finished",
			zap.Int("considered", result.Considered),
			zap.Int("sent", result.Sent),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed),
		)
	}
	return nil
}
