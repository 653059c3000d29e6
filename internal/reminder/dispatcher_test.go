package reminder_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/kasira/internal/clock"
	"github.com/smallbiznis/kasira/internal/config"
	"github.com/smallbiznis/kasira/internal/reminder"
	"github.com/smallbiznis/kasira/internal/reminder/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubReminderService struct {
	calls  int
	result domain.ScanResult
	err    error
}

func (s *stubReminderService) DispatchDue(context.Context) (domain.ScanResult, error) {
	s.calls++
	return s.result, s.err
}

func (s *stubReminderService) ListByInvoice(context.Context, domain.ListReminderRequest) (domain.ListReminderResponse, error) {
	return domain.ListReminderResponse{}, nil
}

func newTestDispatcher(t *testing.T, svc domain.Service) *reminder.Dispatcher {
	t.Helper()

	holder, err := config.NewReminderConfigHolder()
	require.NoError(t, err)

	return reminder.NewDispatcher(reminder.DispatcherParams{
		Log:     zap.NewNop(),
		Holder:  holder,
		Service: svc,
		Clock:   clock.NewFakeClock(time.Now()),
	})
}

func TestRunOnceDispatches(t *testing.T) {
	svc := &stubReminderService{result: domain.ScanResult{Considered: 2, Sent: 2}}
	d := newTestDispatcher(t, svc)

	require.NoError(t, d.RunOnce(context.Background()))
	assert.Equal(t, 1, svc.calls)
}

func TestRunOncePropagatesScanError(t *testing.T) {
	svc := &stubReminderService{err: errors.New("db down")}
	d := newTestDispatcher(t, svc)

	err := d.RunOnce(context.Background())
	assert.EqualError(t, err, "db down")
}

func TestRunForeverStopsOnContextCancel(t *testing.T) {
	svc := &stubReminderService{}
	d := newTestDispatcher(t, svc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		d.RunForever(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop after cancel")
	}
	assert.Equal(t, 0, svc.calls)
}
