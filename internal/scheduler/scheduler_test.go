package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubRunner struct {
	calls int
	err   error
}

func (r *stubRunner) Run(context.Context) error {
	r.calls++
	return r.err
}

type stubRefresher struct {
	calls int
}

func (r *stubRefresher) RefreshCIKs(context.Context) (int, error) {
	r.calls++
	return 3, nil
}

func TestNewRejectsBadSchedule(t *testing.T) {
	_, err := New(Config{DailyHour: 99}, &stubRunner{}, &stubRefresher{}, zap.NewNop())
	require.Error(t, err)
}

func TestJobsInvokeCollaborators(t *testing.T) {
	runner := &stubRunner{}
	refresher := &stubRefresher{}
	s, err := New(Config{DailyHour: 2}, runner, refresher, zap.NewNop())
	require.NoError(t, err)
	defer s.Stop()

	s.runPass()
	s.refreshCIKs()

	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, 1, refresher.calls)
}

func TestRunPassLogsFailureWithoutPanic(t *testing.T) {
	runner := &stubRunner{err: errors.New("pass exploded")}
	s, err := New(Config{DailyHour: 2}, runner, &stubRefresher{}, zap.NewNop())
	require.NoError(t, err)
	defer s.Stop()

	s.runPass()
	assert.Equal(t, 1, runner.calls)
}

func TestStopCancelsJobContext(t *testing.T) {
	s, err := New(Config{DailyHour: 2, DailyMinute: 30}, &stubRunner{}, &stubRefresher{}, zap.NewNop())
	require.NoError(t, err)

	s.Start()
	s.Stop()
	assert.Error(t, s.ctx.Err())
}
