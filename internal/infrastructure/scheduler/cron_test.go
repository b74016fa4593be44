package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRejectsInvalidExpression(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler("every now and then", time.UTC)
	err := s.Start(context.Background(), func(time.Time) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron expression")
}

func TestSchedulerRunsJob(t *testing.T) {
	t.Parallel()

	fired := make(chan time.Time, 1)
	s := NewCronScheduler("@every 100ms", time.UTC)
	require.NoError(t, s.Start(context.Background(), func(tick time.Time) {
		select {
		case fired <- tick:
		default:
		}
	}))

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("job never fired")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}

func TestStopWithoutStartIsNoOp(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler("* * * * *", time.UTC)
	assert.NoError(t, s.Stop(context.Background()))
}

func TestStartWithNilJobIsNoOp(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler("* * * * *", time.UTC)
	assert.NoError(t, s.Start(context.Background(), nil))
	assert.NoError(t, s.Stop(context.Background()))
}
