package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCheck struct {
	name  string
	err   error
	sleep time.Duration
}

func (s *stubCheck) Name() string { return s.name }

func (s *stubCheck) Check(ctx context.Context) error {
	if s.sleep > 0 {
		select {
		case <-time.After(s.sleep):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.err
}

func TestNew(t *testing.T) {
	c := New()
	assert.Equal(t, 5*time.Second, c.timeout)
	assert.Equal(t, 3, c.failureThreshold)

	c = New(WithTimeout(time.Second), WithFailureThreshold(2), WithFailureThreshold(0))
	assert.Equal(t, time.Second, c.timeout)
	assert.Equal(t, 2, c.failureThreshold)
}

func TestCheckFunc(t *testing.T) {
	boom := errors.New("boom")
	check := NewCheckFunc("credentials", func(context.Context) error { return boom })
	assert.Equal(t, "credentials", check.Name())
	assert.Equal(t, boom, check.Check(context.Background()))
}

func TestNoChecksIsHealthy(t *testing.T) {
	status, err := New().CheckReadiness(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.Empty(t, status.Checks)
}

func TestFailureThreshold(t *testing.T) {
	c := New(WithFailureThreshold(2))
	c.AddReadinessCheck(&stubCheck{name: "agent", err: errors.New("down")})

	status, err := c.CheckReadiness(context.Background())
	require.NoError(t, err, "first failure is below threshold")
	assert.True(t, status.Healthy)

	status, err = c.CheckReadiness(context.Background())
	require.Error(t, err)
	assert.False(t, status.Healthy)
	assert.Equal(t, "down", status.Checks[0].Error)
	assert.Contains(t, err.Error(), "agent")
}

func TestRecoveryResetsFailures(t *testing.T) {
	check := &stubCheck{name: "iam", err: errors.New("down")}
	c := New(WithFailureThreshold(2))
	c.AddReadinessCheck(check)

	_, _ = c.CheckReadiness(context.Background())
	check.err = nil
	_, err := c.CheckReadiness(context.Background())
	require.NoError(t, err)

	check.err = errors.New("down again")
	_, err = c.CheckReadiness(context.Background())
	assert.NoError(t, err, "counter restarted after a success")
}

func TestCheckTimeout(t *testing.T) {
	c := New(WithTimeout(20*time.Millisecond), WithFailureThreshold(1))
	c.AddLivenessCheck(&stubCheck{name: "slow", sleep: time.Second})

	start := time.Now()
	status, err := c.CheckLiveness(context.Background())
	require.Error(t, err)
	assert.False(t, status.Healthy)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestLivenessAndReadinessAreSeparate(t *testing.T) {
	c := New(WithFailureThreshold(1))
	c.AddLivenessCheck(&stubCheck{name: "process"})
	c.AddReadinessCheck(&stubCheck{name: "credentials", err: errors.New("missing")})

	_, err := c.CheckLiveness(context.Background())
	assert.NoError(t, err)
	_, err = c.CheckReadiness(context.Background())
	assert.Error(t, err)
}
