package schedule

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"streakd/internal/runner"
)

type firerFunc func(ctx context.Context, opts runner.Options) error

func (f firerFunc) Fire(ctx context.Context, opts runner.Options) error { return f(ctx, opts) }

func TestCronSpec(t *testing.T) {
	cases := []struct {
		clock string
		spec  string
		ok    bool
	}{
		{"07:00", "0 7 * * *", true},
		{"23:59", "59 23 * * *", true},
		{"00:00", "0 0 * * *", true},
		{"24:00", "", false},
		{"12:60", "", false},
		{"noon", "", false},
		{"7", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		spec, err := CronSpec(c.clock)
		if c.ok {
			require.NoError(t, err, c.clock)
			assert.Equal(t, c.spec, spec, c.clock)
		} else {
			assert.Error(t, err, c.clock)
		}
	}
}

func TestNewRejectsBadClock(t *testing.T) {
	_, err := New(zap.NewNop(), firerFunc(nil), "25:00", runner.Options{})
	assert.Error(t, err)
}

func TestTickFiresConfiguredOptions(t *testing.T) {
	var got runner.Options
	s, err := New(zap.NewNop(), firerFunc(func(_ context.Context, opts runner.Options) error {
		got = opts
		return nil
	}), "07:00", runner.Options{Message: "daily", Headless: true})
	require.NoError(t, err)

	var accepted []bool
	s.OnOutcome = func(ok bool) { accepted = append(accepted, ok) }

	s.tick()

	assert.Equal(t, "daily", got.Message)
	assert.True(t, got.Headless)
	assert.Equal(t, []bool{true}, accepted)
}

func TestTickSkipsWhenRunInFlight(t *testing.T) {
	s, err := New(zap.NewNop(), firerFunc(func(context.Context, runner.Options) error {
		return runner.ErrRunInFlight
	}), "07:00", runner.Options{})
	require.NoError(t, err)

	var accepted []bool
	s.OnOutcome = func(ok bool) { accepted = append(accepted, ok) }

	s.tick()
	s.tick()

	assert.Equal(t, []bool{false, false}, accepted)
}
