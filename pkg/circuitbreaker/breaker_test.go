package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	s := DefaultSettings("cart")
	s.ConsecutiveFailures = 2
	s.OpenTimeout = time.Minute
	b := New[int](s)

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		_, err := b.Execute(func() (int, error) { return 0, boom })
		require.ErrorIs(t, err, boom)
	}

	_, err := b.Execute(func() (int, error) { return 1, nil })
	assert.True(t, IsOpen(err))
	assert.Equal(t, "open", b.State())
}

func TestBreaker_IgnoresSuccessfulErrors(t *testing.T) {
	notFound := errors.New("not found")
	s := DefaultSettings("cart")
	s.ConsecutiveFailures = 1
	s.IsSuccessful = func(err error) bool { return err == nil || errors.Is(err, notFound) }
	b := New[int](s)

	for i := 0; i < 3; i++ {
		_, err := b.Execute(func() (int, error) { return 0, notFound })
		assert.ErrorIs(t, err, notFound)
	}
	assert.Equal(t, "closed", b.State())
}

func TestBreaker_ReportsStateChanges(t *testing.T) {
	var changes []string
	s := DefaultSettings("cart")
	s.ConsecutiveFailures = 1
	s.OnStateChange = func(_, from, to string) { changes = append(changes, from+"->"+to) }
	b := New[string](s)

	_, _ = b.Execute(func() (string, error) { return "", errors.New("x") })
	assert.Equal(t, []string{"closed->open"}, changes)
}
