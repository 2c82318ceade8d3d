package main

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSupervise(t *testing.T) {
	restartDelay = time.Millisecond
	t.Cleanup(func() { restartDelay = time.Second })

	t.Run("restarts after a recovered panic", func(t *testing.T) {
		calls := 0
		err := supervise(func() error {
			calls++
			if calls < 3 {
				return errPanicRecovered
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, calls)
	})

	t.Run("startup error is returned without retrying", func(t *testing.T) {
		calls := 0
		errConfig := errors.New("bad config")
		err := supervise(func() error {
			calls++
			return errConfig
		})
		require.ErrorIs(t, err, errConfig)
		require.Equal(t, 1, calls)
	})
}
