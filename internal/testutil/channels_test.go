package testutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReceive(t *testing.T) {
	t.Parallel()

	ch := make(chan int, 1)
	ch <- 7
	assert.Equal(t, 7, Receive(t, ch, ShortTestTimeout, "no value"))

	done := make(chan error, 1)
	done <- errors.New("stopped")
	assert.EqualError(t, Returned(t, done), "stopped")

	closed := make(chan struct{})
	close(closed)
	WaitClosed(t, closed, ShortTestTimeout, "not closed")
}
