package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusIsTerminal(t *testing.T) {
	cases := map[Status]bool{
		StatusWaiting:      false,
		StatusInitializing: false,
		StatusStreaming:    false,
		StatusCompleted:    true,
		StatusFailed:       true,
	}
	for status, want := range cases {
		assert.Equal(t, want, status.IsTerminal(), status.String())
	}
}

func TestWaitingSnapshot(t *testing.T) {
	got := Waiting("abc")
	assert.Equal(t, StatusWaiting, got.Status)
	assert.Equal(t, "abc", got.TaskID)
	assert.Zero(t, got.Percent)
}
