package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(50 * time.Millisecond)

	d := timer.Duration()
	assert.GreaterOrEqual(t, d, 50*time.Millisecond)
	assert.Less(t, d, time.Second)
}
