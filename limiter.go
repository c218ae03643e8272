package webseed

import (
	"time"

	"github.com/anacrolix/missinggo/v2/panicif"
)

const (
	maxConnections         = 4
	maxConsecutiveFailures = maxConnections
	failureCooldown        = 120 * time.Second
)

// connectionLimiter manages how many fetches should be in flight at once.
// When all is well, several run in parallel. After an error, throttle down
// to one at a time until piece data arrives. After too many errors in a row,
// put the host in timeout and don't allow any connections for a while.
type connectionLimiter struct {
	nTasks               int
	nConsecutiveFailures int
	pausedUntil          time.Time
	// Overridable in tests.
	now func() time.Time
}

func (me *connectionLimiter) timeNow() time.Time {
	if me.now != nil {
		return me.now()
	}
	return time.Now()
}

func (me *connectionLimiter) taskStarted() {
	me.nTasks++
}

func (me *connectionLimiter) taskFinished(success bool) {
	if !success {
		me.taskFailed()
	}
	panicif.LessThanOrEqual(me.nTasks, 0)
	me.nTasks--
}

func (me *connectionLimiter) taskFailed() {
	me.nConsecutiveFailures++
	if me.nConsecutiveFailures >= maxConsecutiveFailures {
		me.pausedUntil = me.timeNow().Add(failureCooldown)
	}
}

// gotData is called whenever any bytes arrive on an active task.
func (me *connectionLimiter) gotData() {
	me.nConsecutiveFailures = 0
	me.pausedUntil = time.Time{}
}

func (me *connectionLimiter) isPaused() bool {
	return me.pausedUntil.After(me.timeNow())
}

func (me *connectionLimiter) maxTasks() int {
	if me.nConsecutiveFailures > 0 {
		return 1
	}
	return maxConnections
}

func (me *connectionLimiter) slotsAvailable() int {
	if me.isPaused() {
		return 0
	}
	if max := me.maxTasks(); me.nTasks < max {
		return max - me.nTasks
	}
	return 0
}
