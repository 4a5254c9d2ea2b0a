package server

import (
	"sync"
	"time"
)

// minJoystickInterval caps joystick commands at about 20 per second.
const minJoystickInterval = 50 * time.Millisecond

// throttle coalesces rapid updates, flushing immediately when possible
// and scheduling a trailing edge flush for updates during cooldown.
// flush runs with mu held.
type throttle struct {
	interval time.Duration
	stopCh   <-chan struct{}
	flush    func()

	mu           sync.Mutex
	lastSendTime time.Time
	timerRunning bool
}

func (t *throttle) trigger() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if now.Sub(t.lastSendTime) >= t.interval {
		t.flush()
		t.lastSendTime = now
		return
	}
	if t.timerRunning {
		return
	}
	t.timerRunning = true
	remaining := t.interval - now.Sub(t.lastSendTime)
	go func() {
		select {
		case <-time.After(remaining):
			t.mu.Lock()
			t.flush()
			t.lastSendTime = time.Now()
			t.timerRunning = false
			t.mu.Unlock()
		case <-t.stopCh:
		}
	}()
}
