package telemetry

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ptz-console/internal/activity"
	"ptz-console/internal/ptz"
	"ptz-console/internal/status"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Error() error                   { return nil }

func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type message struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu   sync.Mutex
	msgs []message
}

func (f *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	f.msgs = append(f.msgs, message{topic, retained, payload.([]byte)})
	f.mu.Unlock()
	return doneToken{}
}

func TestSnapshotPublishedOnlyOnChange(t *testing.T) {
	fc := &fakeClient{}
	p := newPublisher(fc, "ptz/a", zerolog.Nop())

	s := status.Snapshot{Connected: true, Power: ptz.PowerOn, Pan: 3, CapturedAt: time.Unix(1, 0)}
	p.SnapshotPublished(s)
	s.CapturedAt = time.Unix(2, 0)
	p.SnapshotPublished(s)
	s.Pan = 4
	p.SnapshotPublished(s)

	require.Len(t, fc.msgs, 2)
	assert.Equal(t, "ptz/a/status", fc.msgs[0].topic)
	assert.True(t, fc.msgs[0].retained)

	var got status.Snapshot
	require.NoError(t, json.Unmarshal(fc.msgs[1].payload, &got))
	assert.Equal(t, 4, got.Pan)
}

func TestLoggedPublishesLine(t *testing.T) {
	fc := &fakeClient{}
	p := newPublisher(fc, "", zerolog.Nop())

	p.Logged(activity.Entry{At: time.Unix(0, 0), Message: "Moving UP"})
	require.Len(t, fc.msgs, 1)
	assert.Equal(t, "ptz/log", fc.msgs[0].topic)
	assert.Contains(t, string(fc.msgs[0].payload), "Moving UP")
}
