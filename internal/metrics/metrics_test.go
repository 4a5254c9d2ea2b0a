package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.DeviceCall("stop", time.Millisecond, nil)
	m.ConnectAttempt(errors.New("x"))
	m.SetConnected(true)
	m.WatchdogStop("movement", nil)
	m.Poll(true)
	m.FieldFailure("video_format")
	m.Incoming()
	m.AddWebClients(1)
	m.PreviewPacket(false)
}

func TestCountersRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.DeviceCall("left", 2*time.Millisecond, nil)
	m.DeviceCall("left", 2*time.Millisecond, errors.New("nak"))
	m.ConnectAttempt(nil)
	m.SetConnected(true)
	m.WatchdogStop("zoom", nil)
	m.FieldFailure("video_format")
	m.Incoming()
	m.Incoming()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.deviceCalls.WithLabelValues("left", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deviceCalls.WithLabelValues("left", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectAttempts.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.watchdogStops.WithLabelValues("zoom", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fieldFailures.WithLabelValues("video_format")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.incoming))

	m.AddWebClients(2)
	m.AddWebClients(-1)
	m.PreviewPacket(true)
	m.PreviewPacket(false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webClients))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.previewPackets.WithLabelValues("dropped")))

	n, err := testutil.GatherAndCount(reg)
	assert.NoError(t, err)
	assert.Greater(t, n, 0)
}
