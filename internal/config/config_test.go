package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ptz-console/internal/ptz"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	st, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultTarget, st.Target)
	assert.Equal(t, ptz.DefaultSpeeds(), st.Speeds)
	assert.False(t, st.AutoConnect)
}

func TestLoadClampsSpeeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{"connection_string": "/dev/ttyUSB0", "pan_speed": 99, "tilt_speed": 24, "zoom_speed": 3, "focus_speed": -4, "auto_connect": true}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	s, err := Open(path)
	require.NoError(t, err)
	st, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", st.Target)
	assert.Equal(t, ptz.Speeds{Pan: 24, Tilt: 24, Zoom: 3, Focus: 0}, st.Speeds)
	assert.True(t, st.AutoConnect)
}

func TestSaveConnectedWritesKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	s, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, s.SaveConnected("cam:4001", ptz.Speeds{Pan: 7, Tilt: 6, Zoom: 2, Focus: 1}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "cam:4001", got["connection_string"])
	assert.Equal(t, float64(7), got["pan_speed"])
	assert.Equal(t, true, got["auto_connect"])

	again, err := Open(path)
	require.NoError(t, err)
	st, err := again.Load()
	require.NoError(t, err)
	assert.Equal(t, "cam:4001", st.Target)
	assert.True(t, st.AutoConnect)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("PTZ_CONNECTION_STRING", "udp://10.0.0.9:52381")
	s, err := Open(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	st, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "udp://10.0.0.9:52381", st.Target)
}

func TestLoadReportsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	s, err := Open(path)
	require.NoError(t, err)

	st, err := s.Load()
	assert.Error(t, err)
	assert.Equal(t, DefaultTarget, st.Target)
}
