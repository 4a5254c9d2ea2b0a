// Package config persists the console settings: target, speeds and the
// auto-connect flag.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"ptz-console/internal/ptz"
)

// DefaultTarget is the connection string used when none is configured.
const DefaultTarget = "192.168.1.32:8234"

const (
	keyTarget      = "connection_string"
	keyPanSpeed    = "pan_speed"
	keyTiltSpeed   = "tilt_speed"
	keyZoomSpeed   = "zoom_speed"
	keyFocusSpeed  = "focus_speed"
	keyAutoConnect = "auto_connect"
)

// Settings are the persisted console settings.
type Settings struct {
	Target      string
	Speeds      ptz.Speeds
	AutoConnect bool
}

// Store reads and writes Settings through viper. Environment variables with
// the PTZ_ prefix override the file.
type Store struct {
	v    *viper.Viper
	path string
}

// DefaultPath returns $HOME/.config/ptz-console/config.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ptz-console", "config.json"), nil
}

// LoadDotEnv loads a .env file from the working directory if one exists.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Open prepares a Store for path. An empty path uses DefaultPath.
func Open(path string) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("locate config: %w", err)
		}
		path = p
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("PTZ")
	v.AutomaticEnv()

	v.SetDefault(keyTarget, DefaultTarget)
	v.SetDefault(keyPanSpeed, ptz.DefaultSpeed)
	v.SetDefault(keyTiltSpeed, ptz.DefaultSpeed)
	v.SetDefault(keyZoomSpeed, ptz.DefaultSpeed)
	v.SetDefault(keyFocusSpeed, ptz.DefaultSpeed)
	v.SetDefault(keyAutoConnect, false)

	return &Store{v: v, path: path}, nil
}

// Path returns the config file path.
func (s *Store) Path() string { return s.path }

// Load reads the file if present and returns the settings with speeds
// clamped to their ranges. A missing file yields the defaults.
func (s *Store) Load() (Settings, error) {
	var err error
	if rerr := s.v.ReadInConfig(); rerr != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(rerr, &nf) && !errors.Is(rerr, os.ErrNotExist) {
			err = fmt.Errorf("read config %s: %w", s.path, rerr)
		}
	}
	st := Settings{
		Target: s.v.GetString(keyTarget),
		Speeds: ptz.Speeds{
			Pan:   s.v.GetInt(keyPanSpeed),
			Tilt:  s.v.GetInt(keyTiltSpeed),
			Zoom:  s.v.GetInt(keyZoomSpeed),
			Focus: s.v.GetInt(keyFocusSpeed),
		}.Clamp(),
		AutoConnect: s.v.GetBool(keyAutoConnect),
	}
	if st.Target == "" {
		st.Target = DefaultTarget
	}
	return st, err
}

// Save writes the settings, creating the directory if needed.
func (s *Store) Save(st Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	s.v.Set(keyTarget, st.Target)
	s.v.Set(keyPanSpeed, st.Speeds.Pan)
	s.v.Set(keyTiltSpeed, st.Speeds.Tilt)
	s.v.Set(keyZoomSpeed, st.Speeds.Zoom)
	s.v.Set(keyFocusSpeed, st.Speeds.Focus)
	s.v.Set(keyAutoConnect, st.AutoConnect)
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("write config %s: %w", s.path, err)
	}
	return nil
}

// SaveConnected records a successful connect: the target and speeds are
// stored and auto-connect is turned on.
func (s *Store) SaveConnected(target string, speeds ptz.Speeds) error {
	return s.Save(Settings{Target: target, Speeds: speeds, AutoConnect: true})
}
