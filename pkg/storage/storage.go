// Copyright 2022 The iqreplay Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"iqreplay/pkg/replay"
	"iqreplay/pkg/sigmf"

	"gopkg.in/yaml.v2"
)

// ConfigEnv stores system configuration.
type ConfigEnv struct {
	Port           int               `yaml:"port"`
	RecordingsDir  string            `yaml:"recordingsDir"`
	StorageDir     string            `yaml:"storageDir"`
	SinkAddress    string            `yaml:"sinkAddress"`
	TimingInterval string            `yaml:"timingInterval"`
	Quirk24Bit     string            `yaml:"quirk24Bit"`
	Settings       replay.Settings   `yaml:"settings"`
	Users          map[string]string `yaml:"users"`

	HomeDir   string `yaml:"homeDir"`
	ConfigDir string `yaml:"-"`
}

// Errors.
var (
	ErrPathNotAbsolute = errors.New("path is not absolute")
	ErrInvalidValue    = errors.New("invalid value")
)

// NewConfigEnv parses env.yaml and fills in defaults.
func NewConfigEnv(envPath string, envYAML []byte) (*ConfigEnv, error) {
	var env ConfigEnv

	if err := yaml.Unmarshal(envYAML, &env); err != nil {
		return nil, fmt.Errorf("unmarshal env.yaml: %w", err)
	}

	env.ConfigDir = filepath.Dir(envPath)

	if env.Port == 0 {
		env.Port = 2020
	}
	if env.HomeDir == "" {
		env.HomeDir = filepath.Dir(env.ConfigDir)
	}
	if env.RecordingsDir == "" {
		env.RecordingsDir = filepath.Join(env.HomeDir, "recordings")
	}
	if env.StorageDir == "" {
		env.StorageDir = filepath.Join(env.HomeDir, "storage")
	}
	if env.SinkAddress == "" {
		env.SinkAddress = "127.0.0.1:5004"
	}
	if env.TimingInterval == "" {
		env.TimingInterval = "1s"
	}
	if env.Quirk24Bit == "" {
		env.Quirk24Bit = string(sigmf.QuirkAuto)
	}
	if env.Settings.AccelerationFactor == 0 {
		env.Settings.AccelerationFactor = replay.DefaultSettings().AccelerationFactor
	}

	if !filepath.IsAbs(env.HomeDir) {
		return nil, fmt.Errorf("homeDir '%v': %w", env.HomeDir, ErrPathNotAbsolute)
	}
	if !filepath.IsAbs(env.RecordingsDir) {
		return nil, fmt.Errorf("recordingsDir '%v': %w", env.RecordingsDir, ErrPathNotAbsolute)
	}
	if !filepath.IsAbs(env.StorageDir) {
		return nil, fmt.Errorf("storageDir '%v': %w", env.StorageDir, ErrPathNotAbsolute)
	}

	interval, err := time.ParseDuration(env.TimingInterval)
	if err != nil || interval <= 0 {
		return nil, fmt.Errorf("timingInterval '%v': %w", env.TimingInterval, ErrInvalidValue)
	}

	switch sigmf.QuirkPolicy(env.Quirk24Bit) {
	case sigmf.QuirkAuto, sigmf.QuirkNever:
	default:
		return nil, fmt.Errorf("quirk24Bit '%v': %w", env.Quirk24Bit, ErrInvalidValue)
	}

	if env.Settings.AccelerationFactor < 0 {
		return nil, fmt.Errorf("accelerationFactor '%v': %w",
			env.Settings.AccelerationFactor, ErrInvalidValue)
	}

	return &env, nil
}

// Interval between timing messages.
func (env ConfigEnv) Interval() time.Duration {
	// Validated by NewConfigEnv.
	d, _ := time.ParseDuration(env.TimingInterval)
	return d
}

// Quirk sample precision policy.
func (env ConfigEnv) Quirk() sigmf.QuirkPolicy {
	return sigmf.QuirkPolicy(env.Quirk24Bit)
}

// LogDBPath path to the log database.
func (env ConfigEnv) LogDBPath() string {
	return filepath.Join(env.StorageDir, "logs.db")
}

// PrepareEnvironment creates the storage directory.
func (env ConfigEnv) PrepareEnvironment() error {
	err := os.MkdirAll(env.StorageDir, 0o700)
	if err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("create storage directory: %v: %w", env.StorageDir, err)
	}

	info, err := os.Stat(env.RecordingsDir)
	if err != nil {
		return fmt.Errorf("recordings directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("recordings directory: %v: %w", env.RecordingsDir, ErrInvalidValue)
	}
	return nil
}

const (
	kilobyte float64 = 1000
	megabyte         = kilobyte * 1000
	gigabyte         = megabyte * 1000
	terabyte         = gigabyte * 1000
)

// FormatBytes human readable size.
func FormatBytes(size int64) string {
	used := float64(size)
	switch {
	case used < megabyte:
		return fmt.Sprintf("%.0fKB", used/kilobyte)
	case used < 1000*megabyte:
		return fmt.Sprintf("%.0fMB", used/megabyte)
	case used < 10*gigabyte:
		return fmt.Sprintf("%.2fGB", used/gigabyte)
	case used < 100*gigabyte:
		return fmt.Sprintf("%.1fGB", used/gigabyte)
	case used < 1000*gigabyte:
		return fmt.Sprintf("%.0fGB", used/gigabyte)
	case used < 10*terabyte:
		return fmt.Sprintf("%.2fTB", used/terabyte)
	case used < 100*terabyte:
		return fmt.Sprintf("%.1fTB", used/terabyte)
	default:
		return fmt.Sprintf("%.0fTB", used/terabyte)
	}
}
