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

package replay

import (
	"math"
)

// Settings of the replay source.
type Settings struct {
	FileName           string  `json:"fileName" yaml:"fileName"`
	AccelerationFactor float64 `json:"accelerationFactor" yaml:"accelerationFactor"`
	TrackLoop          bool    `json:"trackLoop" yaml:"trackLoop"`
	FullLoop           bool    `json:"fullLoop" yaml:"fullLoop"`
}

// DefaultSettings real time playback, no loops.
func DefaultSettings() Settings {
	return Settings{AccelerationFactor: 1}
}

// SettingsKey identifies a settings field.
type SettingsKey string

// Settings keys.
const (
	KeyAccelerationFactor SettingsKey = "accelerationFactor"
	KeyTrackLoop          SettingsKey = "trackLoop"
	KeyFullLoop           SettingsKey = "fullLoop"
	KeyFileName           SettingsKey = "fileName"
)

// AllSettingsKeys every key in the order they are applied.
var AllSettingsKeys = []SettingsKey{
	KeyAccelerationFactor,
	KeyTrackLoop,
	KeyFullLoop,
	KeyFileName,
}

// ChangedKeys set of changed settings fields.
type ChangedKeys map[SettingsKey]struct{}

// Has returns true if key is in the set.
func (c ChangedKeys) Has(key SettingsKey) bool {
	_, exists := c[key]
	return exists
}

// DiffSettings returns the fields that differ between a and b.
func DiffSettings(a, b Settings) ChangedKeys {
	changed := ChangedKeys{}
	if a.AccelerationFactor != b.AccelerationFactor {
		changed[KeyAccelerationFactor] = struct{}{}
	}
	if a.TrackLoop != b.TrackLoop {
		changed[KeyTrackLoop] = struct{}{}
	}
	if a.FullLoop != b.FullLoop {
		changed[KeyFullLoop] = struct{}{}
	}
	if a.FileName != b.FileName {
		changed[KeyFileName] = struct{}{}
	}
	return changed
}

func allKeys() ChangedKeys {
	changed := ChangedKeys{}
	for _, key := range AllSettingsKeys {
		changed[key] = struct{}{}
	}
	return changed
}

func validAcceleration(f float64) bool {
	return f > 0 && !math.IsInf(f, 0) && !math.IsNaN(f)
}
