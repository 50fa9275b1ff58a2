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
	"iqreplay/pkg/integrity"
	"iqreplay/pkg/sigmf"
)

// MessageType outbound message type.
type MessageType string

// Outbound message types.
const (
	MsgMetaData          MessageType = "metaData"
	MsgCRC               MessageType = "crc"
	MsgTotalSamplesCheck MessageType = "totalSamplesCheck"
	MsgStartStop         MessageType = "startStop"
	MsgTrackChange       MessageType = "trackChange"
	MsgSignalChange      MessageType = "signalChange"
	MsgTiming            MessageType = "timing"
)

// Message sent to observers of the controller.
type Message struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId"`
	Payload   interface{} `json:"payload"`
}

// MetaData sent after a recording is opened.
type MetaData struct {
	Meta     sigmf.Metadata  `json:"meta"`
	Captures []sigmf.Capture `json:"captures"`
}

// CRC digest verification result.
type CRC struct {
	Status   integrity.Status `json:"status"`
	Declared string           `json:"declared,omitempty"`
	Computed string           `json:"computed,omitempty"`
}

// TotalSamplesCheck sample count verification result.
type TotalSamplesCheck struct {
	OK bool `json:"ok"`
}

// StartStop worker state change.
type StartStop struct {
	Running bool `json:"running"`
}

// TrackChange current track changed.
type TrackChange struct {
	TrackIndex int `json:"trackIndex"`
}

// SignalChange sample rate or center frequency changed.
// Downstream stages retune or resample on this message.
type SignalChange struct {
	SampleRate      int    `json:"sampleRate"`
	CenterFrequency uint64 `json:"centerFrequency"`
}

// Timing periodic position while running.
type Timing struct {
	SamplesCount          uint64 `json:"samplesCount"`
	TrackSamplesCount     uint64 `json:"trackSamplesCount"`
	TrackCumulativeTimeMs uint64 `json:"trackCumulativeTime"`
	TrackIndex            int    `json:"trackIndex"`
}
