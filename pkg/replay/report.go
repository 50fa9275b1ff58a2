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
	"iqreplay/pkg/timeline"
)

// Report snapshot of the controller for observers.
type Report struct {
	Open      bool   `json:"open"`
	SessionID string `json:"sessionId,omitempty"`
	FileName  string `json:"fileName"`

	Running            bool    `json:"running"`
	TrackMode          bool    `json:"trackMode"`
	AccelerationFactor float64 `json:"accelerationFactor"`
	TrackLoop          bool    `json:"trackLoop"`
	FullLoop           bool    `json:"fullLoop"`

	SampleSize   int    `json:"sampleSize"`
	SampleBytes  int    `json:"sampleBytes"`
	SampleFormat string `json:"sampleFormat"`
	SampleSigned bool   `json:"sampleSigned"`
	SampleSwapIQ bool   `json:"sampleSwapIQ"`

	CRCStatus        integrity.Status `json:"crcStatus"`
	TotalBytesStatus bool             `json:"totalBytesStatus"`

	TrackIndex      int    `json:"trackIndex"`
	TrackNumber     int    `json:"trackNumber"`
	SampleRate      int    `json:"sampleRate"`
	CenterFrequency uint64 `json:"centerFrequency"`

	SamplesCount uint64 `json:"samplesCount"`
	TotalSamples uint64 `json:"totalSamples"`

	ElapsedTrackMs   uint64  `json:"elapsedTrackTimeMs"`
	ElapsedRecordMs  uint64  `json:"elapsedRecordTimeMs"`
	AbsoluteTimeMs   uint64  `json:"absoluteTimeMs"`
	TrackPosition    float64 `json:"trackPosition"`
	RecordPosition   float64 `json:"recordPosition"`
	TrackDurationMs  uint64  `json:"trackDurationMs"`
	RecordDurationMs uint64  `json:"recordDurationMs"`

	FifoOverflow uint64 `json:"fifoOverflow"`

	Meta     *sigmf.Metadata `json:"meta,omitempty"`
	Captures []sigmf.Capture `json:"captures,omitempty"`
}

// position inputs of a report.
type position struct {
	tl           *timeline.Timeline
	trackIndex   int
	samplesCount uint64
}

// timing fills the time and position fields.
func (r *Report) timing(p position) {
	c := p.tl.Capture(p.trackIndex)
	r.TrackIndex = p.trackIndex
	r.TrackNumber = p.trackIndex + 1
	r.SampleRate = c.SampleRate
	r.CenterFrequency = c.CenterFrequency
	r.SamplesCount = p.samplesCount
	r.TotalSamples = p.tl.TotalSamples()

	var trackSamples uint64
	if p.samplesCount > c.SampleStart {
		trackSamples = p.samplesCount - c.SampleStart
	}

	r.ElapsedTrackMs = timeline.DurationMs(trackSamples, c.SampleRate)
	r.ElapsedRecordMs = r.ElapsedTrackMs + c.CumulativeTimeMs
	r.AbsoluteTimeMs = c.StartTimestampMs + r.ElapsedTrackMs
	r.TrackDurationMs = timeline.DurationMs(c.Length, c.SampleRate)
	r.RecordDurationMs = p.tl.TotalTimeMs()

	if c.Length != 0 {
		r.TrackPosition = float64(trackSamples) / float64(c.Length)
	}
	if r.TotalSamples != 0 {
		r.RecordPosition = float64(p.samplesCount) / float64(r.TotalSamples)
	}
}

// format fills the sample format fields.
func (r *Report) format(d sigmf.DataType) {
	r.SampleSize = d.SampleBits
	r.SampleBytes = d.SampleBytes
	r.SampleFormat = d.Format()
	r.SampleSigned = d.Signed
	r.SampleSwapIQ = d.SwapIQ
}
