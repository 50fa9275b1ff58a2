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

package sigmf

// Document is the JSON layout of a .sigmf-meta file.
type Document struct {
	Global      Global         `json:"global"`
	Captures    []CaptureEntry `json:"captures"`
	Annotations []Annotation   `json:"annotations"`
}

// Global descriptor, core and recorder namespaces.
type Global struct {
	Datatype    string  `json:"core:datatype"`
	SampleRate  float64 `json:"core:sample_rate"`
	Version     string  `json:"core:version"`
	SHA512      string  `json:"core:sha512,omitempty"`
	Offset      uint64  `json:"core:offset,omitempty"`
	Description string  `json:"core:description,omitempty"`
	Author      string  `json:"core:author,omitempty"`
	MetaDOI     string  `json:"core:meta_doi,omitempty"`
	DataDOI     string  `json:"core:data_doi,omitempty"`
	Recorder    string  `json:"core:recorder,omitempty"`
	License     string  `json:"core:license,omitempty"`
	HW          string  `json:"core:hw,omitempty"`

	RecorderVersion string `json:"sdrangel:version,omitempty"`
	QtVersion       string `json:"sdrangel:qt_version,omitempty"`
	RxBits          int    `json:"sdrangel:rx_bits,omitempty"`
	Arch            string `json:"sdrangel:arch,omitempty"`
	OS              string `json:"sdrangel:os,omitempty"`
}

// CaptureEntry segment descriptor as found in the file.
type CaptureEntry struct {
	SampleStart uint64  `json:"core:sample_start"`
	Frequency   float64 `json:"core:frequency,omitempty"`
	Datetime    string  `json:"core:datetime,omitempty"`
	Length      uint64  `json:"core:length,omitempty"`

	SampleRate int    `json:"sdrangel:sample_rate,omitempty"`
	Tsms       uint64 `json:"sdrangel:tsms,omitempty"`
}

// Annotation entry. Only counted.
type Annotation struct {
	SampleStart   uint64  `json:"core:sample_start"`
	SampleCount   uint64  `json:"core:sample_count,omitempty"`
	FreqLowerEdge float64 `json:"core:freq_lower_edge,omitempty"`
	FreqUpperEdge float64 `json:"core:freq_upper_edge,omitempty"`
	Label         string  `json:"core:label,omitempty"`
	Comment       string  `json:"core:comment,omitempty"`
}

// Metadata recording metadata, immutable once loaded.
type Metadata struct {
	DataTypeStr string   `json:"dataType"`
	DataType    DataType `json:"-"`

	// Declared global sample rate, sign corrected.
	CoreSampleRate float64 `json:"coreSampleRate"`

	// Derived from the data file size.
	TotalSamples uint64 `json:"totalSamples"`
	DataBytes    int64  `json:"dataBytes"`

	SigMFVersion string `json:"sigMFVersion"`
	SHA512       string `json:"sha512"`
	Offset       uint64 `json:"offset"`
	Description  string `json:"description"`
	Author       string `json:"author"`
	MetaDOI      string `json:"metaDOI"`
	DataDOI      string `json:"dataDOI"`
	Recorder     string `json:"recorder"`
	License      string `json:"license"`
	HW           string `json:"hw"`

	RecorderVersion string `json:"recorderVersion"`
	ToolkitVersion  string `json:"toolkitVersion"`
	RxBits          int    `json:"rxBits"`
	Arch            string `json:"arch"`
	OS              string `json:"os"`

	NbCaptures    int `json:"nbCaptures"`
	NbAnnotations int `json:"nbAnnotations"`

	// Non fatal parse problems.
	Warnings []string `json:"warnings,omitempty"`
}

// Capture a segment of the recording, also called track.
type Capture struct {
	CenterFrequency  uint64 `json:"centerFrequency"`
	SampleStart      uint64 `json:"sampleStart"`
	Length           uint64 `json:"length"`
	SampleRate       int    `json:"sampleRate"`
	StartTimestampMs uint64 `json:"tsms"`
	CumulativeTimeMs uint64 `json:"cumulativeTime"`
}
