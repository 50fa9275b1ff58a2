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

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// File extensions.
const (
	MetaExt = ".sigmf-meta"
	DataExt = ".sigmf-data"
)

// Errors.
var (
	ErrOpen              = errors.New("could not open recording")
	ErrMetadataMalformed = errors.New("malformed metadata")
)

// QuirkPolicy controls the 32 to 24 bit sample precision correction.
type QuirkPolicy string

// Quirk policies.
const (
	// Applied whenever the recorder version is present.
	QuirkAuto  QuirkPolicy = "auto"
	QuirkNever QuirkPolicy = "never"
)

// Options parser options.
type Options struct {
	Quirk QuirkPolicy

	// Defaults to time.Now.
	Now func() time.Time
}

// Recording an opened metadata and data file pair.
type Recording struct {
	Name     string
	MetaPath string
	DataPath string

	Meta     Metadata
	Captures []Capture
}

// BasePath strips a SigMF extension from path.
func BasePath(path string) string {
	if strings.HasSuffix(path, MetaExt) {
		return strings.TrimSuffix(path, MetaExt)
	}
	return strings.TrimSuffix(path, DataExt)
}

// Open reads the metadata of the recording at path. Path can
// point to either file of the pair or be the common base path.
func Open(path string, opts Options) (*Recording, error) {
	base := BasePath(path)
	metaPath := base + MetaExt
	dataPath := base + DataExt

	rawMeta, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}

	dataInfo, err := os.Stat(dataPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	if dataInfo.IsDir() {
		return nil, fmt.Errorf("%w: is a directory: %v", ErrOpen, dataPath)
	}

	meta, captures, err := ParseMeta(rawMeta, dataInfo.Size(), opts)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", metaPath, err)
	}

	return &Recording{
		Name:     filepath.Base(base),
		MetaPath: metaPath,
		DataPath: dataPath,
		Meta:     meta,
		Captures: captures,
	}, nil
}

// ParseMeta parses metadata and derives the total sample
// count from the size of the data file. Returned captures
// are drafts, lengths of zero are resolved by the timeline.
func ParseMeta(rawMeta []byte, dataSize int64, opts Options) (Metadata, []Capture, error) {
	var doc Document
	if err := json.Unmarshal(rawMeta, &doc); err != nil {
		return Metadata{}, nil, fmt.Errorf("%w: %v", ErrMetadataMalformed, err)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	meta := extractMeta(doc, dataSize, opts.Quirk)
	captures, warnings := extractCaptures(doc, opts.Now)
	meta.Warnings = append(meta.Warnings, warnings...)

	return meta, captures, nil
}

func extractMeta(doc Document, dataSize int64, quirk QuirkPolicy) Metadata {
	g := doc.Global
	meta := Metadata{
		DataTypeStr:     g.Datatype,
		DataBytes:       dataSize,
		SigMFVersion:    g.Version,
		SHA512:          g.SHA512,
		Offset:          g.Offset,
		Description:     g.Description,
		Author:          g.Author,
		MetaDOI:         g.MetaDOI,
		DataDOI:         g.DataDOI,
		Recorder:        g.Recorder,
		License:         g.License,
		HW:              g.HW,
		RecorderVersion: g.RecorderVersion,
		ToolkitVersion:  g.QtVersion,
		RxBits:          g.RxBits,
		Arch:            g.Arch,
		OS:              g.OS,
		NbCaptures:      len(doc.Captures),
		NbAnnotations:   len(doc.Annotations),
	}

	dataType, ok := ParseDataType(g.Datatype)
	if !ok {
		meta.Warnings = append(meta.Warnings, fmt.Sprintf(
			"unknown datatype %q, assuming %d bits", g.Datatype, dataType.SampleBits))
	}

	if dataSize > 0 {
		meta.TotalSamples = uint64(dataSize) / uint64(dataType.FrameBytes())
	}

	// The stride keeps the declared width, only the precision changes.
	if quirk != QuirkNever && g.RecorderVersion != "" && dataType.SampleBits == 32 {
		dataType.SampleBits = 24
	}

	// Negative sample rate means I and Q are swapped.
	dataType.SwapIQ = g.SampleRate < 0
	meta.CoreSampleRate = math.Abs(g.SampleRate)

	meta.DataType = dataType
	return meta
}

func extractCaptures(doc Document, now func() time.Time) ([]Capture, []string) {
	var warnings []string
	globalRate := int(math.Abs(doc.Global.SampleRate))

	captures := make([]Capture, 0, len(doc.Captures))
	for i, entry := range doc.Captures {
		c := Capture{
			CenterFrequency: uint64(math.Max(entry.Frequency, 0)),
			SampleStart:     entry.SampleStart,
			Length:          entry.Length,
			SampleRate:      entry.SampleRate,
		}
		if c.SampleRate == 0 {
			c.SampleRate = globalRate
		}

		if entry.Tsms != 0 {
			c.StartTimestampMs = entry.Tsms
		} else {
			tsms, ok := ParseDatetime(entry.Datetime, now())
			if !ok {
				warnings = append(warnings, fmt.Sprintf(
					"capture %d: invalid datetime %q, using current time", i, entry.Datetime))
			}
			c.StartTimestampMs = tsms
		}

		captures = append(captures, c)
	}
	return captures, warnings
}
