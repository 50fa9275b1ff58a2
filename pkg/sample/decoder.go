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

// Package sample converts raw interleaved I/Q frames
// into the complex64 working representation.
package sample

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"iqreplay/pkg/sigmf"

	"github.com/icza/bitio"
)

// ErrUnsupported unsupported sample encoding.
var ErrUnsupported = errors.New("unsupported sample encoding")

// Decoder decodes raw frames of a single data type.
type Decoder struct {
	dataType  sigmf.DataType
	width     uint8 // Container bits.
	fullScale float64
}

// NewDecoder returns a decoder for dataType.
func NewDecoder(dataType sigmf.DataType) (*Decoder, error) {
	width := dataType.SampleBytes * 8
	switch {
	case dataType.SampleBytes < 1 || dataType.SampleBytes > 8:
		return nil, fmt.Errorf("%w: %v bytes", ErrUnsupported, dataType.SampleBytes)
	case dataType.FloatingPoint && width != 32 && width != 64:
		return nil, fmt.Errorf("%w: %v bit float", ErrUnsupported, width)
	case dataType.SampleBits < 1 || dataType.SampleBits > width:
		return nil, fmt.Errorf("%w: %v bits in %v bit container",
			ErrUnsupported, dataType.SampleBits, width)
	}

	return &Decoder{
		dataType:  dataType,
		width:     uint8(width),
		fullScale: math.Exp2(float64(dataType.SampleBits - 1)),
	}, nil
}

// FrameBytes size of one raw I/Q frame.
func (d *Decoder) FrameBytes() int {
	return d.dataType.FrameBytes()
}

// SamplesPerFrame output samples produced by one frame. Real
// data yields one sample per value with a zero imaginary part.
func (d *Decoder) SamplesPerFrame() int {
	if d.dataType.Complex {
		return 1
	}
	return 2
}

// Decode decodes the whole frames in raw into dst and
// returns the number of samples written. dst must hold
// len(raw)/FrameBytes()*SamplesPerFrame() samples.
func (d *Decoder) Decode(dst []complex64, raw []byte) int {
	frames := len(raw) / d.FrameBytes()
	values := make([]float64, 2)

	var r *bitio.Reader
	if d.dataType.BigEndian {
		r = bitio.NewReader(bytes.NewBuffer(raw[:frames*d.FrameBytes()]))
	}

	n := 0
	for i := 0; i < frames; i++ {
		frame := raw[i*d.FrameBytes() : (i+1)*d.FrameBytes()]
		for j := range values {
			var bits uint64
			if r != nil {
				// Reading from a buffer of whole frames can't fail.
				bits, _ = r.ReadBits(d.width)
			} else {
				bits = littleEndian(frame[j*d.dataType.SampleBytes : (j+1)*d.dataType.SampleBytes])
			}
			values[j] = d.normalize(bits)
		}

		if !d.dataType.Complex {
			dst[n] = complex(float32(values[0]), 0)
			dst[n+1] = complex(float32(values[1]), 0)
			n += 2
			continue
		}
		if d.dataType.SwapIQ {
			values[0], values[1] = values[1], values[0]
		}
		dst[n] = complex(float32(values[0]), float32(values[1]))
		n++
	}
	return n
}

func littleEndian(b []byte) uint64 {
	var v uint64
	for i, byt := range b {
		v |= uint64(byt) << (8 * i)
	}
	return v
}

// normalize scales a raw value to [-1, 1).
func (d *Decoder) normalize(bits uint64) float64 {
	switch {
	case d.dataType.FloatingPoint && d.width == 32:
		return float64(math.Float32frombits(uint32(bits)))
	case d.dataType.FloatingPoint:
		return math.Float64frombits(bits)
	case d.dataType.Signed:
		return float64(signExtend(bits, d.width)) / d.fullScale
	default:
		return (float64(bits) - d.fullScale) / d.fullScale
	}
}

func signExtend(v uint64, width uint8) int64 {
	shift := 64 - width
	return int64(v<<shift) >> shift
}
