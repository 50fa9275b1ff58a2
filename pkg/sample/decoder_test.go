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

package sample

import (
	"encoding/binary"
	"math"
	"testing"

	"iqreplay/pkg/sigmf"

	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, s string) sigmf.DataType {
	t.Helper()
	d, ok := sigmf.ParseDataType(s)
	require.True(t, ok)
	return d
}

func TestDecode(t *testing.T) {
	f32 := make([]byte, 8)
	binary.LittleEndian.PutUint32(f32[0:], math.Float32bits(0.5))
	binary.LittleEndian.PutUint32(f32[4:], math.Float32bits(-0.25))

	f64be := make([]byte, 16)
	binary.BigEndian.PutUint64(f64be[0:], math.Float64bits(0.75))
	binary.BigEndian.PutUint64(f64be[8:], math.Float64bits(-1))

	cases := []struct {
		name     string
		dataType string
		swapIQ   bool
		input    []byte
		expected []complex64
	}{
		{
			name:     "cu8",
			dataType: "cu8",
			input:    []byte{128, 192, 0, 255},
			expected: []complex64{complex(0, 0.5), complex(-1, 127.0/128)},
		},
		{
			name:     "ci8",
			dataType: "ci8",
			input:    []byte{0x40, 0xc0},
			expected: []complex64{complex(0.5, -0.5)},
		},
		{
			name:     "ci16_le",
			dataType: "ci16_le",
			input: []byte{
				0x00, 0x40, // I.
				0x00, 0x80, // Q.
			},
			expected: []complex64{complex(0.5, -1)},
		},
		{
			name:     "ci16_be",
			dataType: "ci16_be",
			input: []byte{
				0x40, 0x00, // I.
				0x80, 0x00, // Q.
			},
			expected: []complex64{complex(0.5, -1)},
		},
		{
			name:     "swapIQ",
			dataType: "ci16_be",
			swapIQ:   true,
			input:    []byte{0x40, 0x00, 0x80, 0x00},
			expected: []complex64{complex(-1, 0.5)},
		},
		{
			name:     "cf32_le",
			dataType: "cf32_le",
			input:    f32,
			expected: []complex64{complex(0.5, -0.25)},
		},
		{
			name:     "cf64_be",
			dataType: "cf64_be",
			input:    f64be,
			expected: []complex64{complex(0.75, -1)},
		},
		{
			name:     "ri16_le",
			dataType: "ri16_le",
			input:    []byte{0x00, 0x40, 0x00, 0xc0},
			expected: []complex64{complex(0.5, 0), complex(-0.5, 0)},
		},
		{
			name:     "partialFrame",
			dataType: "ci16_le",
			input:    []byte{0x00, 0x40, 0x00, 0x40, 0x00},
			expected: []complex64{complex(0.5, 0.5)},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dataType := mustParse(t, tc.dataType)
			dataType.SwapIQ = tc.swapIQ

			d, err := NewDecoder(dataType)
			require.NoError(t, err)

			dst := make([]complex64, 8)
			n := d.Decode(dst, tc.input)
			require.Equal(t, tc.expected, dst[:n])
		})
	}
}

func TestDecode24In32(t *testing.T) {
	dataType := mustParse(t, "ci32_le")
	dataType.SampleBits = 24

	d, err := NewDecoder(dataType)
	require.NoError(t, err)
	require.Equal(t, 8, d.FrameBytes())

	input := []byte{
		0x00, 0x00, 0x40, 0x00, // 1<<22.
		0x00, 0x00, 0x80, 0xff, // -1<<23.
	}
	dst := make([]complex64, 1)
	require.Equal(t, 1, d.Decode(dst, input))
	require.Equal(t, complex64(complex(0.5, -1)), dst[0])
}

func TestNewDecoderErrors(t *testing.T) {
	cases := map[string]sigmf.DataType{
		"f16":        {FloatingPoint: true, SampleBits: 16, SampleBytes: 2},
		"zeroBytes":  {SampleBits: 8},
		"bitsTooBig": {SampleBits: 16, SampleBytes: 1},
	}
	for name, dataType := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewDecoder(dataType)
			require.ErrorIs(t, err, ErrUnsupported)
		})
	}
}
