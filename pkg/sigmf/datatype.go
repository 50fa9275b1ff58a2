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
	"fmt"
	"regexp"
	"strconv"
)

// DataType sample encoding of the data file.
type DataType struct {
	Complex       bool
	FloatingPoint bool
	Signed        bool

	// SampleBits is the value precision. It is lower than the
	// container width when a recorder quirk is corrected.
	SampleBits int

	// SampleBytes is the on-disk width of one I or Q value.
	SampleBytes int

	BigEndian bool
	SwapIQ    bool
}

// FrameBytes returns the size of one interleaved I/Q pair in the file.
func (d DataType) FrameBytes() int {
	return d.SampleBytes * 2
}

// Format returns "float", "int" or "uint".
func (d DataType) Format() string {
	switch {
	case d.FloatingPoint:
		return "float"
	case d.Signed:
		return "int"
	default:
		return "uint"
	}
}

// DefaultDataType is used when the datatype string cannot be decoded.
var DefaultDataType = DataType{
	Complex:     true,
	Signed:      true,
	SampleBits:  32,
	SampleBytes: 4,
}

var dataTypeRegex = regexp.MustCompile(`([cr])([fiu])(\d+)(_[lb]e)?`)

// BitsToBytes returns the number of bytes needed to hold bits.
func BitsToBytes(bits int) int {
	return (bits + 7) / 8
}

// ParseDataType decodes a datatype string like "cf32_le" or "ri16_be".
// ok is false and the default is returned if the string doesn't match.
func ParseDataType(s string) (DataType, bool) {
	match := dataTypeRegex.FindStringSubmatch(s)
	if match == nil {
		return DefaultDataType, false
	}

	bits, err := strconv.Atoi(match[3])
	if err != nil || bits < 1 || bits > 64 {
		return DefaultDataType, false
	}

	d := DataType{
		Complex:     match[1] == "c",
		SampleBits:  bits,
		SampleBytes: BitsToBytes(bits),
		BigEndian:   match[4] == "_be",
	}
	switch match[2] {
	case "f":
		d.FloatingPoint = true
		d.Signed = true
	case "i":
		d.Signed = true
	}
	return d, true
}

func (d DataType) String() string {
	kind := "r"
	if d.Complex {
		kind = "c"
	}
	format := "u"
	if d.FloatingPoint {
		format = "f"
	} else if d.Signed {
		format = "i"
	}
	endian := "_le"
	if d.BigEndian {
		endian = "_be"
	}
	return fmt.Sprintf("%s%s%d%s", kind, format, d.SampleBytes*8, endian)
}
