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

package integrity

import (
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"iqreplay/pkg/sigmf"
	"iqreplay/pkg/timeline"
)

// ErrDigestMismatch data file doesn't match the declared digest.
var ErrDigestMismatch = errors.New("sha512 digest mismatch")

// Status of a check, the values are reported as is.
type Status int

// Statuses.
const (
	StatusUnavailable Status = 0
	StatusOK          Status = 1
	StatusMismatch    Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusMismatch:
		return "mismatch"
	default:
		return "unavailable"
	}
}

// Result of verifying a recording.
type Result struct {
	Digest         Status `json:"crc"`
	ComputedSHA512 string `json:"computedSha512,omitempty"`

	// Advisory, never fatal.
	SampleCountOK bool `json:"totalSamplesOk"`
}

// Verify checks the data file against the declared digest and the
// total sample count against the timeline. Returns ErrDigestMismatch
// wrapped together with a valid result if the digest differs.
func Verify(rec *sigmf.Recording, tl *timeline.Timeline) (Result, error) {
	result := Result{
		SampleCountOK: CheckSampleCount(tl),
	}

	if rec.Meta.SHA512 == "" {
		return result, nil
	}

	file, err := os.Open(rec.DataPath)
	if err != nil {
		return result, fmt.Errorf("%w: %v", sigmf.ErrOpen, err)
	}
	defer file.Close()

	digest, err := ComputeSHA512(file)
	if err != nil {
		return result, fmt.Errorf("compute digest: %w", err)
	}
	result.ComputedSHA512 = digest

	if !strings.EqualFold(digest, strings.TrimSpace(rec.Meta.SHA512)) {
		result.Digest = StatusMismatch
		return result, fmt.Errorf("%w: declared %v, computed %v",
			ErrDigestMismatch, rec.Meta.SHA512, digest)
	}

	result.Digest = StatusOK
	return result, nil
}

// ComputeSHA512 returns the hex encoded SHA-512 digest of r.
func ComputeSHA512(r io.Reader) (string, error) {
	h := sha512.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CheckSampleCount returns true if the last capture
// ends exactly at the end of the data file.
func CheckSampleCount(tl *timeline.Timeline) bool {
	last := tl.Capture(tl.Len() - 1)
	return tl.TotalSamples() == last.SampleStart+last.Length
}
