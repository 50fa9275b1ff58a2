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
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"iqreplay/pkg/sigmf"
	"iqreplay/pkg/timeline"

	"github.com/stretchr/testify/require"
)

func newTestRecording(t *testing.T, data []byte, sha string) (*sigmf.Recording, *timeline.Timeline) {
	t.Helper()
	dataPath := filepath.Join(t.TempDir(), "rec"+sigmf.DataExt)
	require.NoError(t, os.WriteFile(dataPath, data, 0o600))

	rec := &sigmf.Recording{
		DataPath: dataPath,
		Meta: sigmf.Metadata{
			SHA512:       sha,
			TotalSamples: uint64(len(data) / 4),
		},
		Captures: []sigmf.Capture{{SampleRate: 1000}},
	}
	tl := timeline.Build(rec.Captures, rec.Meta.TotalSamples, 1000, time.Now())
	return rec, tl
}

func TestVerify(t *testing.T) {
	data := bytes.Repeat([]byte{1, 2, 3, 4}, 256)
	digest, err := ComputeSHA512(bytes.NewReader(data))
	require.NoError(t, err)

	t.Run("ok", func(t *testing.T) {
		rec, tl := newTestRecording(t, data, digest)
		result, err := Verify(rec, tl)
		require.NoError(t, err)
		require.Equal(t, StatusOK, result.Digest)
		require.True(t, result.SampleCountOK)
	})
	t.Run("caseInsensitive", func(t *testing.T) {
		rec, tl := newTestRecording(t, data, strings.ToUpper(digest))
		result, err := Verify(rec, tl)
		require.NoError(t, err)
		require.Equal(t, StatusOK, result.Digest)
	})
	t.Run("unavailable", func(t *testing.T) {
		rec, tl := newTestRecording(t, data, "")
		result, err := Verify(rec, tl)
		require.NoError(t, err)
		require.Equal(t, StatusUnavailable, result.Digest)
	})
	t.Run("corruptedByte", func(t *testing.T) {
		corrupted := make([]byte, len(data))
		copy(corrupted, data)
		corrupted[100] ^= 0xff

		rec, tl := newTestRecording(t, corrupted, digest)
		result, err := Verify(rec, tl)
		require.ErrorIs(t, err, ErrDigestMismatch)
		require.Equal(t, StatusMismatch, result.Digest)
		require.True(t, result.SampleCountOK)
	})
	t.Run("missingFile", func(t *testing.T) {
		rec, tl := newTestRecording(t, data, digest)
		rec.DataPath = filepath.Join(t.TempDir(), "nil")
		_, err := Verify(rec, tl)
		require.ErrorIs(t, err, sigmf.ErrOpen)
	})
}

func TestCheckSampleCount(t *testing.T) {
	tl := timeline.Build([]sigmf.Capture{
		{SampleStart: 0, Length: 100, SampleRate: 1000},
	}, 150, 1000, time.Now())
	require.False(t, CheckSampleCount(tl))

	tl = timeline.Build([]sigmf.Capture{
		{SampleStart: 0, Length: 150, SampleRate: 1000},
	}, 150, 1000, time.Now())
	require.True(t, CheckSampleCount(tl))
}
