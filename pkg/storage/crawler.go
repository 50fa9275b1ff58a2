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

package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"iqreplay/pkg/sigmf"
)

// Recordings are stored as file pairs anywhere below the recordings directory.
//
// recordings
// ├── 2021-06-01_fm.sigmf-meta
// ├── 2021-06-01_fm.sigmf-data
// └── airband
//     ├── tower.sigmf-meta
//     └── tower.sigmf-data
//
// A metadata file without its data file is ignored.
// Recording names are the slash separated base paths
// relative to the recordings directory.

// ErrInvalidName recording name escapes the recordings directory.
var ErrInvalidName = errors.New("invalid recording name")

// Crawler crawls through the recordings directory.
type Crawler struct {
	path  string
	quirk sigmf.QuirkPolicy
	cache *SummaryCache
}

// NewCrawler creates new crawler.
func NewCrawler(path string, quirk sigmf.QuirkPolicy) *Crawler {
	return &Crawler{
		path:  path,
		quirk: quirk,
		cache: NewSummaryCache(),
	}
}

// Summary short description of a recording.
type Summary struct {
	Name         string    `json:"name"`
	Path         string    `json:"-"`
	DataBytes    int64     `json:"dataBytes"`
	Size         string    `json:"size"`
	ModTime      time.Time `json:"modTime"`
	DataType     string    `json:"dataType,omitempty"`
	SampleRate   int       `json:"sampleRate,omitempty"`
	TotalSamples uint64    `json:"totalSamples,omitempty"`
	Captures     int       `json:"captures,omitempty"`
	Description  string    `json:"description,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// Resolve returns the absolute base path of a recording name.
func (c *Crawler) Resolve(name string) (string, error) {
	name = sigmf.BasePath(name)
	if name == "" || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(c.path, clean), nil
}

// Names returns the names of all complete recordings, sorted.
func (c *Crawler) Names() ([]string, error) {
	var names []string
	err := filepath.WalkDir(c.path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == c.path {
				return err
			}
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), sigmf.MetaExt) {
			return nil
		}
		base := sigmf.BasePath(path)
		if !fileExist(base + sigmf.DataExt) {
			return nil
		}
		rel, err := filepath.Rel(c.path, base)
		if err != nil {
			return nil
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk recordings: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// RecordingByQuery returns up to limit recordings in reverse
// alphabetical order, starting after query. An empty
// query starts from the last recording.
func (c *Crawler) RecordingByQuery(limit int, query string) ([]Summary, error) {
	names, err := c.Names()
	if err != nil {
		return nil, err
	}

	summaries := []Summary{}
	for i := len(names) - 1; i >= 0 && len(summaries) < limit; i-- { // Reverse range.
		name := names[i]
		if query != "" && name >= query {
			continue
		}
		summary, err := c.Summary(name)
		if err != nil {
			continue
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// Summary of a single recording. Parse errors are reported
// in the summary, file system errors are returned.
func (c *Crawler) Summary(name string) (Summary, error) {
	base, err := c.Resolve(name)
	if err != nil {
		return Summary{}, err
	}

	metaInfo, err := os.Stat(base + sigmf.MetaExt)
	if err != nil {
		return Summary{}, err
	}
	dataInfo, err := os.Stat(base + sigmf.DataExt)
	if err != nil {
		return Summary{}, err
	}

	modTime := metaInfo.ModTime()
	if dataInfo.ModTime().After(modTime) {
		modTime = dataInfo.ModTime()
	}

	if cached, exist := c.cache.get(base, modTime); exist {
		return cached, nil
	}

	summary := Summary{
		Name:      filepath.ToSlash(sigmf.BasePath(name)),
		Path:      base,
		DataBytes: dataInfo.Size(),
		Size:      FormatBytes(dataInfo.Size()),
		ModTime:   modTime,
	}

	rec, err := sigmf.Open(base, sigmf.Options{Quirk: c.quirk})
	if err != nil {
		summary.Error = err.Error()
	} else {
		summary.DataType = rec.Meta.DataTypeStr
		summary.SampleRate = int(rec.Meta.CoreSampleRate)
		summary.TotalSamples = rec.Meta.TotalSamples
		summary.Captures = len(rec.Captures)
		summary.Description = rec.Meta.Description
	}

	c.cache.add(base, modTime, summary)
	return summary, nil
}

func fileExist(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
