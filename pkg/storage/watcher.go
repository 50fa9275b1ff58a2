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
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"iqreplay/pkg/log"
	"iqreplay/pkg/sigmf"

	"github.com/fsnotify/fsnotify"
)

// ChangeFunc is called with the name of a recording whose files changed.
type ChangeFunc func(name string, op fsnotify.Op)

// Watcher watches the recordings directory for changed recordings.
type Watcher struct {
	path     string
	onChange ChangeFunc
	log      *log.Logger
}

// NewWatcher creates a watcher.
func NewWatcher(path string, logger *log.Logger, onChange ChangeFunc) *Watcher {
	return &Watcher{
		path:     path,
		onChange: onChange,
		log:      logger,
	}
}

// Start adds the recordings directory and its sub directories
// and watches them until the context is canceled.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}
	if err := w.addRecursive(watcher, w.path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case e, ok := <-watcher.Events:
				if !ok {
					return
				}
				w.handle(watcher, e)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.log.Error().Src("storage").Msgf("watcher: %v", err)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (w *Watcher) addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %v: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) handle(watcher *fsnotify.Watcher, e fsnotify.Event) {
	if e.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(e.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(watcher, e.Name); err != nil {
				w.log.Error().Src("storage").Msgf("watcher: %v", err)
			}
			return
		}
	}

	if !strings.HasSuffix(e.Name, sigmf.MetaExt) && !strings.HasSuffix(e.Name, sigmf.DataExt) {
		return
	}
	rel, err := filepath.Rel(w.path, sigmf.BasePath(e.Name))
	if err != nil {
		return
	}
	w.onChange(filepath.ToSlash(rel), e.Op)
}
