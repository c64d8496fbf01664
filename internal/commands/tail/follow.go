// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fsnotify/fsnotify"
)

// followReader reads a file and, at end of file, blocks until the file is
// written again. Read returns io.EOF once ctx is done or the file is removed
// or renamed.
type followReader struct {
	ctx     context.Context
	file    *os.File
	watcher *fsnotify.Watcher
}

func newFollowReader(ctx context.Context, path string) (*followReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		f.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	return &followReader{ctx: ctx, file: f, watcher: w}, nil
}

func (r *followReader) Read(p []byte) (int, error) {
	for {
		n, err := r.file.Read(p)
		if n > 0 || (err != nil && !errors.Is(err, io.EOF)) {
			return n, err
		}

		select {
		case <-r.ctx.Done():
			return 0, io.EOF
		case event, ok := <-r.watcher.Events:
			if !ok {
				return 0, io.EOF
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				return 0, io.EOF
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return 0, io.EOF
			}
			return 0, fmt.Errorf("file watcher: %w", err)
		}
	}
}

func (r *followReader) Close() error {
	return errors.Join(r.watcher.Close(), r.file.Close())
}
