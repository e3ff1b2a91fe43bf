/*
 *
 * Copyright 2026 the mlos-shm authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package fdexchange

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchDir is the well-known directory containing the sentinel file.
const WatchDir = "/var/tmp/mlos"

// SentinelName is the sentinel file inside WatchDir.
const SentinelName = "mlos.opened"

// FileWatcher lets the target create a sentinel file and watch it. fsnotify
// has no direct equivalent of inotify's IN_OPEN, so the agent announces
// itself by writing to the sentinel on startup rather than merely opening
// it — fsnotify reports this as a Write event, which this watcher treats as
// "agent is up, send my descriptors." A Remove event causes the sentinel to
// be recreated and re-armed.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	sentinel string
	log      *zap.Logger
}

// NewFileWatcher creates dir and its sentinel file if absent and starts
// watching dir (watching the directory rather than the file directly
// survives the file being removed and recreated without re-arming).
func NewFileWatcher(dir string, log *zap.Logger) (*FileWatcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	sentinel := filepath.Join(dir, SentinelName)

	fw := &FileWatcher{dir: dir, sentinel: sentinel, log: log}
	if err := fw.touchSentinel(); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	fw.watcher = w
	return fw, nil
}

func (w *FileWatcher) touchSentinel() error {
	f, err := os.OpenFile(w.sentinel, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// AnnounceAgentUp is called by the agent process on startup to signal the
// target that it is ready to receive descriptors.
func AnnounceAgentUp(dir string) error {
	sentinel := filepath.Join(dir, SentinelName)
	f, err := os.OpenFile(sentinel, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// Run blocks dispatching onAgentUp every time the sentinel is written to,
// until ctx is canceled or Close is called from another goroutine: Close
// makes the Events channel close, which this loop observes and returns
// from cleanly.
func (w *FileWatcher) Run(ctx context.Context, onAgentUp func()) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("file watcher error", zap.Error(err))
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != w.sentinel {
				continue
			}
			switch {
			case event.Op&fsnotify.Remove != 0:
				w.log.Info("sentinel removed, recreating", zap.String("path", w.sentinel))
				if err := w.touchSentinel(); err != nil {
					w.log.Warn("failed to recreate sentinel", zap.Error(err))
				}
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				w.log.Info("agent sentinel touched; agent is up")
				onAgentUp()
			}
		}
	}
}

// Close stops the watcher, unblocking any in-progress Run call.
func (w *FileWatcher) Close() error {
	return w.watcher.Close()
}
