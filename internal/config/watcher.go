package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/banshee-data/serialsniff/internal/monitoring"
	"github.com/banshee-data/serialsniff/internal/timeutil"
)

// DefaultDebounce coalesces the burst of events an editor produces when it
// saves a file.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reports changes to a single config file.
type Watcher struct {
	Path     string
	Debounce time.Duration
	Clock    timeutil.Clock
}

// NewWatcher returns a watcher for path with the default debounce.
func NewWatcher(path string) *Watcher {
	return &Watcher{Path: path, Debounce: DefaultDebounce, Clock: timeutil.RealClock{}}
}

// Watch starts watching and returns a channel that receives a value after
// each settled change to the file. The directory is watched rather than the
// file so that editors replacing the file by rename are seen. The channel is
// closed when ctx is done.
func (w *Watcher) Watch(ctx context.Context) (<-chan struct{}, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	dir := filepath.Dir(w.Path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config watcher: watch %s: %w", dir, err)
	}

	clock := w.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	delay := w.Debounce
	if delay <= 0 {
		delay = DefaultDebounce
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer fw.Close()

		name := filepath.Base(w.Path)
		var (
			timer  timeutil.Timer
			settle <-chan time.Time
		)
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return

			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != name {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if timer == nil {
					timer = clock.NewTimer(delay)
				} else {
					timer.Stop()
					timer.Reset(delay)
				}
				settle = timer.C()

			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				l := monitoring.Logger()
				l.Warn().Err(err).Str("path", w.Path).Msg("config watcher error")

			case <-settle:
				settle = nil
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}
