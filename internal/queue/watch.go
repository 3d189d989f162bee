package queue

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatch watches the reminder source file and coalesces filesystem
// activity into debounced change notifications, with a coarse mtime poll as
// a fallback for filesystems where inotify is unreliable.
type FileWatch struct {
	path     string
	debounce time.Duration
	poll     time.Duration
}

// NewFileWatch creates a watcher for path. Debounce coalesces bursty events
// (default 250ms); poll is the mtime fallback interval (default 1 minute).
func NewFileWatch(path string, debounce, poll time.Duration) *FileWatch {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	if poll <= 0 {
		poll = time.Minute
	}
	return &FileWatch{path: path, debounce: debounce, poll: poll}
}

// Changes returns a channel that emits whenever the watched file changes.
// The channel closes when ctx is canceled.
func (w *FileWatch) Changes(ctx context.Context) <-chan struct{} {
	out := make(chan struct{}, 1)

	go func() {
		defer close(out)

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			log.Printf("file watch: new watcher error: %v", err)
			watcher = nil
		} else {
			defer watcher.Close()
			// Watch the directory: editors replace files by rename, which
			// drops a watch on the file itself.
			if err := watcher.Add(filepath.Dir(w.path)); err != nil {
				log.Printf("file watch: add %s error: %v", w.path, err)
			}
		}

		lastMtime := w.mtime()
		ticker := time.NewTicker(w.poll)
		defer ticker.Stop()

		var timer *time.Timer
		pending := false
		trigger := func() {
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				pending = true
				return
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
			pending = true
		}
		notify := func() {
			select {
			case out <- struct{}{}:
			default:
			}
		}

		var events chan fsnotify.Event
		var werrs chan error
		if watcher != nil {
			events = watcher.Events
			werrs = watcher.Errors
		}

		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Chmod) != 0 {
					trigger()
				}

			case err, ok := <-werrs:
				if !ok {
					werrs = nil
					continue
				}
				log.Printf("file watch: watcher error: %v", err)

			case <-ticker.C:
				if mt := w.mtime(); !mt.Equal(lastMtime) {
					lastMtime = mt
					trigger()
				}

			case <-func() <-chan time.Time {
				if timer == nil {
					return nil
				}
				return timer.C
			}():
				if pending {
					lastMtime = w.mtime()
					notify()
					pending = false
				}
			}
		}
	}()

	return out
}

func (w *FileWatch) mtime() time.Time {
	fi, err := os.Stat(w.path)
	if err != nil {
		return time.Time{}
	}
	return fi.ModTime()
}
