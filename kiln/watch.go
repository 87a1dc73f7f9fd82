package kiln

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kadirpekel/crucible/event"
)

// FileEvent is one coalesced filesystem change Watch reports, already
// classified into the create/modify distinction the reactor's
// note_created/note_modified patterns need.
type FileEvent struct {
	Path    string
	Removed bool
	Created bool
}

// WatchOptions configures the live watcher, mirroring ScanOptions so a
// caller filters the same way for the initial Scan and for live updates.
type WatchOptions struct {
	SkipHidden    bool
	DebounceDelay time.Duration // default 100ms, per the teacher's FileWatcher
}

func (o WatchOptions) withDefaults() WatchOptions {
	if o.DebounceDelay == 0 {
		o.DebounceDelay = 100 * time.Millisecond
	}
	return o
}

// Watch recursively watches root for Markdown file changes until ctx is
// canceled, coalescing rapid successive events per path the way the
// teacher's v2/rag/watcher.go debounces fsnotify bursts.
func Watch(ctx context.Context, root string, opts WatchOptions) (<-chan FileEvent, error) {
	opts = opts.withDefaults()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := addRecursive(w, root, opts); err != nil {
		w.Close()
		return nil, err
	}

	out := make(chan FileEvent, 100)

	go func() {
		defer w.Close()
		defer close(out)

		pending := make(map[string]fsnotify.Event)
		var mu sync.Mutex
		var timer *time.Timer

		flush := func() {
			mu.Lock()
			events := pending
			pending = make(map[string]fsnotify.Event)
			mu.Unlock()
			for _, ev := range events {
				emitFileEvent(out, ctx, ev, w, root, opts)
			}
		}

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				flush()
				return

			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&fsnotify.Chmod == fsnotify.Chmod {
					continue
				}
				mu.Lock()
				pending[ev.Name] = ev
				mu.Unlock()
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(opts.DebounceDelay, flush)

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Error("kiln: watcher error", "path", root, "error", err)
			}
		}
	}()

	return out, nil
}

func addRecursive(w *fsnotify.Watcher, root string, opts WatchOptions) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && opts.SkipHidden && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			slog.Warn("kiln: failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func emitFileEvent(out chan<- FileEvent, ctx context.Context, ev fsnotify.Event, w *fsnotify.Watcher, root string, opts WatchOptions) {
	path := ev.Name
	name := filepath.Base(path)
	if opts.SkipHidden && isHidden(name) {
		return
	}

	var fe FileEvent
	fe.Path = path

	switch {
	case ev.Op&fsnotify.Create == fsnotify.Create:
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			if err := w.Add(path); err != nil {
				slog.Warn("kiln: failed to watch new directory", "path", path, "error", err)
			}
			return
		}
		if !noteExtensions[strings.ToLower(filepath.Ext(path))] {
			return
		}
		fe.Created = true

	case ev.Op&fsnotify.Write == fsnotify.Write:
		if !noteExtensions[strings.ToLower(filepath.Ext(path))] {
			return
		}

	case ev.Op&fsnotify.Remove == fsnotify.Remove, ev.Op&fsnotify.Rename == fsnotify.Rename:
		if !noteExtensions[strings.ToLower(filepath.Ext(path))] {
			return
		}
		fe.Removed = true

	default:
		return
	}

	select {
	case out <- fe:
	case <-ctx.Done():
	default:
		slog.Warn("kiln: event channel full, dropping event", "path", path)
	}
}

// ToEvent converts a FileEvent into the reactor event.Event spec.md §4.9
// feeds the reactor with — note_created for a fresh file, note_modified
// (with an empty changed_blocks, signaling a full re-embed per §4.8 step 3)
// for everything else. Removal is reported as note_modified too; nothing
// in the spec names a deletion event type, and the enrichment pipeline
// treats an empty changed_blocks list as "re-derive from scratch" either
// way.
func ToEvent(fe FileEvent) event.Event {
	if fe.Created {
		return event.New(event.NoteCreated, fe.Path, map[string]any{
			"path": fe.Path,
		}).WithSource("kiln")
	}
	return event.New(event.NoteModified, fe.Path, map[string]any{
		"path":           fe.Path,
		"changed_blocks": []string{},
		"removed":        fe.Removed,
	}).WithSource("kiln")
}
