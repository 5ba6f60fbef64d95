package store

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/lasmarois/notesbridge/internal/noteserr"
)

// WalWatcher watches the Notes store's -wal sidecar file for writes. It is
// purely an optimization hint: the FTS (§4.6) and semantic (§4.7) staleness
// checks still compare timestamps against the store's latest modification;
// a WalWatcher only decides when a caller should re-ask sooner than its
// normal poll interval.
type WalWatcher struct {
	watcher *fsnotify.Watcher
	Events  <-chan struct{}
}

// WatchWAL opens a watch on the directory containing storePath's -wal file
// (the wal file itself may not exist yet between checkpoints, so the
// directory is watched and events are filtered by name).
func WatchWAL(storePath string) (*WalWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, noteserr.StoreUnavailable("open wal watcher", err)
	}

	walName := filepath.Base(storePath) + "-wal"
	if err := w.Add(filepath.Dir(storePath)); err != nil {
		w.Close()
		return nil, noteserr.StoreUnavailable("watch wal directory", err)
	}

	events := make(chan struct{}, 1)
	go func() {
		defer close(events)
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != walName {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				select {
				case events <- struct{}{}:
				default:
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return &WalWatcher{watcher: w, Events: events}, nil
}

// Close stops the watch.
func (w *WalWatcher) Close() error { return w.watcher.Close() }
