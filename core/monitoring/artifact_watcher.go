package monitoring

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchArtifact returns a channel that is closed once the file name appears
// (created, written or renamed into place) inside dir. If the file already
// exists when the watch is armed the channel closes immediately. Watching
// stops when ctx is done.
func WatchArtifact(ctx context.Context, dir, name string) (<-chan struct{}, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	target := filepath.Clean(filepath.Join(dir, name))
	ready := make(chan struct{})

	go func() {
		defer w.Close()

		if _, err := os.Stat(target); err == nil {
			close(ready)
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
					close(ready)
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("Artifact watcher on %s: %v", dir, err)
			}
		}
	}()

	return ready, nil
}
