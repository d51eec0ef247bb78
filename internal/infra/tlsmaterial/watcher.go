package tlsmaterial

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch observes the certificate and key files and reloads the key
// pair when they change. Directories are watched rather than the files
// themselves so rename-style rotation (write temp, rename over) is
// caught. Blocks until Stop is called.
func (l *Loader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tlsmaterial: create watcher: %w", err)
	}
	defer watcher.Close()

	certDir := filepath.Dir(l.certFile)
	keyDir := filepath.Dir(l.keyFile)
	if err := watcher.Add(certDir); err != nil {
		return fmt.Errorf("tlsmaterial: watch %s: %w", certDir, err)
	}
	if keyDir != certDir {
		if err := watcher.Add(keyDir); err != nil {
			return fmt.Errorf("tlsmaterial: watch %s: %w", keyDir, err)
		}
	}

	l.logger.Info("tls certificate watcher started",
		"cert_file", l.certFile, "key_file", l.keyFile)

	certBase := filepath.Base(l.certFile)
	keyBase := filepath.Base(l.keyFile)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			base := filepath.Base(event.Name)
			if base != certBase && base != keyBase {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := l.debouncedReload(); err != nil {
				l.logger.Error("tls certificate reload failed",
					"error", err, "file", event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Error("tls certificate watcher error", "error", err)

		case <-l.done:
			return nil
		}
	}
}

// WatchAsync runs Watch in a goroutine.
func (l *Loader) WatchAsync() {
	go func() {
		if err := l.Watch(); err != nil {
			l.logger.Error("tls certificate watcher stopped", "error", err)
		}
	}()
}

// Stop terminates watching.
func (l *Loader) Stop() {
	close(l.done)
}
