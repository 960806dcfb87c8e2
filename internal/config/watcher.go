package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watch reloads the config file on change and invokes onReload with the new
// configuration. Intended to run as a background task; returns when the
// context is canceled. Reload failures keep the previous configuration.
func Watch(ctx context.Context, path string, onReload func(*Config)) error {
	if path == "" {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory too, to catch atomic writes (rename operations).
	if err := watcher.Add(path); err != nil {
		log.WithError(err).WithField("path", path).Warn("cannot watch config file")
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	log.WithField("path", path).Info("config watcher started")

	var debounce *time.Timer
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != path || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, func() {
				cfg, err := Load(path)
				if err != nil {
					log.WithError(err).Warn("config reload failed; keeping previous configuration")
					return
				}
				log.Info("configuration reloaded")
				onReload(cfg)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("config watcher error")
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil
		}
	}
}
