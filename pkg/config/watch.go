package config

import (
	"github.com/fsnotify/fsnotify"

	"github.com/zuristack/roster/pkg/observability"
)

// Watch re-reads the config file whenever it changes and applies the new log
// level to the logger. Other settings require a restart. The returned stop
// function releases the watcher.
//
// Editors and k8s configmap mounts replace files rather than writing in
// place, so renames and creates count as changes too.
func Watch(path string, logger *observability.Logger) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if event.Op&fsnotify.Rename != 0 {
					// Re-arm on the new inode; ignore failure, the next
					// create event will retry.
					watcher.Add(path)
				}

				cfg, err := LoadFile(path)
				if err != nil {
					logger.WithError(err).Warn("config file changed but failed to reload; keeping previous settings")
					continue
				}

				if cfg.Observability.LogLevel != logger.Level() {
					logger.Infof("log level changed to %s", cfg.Observability.LogLevel)
					logger.SetLevel(cfg.Observability.LogLevel)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("config watcher error")
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
