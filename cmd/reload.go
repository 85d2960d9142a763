package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloradar/cloradar/pkg/log"
	"github.com/fsnotify/fsnotify"
)

// watchConfig calls reload whenever configPath changes on disk or the
// process receives SIGHUP, until ctx is done. Editors often replace the
// file (rename/remove), in which case it is watched again.
func watchConfig(ctx context.Context, configPath string, reload func() error) {
	logger := log.ForService("config")

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var events <-chan fsnotify.Event
	var errs <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warnf("failed to create config file watcher: %v", err)
	} else {
		defer func() {
			if err := watcher.Close(); err != nil {
				logger.Warnf("failed to close config file watcher: %v", err)
			}
		}()
		if err := watcher.Add(configPath); err != nil {
			logger.Warnf("failed to watch config file %s: %v", configPath, err)
		} else {
			logger.Infof("watching config file for changes: %s", configPath)
		}
		events, errs = watcher.Events, watcher.Errors
	}

	doReload := func(reason string) {
		logger.Infof("%s, reloading configuration", reason)
		if err := reload(); err != nil {
			logger.Errorf("failed to reload configuration: %v", err)
			return
		}
		logger.Infof("configuration reloaded")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			doReload("received SIGHUP")
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}

			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				time.Sleep(200 * time.Millisecond)
				if _, err := os.Stat(configPath); os.IsNotExist(err) {
					logger.Warnf("config file was removed and not replaced, skipping reload")
					continue
				}
				if err := watcher.Add(configPath); err != nil {
					logger.Warnf("failed to re-add config file to watcher: %v", err)
				}
			} else {
				// Let the write complete.
				time.Sleep(100 * time.Millisecond)
			}
			doReload("config file changed (" + event.Op.String() + ")")
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warnf("config file watcher error: %v", err)
		}
	}
}
