package catalog

import (
	"context"
	"log"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads path into c whenever the file is written. A failed reload
// keeps the previous table. Sessions already running keep the Source they
// resolved at open. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, c *Catalog) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}
	log.Printf("catalog: watching %s", path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			sources, err := Load(path)
			if err != nil {
				log.Printf("catalog: reload failed, keeping previous sources: %v", err)
				continue
			}
			c.Replace(sources)
			log.Printf("catalog: reloaded %d sources", len(sources))
			// Editors that save by rename replace the inode.
			_ = watcher.Add(path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("catalog: watcher error: %v", err)
		}
	}
}
