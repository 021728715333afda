// Package watcher delivers file system change notifications for a set of
// root directories.
//
// fsnotify is used when the platform supports it; otherwise, or when
// registering watches fails (inotify limits, network mounts), the watcher
// falls back to polling. Raw notifications are debounced per path and
// delivered one Event at a time on a channel:
//
//	w, err := watcher.New(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	_ = w.AddPath("/home/me/notes")
//	if err := w.Start(ctx); err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	for ev := range w.Events() {
//	    switch ev.Type {
//	    case watcher.Created, watcher.Modified:
//	        // re-index ev.Path
//	    case watcher.Deleted:
//	        // drop ev.Path
//	    }
//	}
package watcher
