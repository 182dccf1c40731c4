package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sambeau/flume/pkg/flume/flume"
	"github.com/sambeau/flume/pkg/flume/table"
)

// debounce is how long rapid changes are allowed to settle.
const debounce = 100 * time.Millisecond

// watchScript runs the script, then runs it again each time it changes,
// until ctx is done. Failures are printed and watching continues.
func watchScript(ctx context.Context, rt *flume.Runtime, path string, args []table.Value, quiet bool, stderr io.Writer, errColor bool) error {
	runOnce := func() {
		execFile(ctx, rt, path, args, quiet, stderr, errColor)
	}
	runOnce()
	fmt.Fprintf(stderr, "watching %s (Ctrl+C to stop)\n", path)
	return watchFile(ctx, path, stderr, func() {
		fmt.Fprintf(stderr, "\n%s changed, running\n", path)
		runOnce()
	})
}

// watchFile calls onChange whenever path is written or replaced. The
// directory is watched rather than the file so editors that save by
// renaming are noticed.
func watchFile(ctx context.Context, path string, stderr io.Writer, onChange func()) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", path, err)
	}

	var lastChange time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if time.Since(lastChange) < debounce {
				continue
			}
			lastChange = time.Now()
			onChange()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(stderr, "watcher error: %v\n", err)
		}
	}
}
