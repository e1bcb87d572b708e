// Package shaderwatch reports when compiled shaders on disk change so the
// pipeline can be rebuilt without restarting.
package shaderwatch

import (
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
)

// Settle is how long a shader must go without further events before
// Changed reports it. Compilers write bytecode in several chunks.
const Settle = 150 * time.Millisecond

type Watcher struct {
	w      *fsnotify.Watcher
	log    *slog.Logger
	now    func() time.Time
	settle time.Duration

	dirty atomic.Bool
	last  atomic.Int64 // unix nanos of the latest relevant event
	done  chan struct{}
	exit  chan struct{}
}

func New(dir string, log *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create shader watcher")
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, errors.Wrapf(err, "watch %s", dir)
	}
	w := &Watcher{
		w:      fw,
		log:    log,
		now:    time.Now,
		settle: Settle,
		done:   make(chan struct{}),
		exit:   make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.exit)
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if Relevant(ev) {
				w.log.Debug("shader changed", "file", ev.Name, "op", ev.Op.String())
				w.touch()
			}
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			w.log.Warn("shader watcher", "err", err)
		}
	}
}

func (w *Watcher) touch() {
	w.last.Store(w.now().UnixNano())
	w.dirty.Store(true)
}

// Relevant reports whether ev touches SPIR-V bytecode.
func Relevant(ev fsnotify.Event) bool {
	if filepath.Ext(ev.Name) != ".spv" {
		return false
	}
	return ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

// Changed reports whether a shader changed since the last call and has
// been quiet for Settle since.
func (w *Watcher) Changed() bool {
	if !w.dirty.Load() {
		return false
	}
	if w.now().Sub(time.Unix(0, w.last.Load())) < w.settle {
		return false
	}
	return w.dirty.Swap(false)
}

func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	close(w.done)
	err := w.w.Close()
	<-w.exit
	return err
}
