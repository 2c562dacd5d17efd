package engine

import (
	"github.com/fsnotify/fsnotify"

	"github.com/flowmesh/workflow/engine/emit"
)

// Watcher keeps a Registry in sync with a directory of definition files,
// re-validating and re-registering on every create/write and leaving the
// previous registration live when the new document fails validation.
type Watcher struct {
	registry *Registry
	fsw      *fsnotify.Watcher
	emitter  emit.Emitter
	done     chan struct{}
}

// WatchDefinitions loads dir once via LoadDefinitionsDir, registering every
// definition that parses cleanly, then starts watching dir for subsequent
// changes. emitter may be nil, defaulting to emit.NewNullEmitter().
func WatchDefinitions(registry *Registry, dir string, emitter emit.Emitter) (*Watcher, error) {
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}

	defs, loadErrs := LoadDefinitionsDir(dir)
	for path, err := range loadErrs {
		emitter.Emit(emit.Event{Msg: "definition_reload_rejected", Meta: map[string]any{"path": path, "error": err.Error()}})
	}
	for _, def := range defs {
		if err := registry.Register(def); err != nil {
			emitter.Emit(emit.Event{Msg: "definition_reload_rejected", WorkflowID: def.ID, Meta: map[string]any{"error": err.Error()}})
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{registry: registry, fsw: fsw, emitter: emitter, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 || !isDefinitionFile(ev.Name) {
				continue
			}
			w.reload(ev.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.emitter.Emit(emit.Event{Msg: "definition_watch_error", Meta: map[string]any{"error": err.Error()}})
		}
	}
}

func (w *Watcher) reload(path string) {
	def, err := LoadDefinitionFile(path)
	if err != nil {
		w.emitter.Emit(emit.Event{Msg: "definition_reload_rejected", Meta: map[string]any{"path": path, "error": err.Error()}})
		return
	}
	if err := w.registry.Register(def); err != nil {
		w.emitter.Emit(emit.Event{Msg: "definition_reload_rejected", WorkflowID: def.ID, Meta: map[string]any{"path": path, "error": err.Error()}})
		return
	}
	w.emitter.Emit(emit.Event{Msg: "definition_reloaded", WorkflowID: def.ID, Meta: map[string]any{"path": path}})
}

// Close stops the watch loop and releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
