package plan

import (
	"sync"

	"marketpulse/internal/platform/logger"

	"github.com/fsnotify/fsnotify"
)

// Loader reads the plan file and watches it for edits. A broken edit is
// logged and ignored; the scheduler keeps running the last good plan.
type Loader struct {
	path string
	log  logger.Logger

	mu       sync.RWMutex
	current  Plan
	onChange []func(Plan)
}

// NewLoader performs the initial load; a plan that does not parse at startup
// is a hard error, unlike later edits
func NewLoader(path string, log logger.Logger) (*Loader, error) {
	l := &Loader{path: path, log: log.With().Str("component", "plan").Logger()}
	p, err := Load(path)
	if err != nil {
		return nil, err
	}
	l.current = p
	return l, nil
}

// Current returns the latest good plan
func (l *Loader) Current() Plan {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked whenever the plan reloads
func (l *Loader) OnChange(fn func(Plan)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts a background goroutine that hot-reloads the plan on file
// changes. Call the returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					l.reload()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.log.Warn().Err(err).Msg("plan watcher error")
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }, nil
}

func (l *Loader) reload() {
	p, err := Load(l.path)
	if err != nil {
		l.log.Error().Err(err).Str("path", l.path).Msg("plan edit rejected, keeping previous plan")
		return
	}

	l.mu.Lock()
	l.current = p
	callbacks := make([]func(Plan), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()

	l.log.Info().Int("jobs", len(p.Jobs)).Msg("plan reloaded")
	for _, fn := range callbacks {
		fn(p)
	}
}
