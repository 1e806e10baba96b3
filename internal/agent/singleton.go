package agent

import (
	"sync"

	"github.com/perfmaster/agent/internal/config"
)

var (
	defaultMu    sync.Mutex
	defaultAgent *Agent
)

// Init creates and starts the process-wide Agent. When one already exists
// it is returned unchanged and cfg is ignored.
func Init(cfg config.Config, opts ...Option) (*Agent, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultAgent != nil {
		return defaultAgent, nil
	}
	a, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	a.Start()
	defaultAgent = a
	return a, nil
}

// Current returns the process-wide Agent, or nil before Init.
func Current() *Agent {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultAgent
}

// TrackEvent forwards to the process-wide Agent. Without one it does nothing.
func TrackEvent(name string, data any) {
	if a := Current(); a != nil {
		a.TrackEvent(name, data)
	}
}

// TrackError forwards to the process-wide Agent. Without one it does nothing.
func TrackError(err error) {
	if a := Current(); a != nil {
		a.TrackError(err)
	}
}

// Destroy stops the process-wide Agent and forgets it so a later Init builds
// a fresh one.
func Destroy() {
	defaultMu.Lock()
	a := defaultAgent
	defaultAgent = nil
	defaultMu.Unlock()

	if a != nil {
		a.Stop()
	}
}
