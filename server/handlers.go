package server

import "github.com/onnwee/simonsays/command"

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	opts Options
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(opts Options) *Handlers {
	return &Handlers{opts: opts}
}

func (h *Handlers) store() command.ConfigStore {
	return h.opts.Registry.Store()
}
