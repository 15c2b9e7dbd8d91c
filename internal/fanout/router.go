package fanout

import (
	"encoding/json"
	"sync"

	"gupshup/internal/models"
	"gupshup/internal/registry"
	"gupshup/pkg/logger"
)

// Router turns a fan-out event into deliveries to every target member
// that currently holds a live connection. Dispatch is fire-and-forget:
// an endpoint that went away between resolution and send is skipped,
// never surfaced to the caller.
type Router struct {
	registry *registry.Registry

	// Serializes dispatches so that every endpoint observes events in
	// router arrival order. Resolution happens inside the critical
	// section; two dispatches are never interleaved per endpoint.
	mu sync.Mutex
}

func NewRouter(reg *registry.Registry) *Router {
	return &Router{registry: reg}
}

// Dispatch delivers the event to the live endpoints of event.Targets.
func (r *Router) Dispatch(event models.FanoutEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frame, err := json.Marshal(models.Frame{Event: event.Kind, Data: event.Payload})
	if err != nil {
		logger.Error("Error marshaling %s event: %v", event.Kind, err)
		return
	}
	r.deliver(r.registry.Resolve(event.Targets), event.Kind, frame)
}

// Broadcast delivers the event to every registered connection, regardless
// of event.Targets. Used for presence changes on disconnect, where all
// online users are informed.
func (r *Router) Broadcast(event models.FanoutEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frame, err := json.Marshal(models.Frame{Event: event.Kind, Data: event.Payload})
	if err != nil {
		logger.Error("Error marshaling %s event: %v", event.Kind, err)
		return
	}
	r.deliver(r.registry.All(), event.Kind, frame)
}

func (r *Router) deliver(endpoints []registry.Endpoint, kind models.EventKind, frame []byte) {
	for _, ep := range endpoints {
		if err := ep.Deliver(frame); err != nil {
			// Endpoint closed or backed up. Delivery to the rest
			// continues.
			logger.Debug("Dropping %s frame for unreachable endpoint: %v", kind, err)
		}
	}
}
