package resource

import (
	"context"
	"net/url"
)

// Handler is the type-erased surface of a Resource, used to dispatch
// requests by resource name.
type Handler interface {
	Name() string
	List(ctx context.Context, params url.Values) (ListResult, error)
	Retrieve(ctx context.Context, id string) (Payload, error)
	Create(ctx context.Context, payload Payload) (Payload, error)
	Update(ctx context.Context, id string, payload Payload) (Payload, error)
	Destroy(ctx context.Context, id string) error
}

var _ Handler = (*Resource[any])(nil)

// Registry indexes handlers by name.
type Registry struct {
	handlers map[string]Handler
	names    []string
}

func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[string]Handler, len(handlers))}
	for _, h := range handlers {
		r.Register(h)
	}
	return r
}

// Register adds h, replacing any handler with the same name.
func (r *Registry) Register(h Handler) {
	if _, exists := r.handlers[h.Name()]; !exists {
		r.names = append(r.names, h.Name())
	}
	r.handlers[h.Name()] = h
}

func (r *Registry) Get(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}
