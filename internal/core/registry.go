package core

import "errors"

var (
	errAlreadyBound = errors.New("connection already bound")
	errUnbound      = errors.New("connection not bound")
)

// Registry maps connections to identity names and back.
// It is not safe for concurrent use; the hub guards it.
type Registry struct {
	byClient map[*Client]string
	byName   map[string]map[*Client]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byClient: make(map[*Client]string),
		byName:   make(map[string]map[*Client]struct{}),
	}
}

// Bind associates c with name. A connection binds at most once.
func (r *Registry) Bind(c *Client, name string) error {
	if _, ok := r.byClient[c]; ok {
		return errAlreadyBound
	}
	r.byClient[c] = name
	conns, ok := r.byName[name]
	if !ok {
		conns = make(map[*Client]struct{})
		r.byName[name] = conns
	}
	conns[c] = struct{}{}
	return nil
}

// IdentityOf returns the name bound to c.
func (r *Registry) IdentityOf(c *Client) (string, bool) {
	name, ok := r.byClient[c]
	return name, ok
}

// ConnectionsOf returns every connection bound to name.
func (r *Registry) ConnectionsOf(name string) []*Client {
	conns := r.byName[name]
	out := make([]*Client, 0, len(conns))
	for c := range conns {
		out = append(out, c)
	}
	return out
}

// Clients returns every bound connection.
func (r *Registry) Clients() []*Client {
	out := make([]*Client, 0, len(r.byClient))
	for c := range r.byClient {
		out = append(out, c)
	}
	return out
}

// Len reports the number of bound connections.
func (r *Registry) Len() int {
	return len(r.byClient)
}

// Unbind removes c. It returns errUnbound when c was not bound.
func (r *Registry) Unbind(c *Client) error {
	name, ok := r.byClient[c]
	if !ok {
		return errUnbound
	}
	delete(r.byClient, c)
	conns := r.byName[name]
	delete(conns, c)
	if len(conns) == 0 {
		delete(r.byName, name)
	}
	return nil
}
