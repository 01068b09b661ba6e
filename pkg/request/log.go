// pkg/request/log.go

package request

import "sync"

// Log is the append-only in-memory record of access requests. Reads hand
// out copies to defeat aliasing; the workflow engine mutates the request
// it owns, not what the log returned.
type Log struct {
	mu      sync.Mutex
	entries []*Request
}

// NewLog returns an empty request log.
func NewLog() *Log {
	return &Log{}
}

// Append records a request.
func (l *Log) Append(r *Request) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, r)
}

// All returns a snapshot copy of every request.
func (l *Log) All() []*Request {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Request, 0, len(l.entries))
	for _, r := range l.entries {
		out = append(out, r.Copy())
	}
	return out
}

// Get returns a copy of the request with the given id, or nil.
func (l *Log) Get(id string) *Request {
	if r := l.lookup(id); r != nil {
		return r.Copy()
	}
	return nil
}

// FilterBySecret returns copies of every request whose secret set contains
// the given uuid.
func (l *Log) FilterBySecret(secretUUID string) []*Request {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*Request
	for _, r := range l.entries {
		for _, id := range r.SecretUUIDs {
			if id == secretUUID {
				out = append(out, r.Copy())
				break
			}
		}
	}
	return out
}

// lookup returns the live entry so the owning engine can mutate status.
func (l *Log) lookup(id string) *Request {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.entries {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// Live returns the live entry for id. Reserved for the component that owns
// the request during processing.
func (l *Log) Live(id string) *Request {
	return l.lookup(id)
}
