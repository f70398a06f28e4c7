package mcp

import "sync"

// SessionRegistry maps workflow IDs to the MCP sessions watching them.
// A session watches a workflow while one of its stepflow.run calls is in flight.
type SessionRegistry struct {
	mu       sync.RWMutex
	watchers map[string]map[string]int // workflowID → sessionID → active calls
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{watchers: make(map[string]map[string]int)}
}

// Watch registers sessionID for workflowID events and returns the function
// that releases the registration. Watches are reference counted so
// concurrent runs from one session stay registered until the last finishes.
func (r *SessionRegistry) Watch(workflowID, sessionID string) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions, ok := r.watchers[workflowID]
	if !ok {
		sessions = make(map[string]int)
		r.watchers[workflowID] = sessions
	}
	sessions[sessionID]++

	var once sync.Once
	return func() {
		once.Do(func() { r.release(workflowID, sessionID) })
	}
}

func (r *SessionRegistry) release(workflowID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := r.watchers[workflowID]
	if sessions == nil {
		return
	}
	if sessions[sessionID]--; sessions[sessionID] <= 0 {
		delete(sessions, sessionID)
	}
	if len(sessions) == 0 {
		delete(r.watchers, workflowID)
	}
}

// SessionsFor returns the sessions currently watching workflowID.
func (r *SessionRegistry) SessionsFor(workflowID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.watchers[workflowID]))
	for sid := range r.watchers[workflowID] {
		out = append(out, sid)
	}
	return out
}

// Remove drops every watch held by sessionID.
// Called when a session disconnects.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for wf, sessions := range r.watchers {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(r.watchers, wf)
		}
	}
}
