package web

import "sync"

// flashes holds one pending message per user, shown on the next page
// load and then discarded.
type flashes struct {
	mu       sync.Mutex
	messages map[string]string
}

func newFlashes() *flashes {
	return &flashes{messages: make(map[string]string)}
}

// set stores a message for a user session
func (f *flashes) set(userID, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[userID] = message
}

// pop retrieves and immediately deletes a message
func (f *flashes) pop(userID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	message, ok := f.messages[userID]
	if ok {
		delete(f.messages, userID)
	}
	return message
}
