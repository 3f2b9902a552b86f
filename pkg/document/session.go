package document

import "sync"

// Submission is the document request stored by documentSubmit.
type Submission struct {
	Query    string `json:"query"`
	Template string `json:"template"`
	DocType  string `json:"docType"`
	RowBegin int    `json:"rowBegin"`
	RowEnd   int    `json:"rowEnd"`
}

// SessionStore holds one Submission per session. A later submit replaces
// the earlier one; entries live as long as the process.
type SessionStore struct {
	mu    sync.RWMutex
	slots map[string]Submission
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{slots: make(map[string]Submission)}
}

// Put stores sub for sessionID.
func (s *SessionStore) Put(sessionID string, sub Submission) {
	s.mu.Lock()
	s.slots[sessionID] = sub
	s.mu.Unlock()
}

// Get returns the submission for sessionID.
func (s *SessionStore) Get(sessionID string) (Submission, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.slots[sessionID]
	return sub, ok
}

// Len returns the number of sessions holding a submission.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}
