package goble

import (
	"strings"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
)

// Pool hands out one Session per peripheral address, so a slow or unreachable
// device only delays its own exchanges.
type Pool struct {
	logger *logrus.Logger

	mu       sync.Mutex // serializes creation
	sessions *hashmap.Map[string, *Session]
}

// NewPool creates an empty Pool whose sessions log through logger.
func NewPool(logger *logrus.Logger) *Pool {
	if logger == nil {
		logger = logrus.New()
	}
	return &Pool{
		logger:   logger,
		sessions: hashmap.New[string, *Session](),
	}
}

// Session returns the Session for address, creating it on first use.
// Addresses are compared case-insensitively.
func (p *Pool) Session(address string) *Session {
	key := strings.ToUpper(address)
	if s, ok := p.sessions.Get(key); ok {
		return s
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions.Get(key); ok {
		return s
	}
	s := NewSession(p.logger)
	p.sessions.Set(key, s)
	return s
}

// Len returns the number of sessions created so far.
func (p *Pool) Len() int {
	return p.sessions.Len()
}
