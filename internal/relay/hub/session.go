package hub

import (
	"sync"
	"time"
)

// Role is what a connection is doing in a listening session.
type Role int

const (
	RoleNone Role = iota
	RoleHost
	RoleListener
)

// ClientSession is the per-connection state the relay tracks: optional
// authenticated identity plus the session the connection is attached
// to, if any.
type ClientSession struct {
	ID            string
	UserID        string
	Username      string
	DisplayName   string
	Authenticated bool
	Role          Role
	HostID        string
	CreatedAt     time.Time
	LastActiveAt  time.Time
	mu            sync.RWMutex
}

func NewClientSession(id string) *ClientSession {
	now := time.Now()
	return &ClientSession{
		ID:           id,
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

func (s *ClientSession) Authenticate(userID, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UserID = userID
	s.Username = username
	s.Authenticated = true
	s.LastActiveAt = time.Now()
}

func (s *ClientSession) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Authenticated
}

// AttachHost marks this connection as the broadcasting side of hostID.
func (s *ClientSession) AttachHost(hostID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Role = RoleHost
	s.HostID = hostID
	s.LastActiveAt = time.Now()
}

// AttachListener marks this connection as tuned in to hostID.
func (s *ClientSession) AttachListener(hostID, displayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Role = RoleListener
	s.HostID = hostID
	s.DisplayName = displayName
	s.LastActiveAt = time.Now()
}

// Detach clears the session attachment, keeping identity.
func (s *ClientSession) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Role = RoleNone
	s.HostID = ""
	s.LastActiveAt = time.Now()
}

// Attachment returns the role and session this connection is in.
func (s *ClientSession) Attachment() (Role, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Role, s.HostID
}

// Label returns the name this connection should be known by in chat:
// the authenticated username when present, otherwise the display name
// given on join.
func (s *ClientSession) Label() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Username != "" {
		return s.Username
	}
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return "guest"
}

func (s *ClientSession) GetUserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.UserID
}

func (s *ClientSession) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()
}
