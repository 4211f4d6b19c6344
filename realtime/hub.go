package realtime

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Delivery topics clients may subscribe to. Anything else fails.
var KnownTopics = map[string]bool{
	"mining":       true,
	"dashboard":    true,
	"gamification": true,
	"competition":  true,
}

// textMessage mirrors the websocket text frame opcode, so the manager
// doesn't need the transport package.
const textMessage = 1

// Conn is the slice of a websocket connection the manager needs; fake
// implementations stand in for it in tests.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Session is one live realtime connection. In-memory only. Owned by the
// Manager; nothing else mutates it.
type Session struct {
	ID          string
	UserID      string
	ConnectedAt time.Time

	conn    Conn
	writeMu sync.Mutex // one frame at a time per socket

	// guarded by the manager's lock
	topics map[string]bool
	closed bool
}

func (s *Session) write(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(textMessage, data)
}

// Stats is the manager's observable state snapshot.
type Stats struct {
	TotalConnections int            `json:"total_connections"`
	TotalUsers       int            `json:"total_users"`
	TopicCounts      map[string]int `json:"topic_counts"`
}

// Manager is the single owner of live session state: the session table,
// per-topic membership and per-user membership. All index mutations are
// serialized behind one mutex; broadcast writes happen outside it so a
// slow socket never stalls the registry. Constructed once at startup
// and passed to whatever needs it — no package-level singleton.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	topics   map[string]map[string]*Session
	users    map[string]map[string]*Session
}

func NewManager() *Manager {
	m := &Manager{
		sessions: map[string]*Session{},
		topics:   map[string]map[string]*Session{},
		users:    map[string]map[string]*Session{},
	}
	for topic := range KnownTopics {
		m.topics[topic] = map[string]*Session{}
	}
	return m
}

// Connect registers a new session for the handshaken transport.
func (m *Manager) Connect(conn Conn, userID string) *Session {
	session := &Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		ConnectedAt: time.Now().UTC(),
		conn:        conn,
		topics:      map[string]bool{},
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	if userID != "" {
		if m.users[userID] == nil {
			m.users[userID] = map[string]*Session{}
		}
		m.users[userID][session.ID] = session
	}
	total := len(m.sessions)
	m.mu.Unlock()

	log.Printf("🔌 Session %s connected (user=%s). Total: %d", session.ID, userID, total)
	return session
}

// Disconnect removes the session from every index atomically with
// respect to other manager operations, then closes the transport.
// Idempotent: a second disconnect is a no-op.
func (m *Manager) Disconnect(session *Session) {
	m.mu.Lock()
	if session.closed {
		m.mu.Unlock()
		return
	}
	session.closed = true
	delete(m.sessions, session.ID)
	for topic := range session.topics {
		delete(m.topics[topic], session.ID)
	}
	if session.UserID != "" {
		delete(m.users[session.UserID], session.ID)
		if len(m.users[session.UserID]) == 0 {
			delete(m.users, session.UserID)
		}
	}
	total := len(m.sessions)
	m.mu.Unlock()

	session.conn.Close()
	log.Printf("🔌 Session %s disconnected. Total: %d", session.ID, total)
}

// Subscribe adds the session to a topic. Unknown topics fail.
func (m *Manager) Subscribe(session *Session, topic string) error {
	if !KnownTopics[topic] {
		return fmt.Errorf("unknown channel %q", topic)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if session.closed {
		return fmt.Errorf("session is closed")
	}
	session.topics[topic] = true
	m.topics[topic][session.ID] = session
	return nil
}

// Unsubscribe removes the session from a topic. Unknown topics fail;
// unsubscribing a topic the session never joined is a no-op.
func (m *Manager) Unsubscribe(session *Session, topic string) error {
	if !KnownTopics[topic] {
		return fmt.Errorf("unknown channel %q", topic)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(session.topics, topic)
	delete(m.topics[topic], session.ID)
	return nil
}

// Broadcast pushes a message to every session subscribed to the topic
// and returns the number delivered. Sessions whose write fails are
// treated as dead and disconnected as a side effect.
func (m *Manager) Broadcast(topic string, message []byte) int {
	m.mu.Lock()
	targets := make([]*Session, 0, len(m.topics[topic]))
	for _, session := range m.topics[topic] {
		targets = append(targets, session)
	}
	m.mu.Unlock()

	return m.deliver(targets, message)
}

// SendToUser pushes a message to the user's sessions subscribed to the
// topic and returns the number delivered.
func (m *Manager) SendToUser(userID, topic string, message []byte) int {
	m.mu.Lock()
	var targets []*Session
	for _, session := range m.users[userID] {
		if session.topics[topic] {
			targets = append(targets, session)
		}
	}
	m.mu.Unlock()

	return m.deliver(targets, message)
}

func (m *Manager) deliver(targets []*Session, message []byte) int {
	delivered := 0
	for _, session := range targets {
		if err := session.write(message); err != nil {
			log.Printf("⚠️  Write failed to session %s: %v — disconnecting", session.ID, err)
			m.Disconnect(session)
			continue
		}
		delivered++
	}
	return delivered
}

// Stats snapshots connection counts.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{
		TotalConnections: len(m.sessions),
		TotalUsers:       len(m.users),
		TopicCounts:      map[string]int{},
	}
	for topic, members := range m.topics {
		stats.TopicCounts[topic] = len(members)
	}
	return stats
}
