package ws

import (
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Connection represents a single WebSocket client connection with its
// associated metadata and a write mutex for serializing outbound frames.
// UserID and UserName are empty until the identify handshake completes.
type Connection struct {
	ID         string     // session ID (UUID)
	UserID     string     // bound user, set by identify
	UserName   string     // display name for typing signals
	Conn       net.Conn   // underlying TCP connection
	Fd         int        // file descriptor for epoll lookups
	CreatedAt  time.Time  // when the connection was established
	LastPing   time.Time  // last heartbeat received from the client
	writeMu    sync.Mutex // serializes writes to this connection
	processing int32      // atomic flag: 0 = idle, 1 = being read by handleConn
}

// WriteMessage sends a WebSocket text frame to this connection. The write
// mutex ensures that concurrent goroutines do not interleave frame bytes.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// Close closes the underlying network connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// ConnectionManager is a thread-safe registry that maps session IDs, file
// descriptors, and user IDs to their respective Connection objects. It
// supports O(1) lookups by session ID and fd, and per-user fan-out for
// notification delivery.
type ConnectionManager struct {
	mu     sync.RWMutex
	byID   map[string]*Connection            // session_id -> Connection
	byFd   map[int]*Connection               // fd -> Connection
	byUser map[string]map[string]*Connection // user_id -> session_id -> Connection
}

// NewConnectionManager creates an empty ConnectionManager ready for use.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		byID:   make(map[string]*Connection),
		byFd:   make(map[int]*Connection),
		byUser: make(map[string]map[string]*Connection),
	}
}

// Add registers a new connection in both the ID and fd lookup maps.
func (cm *ConnectionManager) Add(conn *Connection) {
	cm.mu.Lock()
	cm.byID[conn.ID] = conn
	cm.byFd[conn.Fd] = conn
	cm.mu.Unlock()
}

// BindUser records the identify handshake result, indexing the connection by
// its user ID. Re-identifying with a different user moves the index entry.
func (cm *ConnectionManager) BindUser(conn *Connection, userID, userName string) {
	cm.mu.Lock()
	if conn.UserID != "" && conn.UserID != userID {
		if set, ok := cm.byUser[conn.UserID]; ok {
			delete(set, conn.ID)
			if len(set) == 0 {
				delete(cm.byUser, conn.UserID)
			}
		}
	}
	conn.UserID = userID
	conn.UserName = userName
	set, ok := cm.byUser[userID]
	if !ok {
		set = make(map[string]*Connection)
		cm.byUser[userID] = set
	}
	set[conn.ID] = conn
	cm.mu.Unlock()
}

// Remove removes a connection by session ID, closes the underlying network
// connection, and removes it from all lookup maps. Returns true if the
// connection was found and removed, false if it was already gone.
func (cm *ConnectionManager) Remove(id string) bool {
	cm.mu.Lock()
	conn, ok := cm.byID[id]
	if ok {
		delete(cm.byID, id)
		delete(cm.byFd, conn.Fd)
		if conn.UserID != "" {
			if set, uok := cm.byUser[conn.UserID]; uok {
				delete(set, id)
				if len(set) == 0 {
					delete(cm.byUser, conn.UserID)
				}
			}
		}
	}
	cm.mu.Unlock()

	if ok {
		conn.Close()
	}
	return ok
}

// Get returns the connection for the given session ID, or nil if not found.
func (cm *ConnectionManager) Get(id string) *Connection {
	cm.mu.RLock()
	conn := cm.byID[id]
	cm.mu.RUnlock()
	return conn
}

// GetByFd returns the connection for the given file descriptor, or nil if
// not found.
func (cm *ConnectionManager) GetByFd(fd int) *Connection {
	cm.mu.RLock()
	conn := cm.byFd[fd]
	cm.mu.RUnlock()
	return conn
}

// GetByConn returns the connection for the given net.Conn by extracting
// its file descriptor. Returns nil if not found.
func (cm *ConnectionManager) GetByConn(c net.Conn) *Connection {
	fd := socketFD(c)
	return cm.GetByFd(fd)
}

// UserConnections returns a snapshot of all connections bound to the given
// user on this instance. A user connected from two devices has two entries.
func (cm *ConnectionManager) UserConnections(userID string) []*Connection {
	cm.mu.RLock()
	set := cm.byUser[userID]
	conns := make([]*Connection, 0, len(set))
	for _, conn := range set {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()
	return conns
}

// Count returns the current number of active connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	n := len(cm.byID)
	cm.mu.RUnlock()
	return n
}

// SendToUser writes a message to every connection the user holds on this
// instance. Errors on individual connections are ignored — failed
// connections will be cleaned up by the epoll event loop when the next read
// fails.
func (cm *ConnectionManager) SendToUser(userID string, msg []byte) {
	for _, conn := range cm.UserConnections(userID) {
		_ = conn.WriteMessage(msg)
	}
}

// All returns a snapshot of all current connections. The returned slice is
// safe to iterate without holding the lock.
func (cm *ConnectionManager) All() []*Connection {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.byID))
	for _, conn := range cm.byID {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()
	return conns
}
