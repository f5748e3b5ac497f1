package server

import (
	"sync"
)

// Manager 管理所有连接
// 按 session_id 索引全部连接，按房间码维护二级索引供广播用
type Manager struct {
	connections map[string]*Connection
	roomConns   map[string]map[string]*Connection // roomCode -> sessionID -> Connection
	mu          sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		connections: make(map[string]*Connection),
		roomConns:   make(map[string]map[string]*Connection),
	}
}

func (m *Manager) Add(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[conn.SessionID()] = conn
}

func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[sessionID]
	if !ok {
		return
	}
	delete(m.connections, sessionID)

	if code := conn.RoomCode(); code != "" {
		if conns, ok := m.roomConns[code]; ok {
			delete(conns, sessionID)
			if len(conns) == 0 {
				delete(m.roomConns, code)
			}
		}
	}
}

func (m *Manager) Get(sessionID string) *Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connections[sessionID]
}

// BindRoom 把连接挂到房间的广播索引上
func (m *Manager) BindRoom(sessionID, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[sessionID]
	if !ok {
		return
	}

	// 先从旧房间摘下
	if prev := conn.RoomCode(); prev != "" && prev != code {
		if conns, ok := m.roomConns[prev]; ok {
			delete(conns, sessionID)
			if len(conns) == 0 {
				delete(m.roomConns, prev)
			}
		}
	}

	conn.BindRoom(code)
	if _, ok := m.roomConns[code]; !ok {
		m.roomConns[code] = make(map[string]*Connection)
	}
	m.roomConns[code][sessionID] = conn
}

// UnbindRoom 把连接从房间的广播索引上摘下
func (m *Manager) UnbindRoom(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[sessionID]
	if !ok {
		return
	}
	if code := conn.RoomCode(); code != "" {
		if conns, ok := m.roomConns[code]; ok {
			delete(conns, sessionID)
			if len(conns) == 0 {
				delete(m.roomConns, code)
			}
		}
	}
	conn.ClearRoom()
}

// GetByRoom 返回房间内所有连接的快照
func (m *Manager) GetByRoom(code string) []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns, ok := m.roomConns[code]
	if !ok {
		return nil
	}
	out := make([]*Connection, 0, len(conns))
	for _, conn := range conns {
		out = append(out, conn)
	}
	return out
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// CloseAll 关闭所有连接（停机用）
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, conn := range m.connections {
		conn.Close()
	}
}
