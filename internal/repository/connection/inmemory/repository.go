package inmemory

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/watchparty/internal/repository/connection"
)

type session struct {
	conn   *websocket.Conn
	roomID string
}

type repo struct {
	sessions map[string]session
	mu       sync.RWMutex
}

func NewRepo() *repo {
	return &repo{
		sessions: make(map[string]session),
	}
}

func (r *repo) Add(sessionID, roomID string, conn *websocket.Conn) error {
	return r.AddIfBelow(sessionID, roomID, conn, 0)
}

// AddIfBelow registers the session unless its room already holds limit
// sessions. A limit of 0 means no limit. The check and the insert happen
// under one lock.
func (r *repo) AddIfBelow(sessionID, roomID string, conn *websocket.Conn, limit int) error {
	funcName := "connection.inmemory.AddIfBelow"
	r.mu.Lock()
	defer r.mu.Unlock()

	slog.Debug(funcName, "session_id", sessionID, "room_id", roomID, "limit", limit)
	if _, ok := r.sessions[sessionID]; ok {
		slog.Info(funcName, "error", connection.ErrAlreadyExists)
		return connection.ErrAlreadyExists
	}

	if limit > 0 && r.countByRoomLocked(roomID) >= limit {
		slog.Info(funcName, "error", connection.ErrLimitReached)
		return connection.ErrLimitReached
	}

	r.sessions[sessionID] = session{conn: conn, roomID: roomID}

	return nil
}

func (r *repo) Remove(sessionID string) error {
	funcName := "connection.inmemory.Remove"
	r.mu.Lock()
	defer r.mu.Unlock()

	slog.Debug(funcName, "session_id", sessionID)
	if _, ok := r.sessions[sessionID]; !ok {
		slog.Info(funcName, "error", connection.ErrNotFound)
		return connection.ErrNotFound
	}

	delete(r.sessions, sessionID)

	return nil
}

func (r *repo) GetConn(sessionID string) (*websocket.Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, connection.ErrNotFound
	}

	return s.conn, nil
}

func (r *repo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

func (r *repo) CountByRoom(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.countByRoomLocked(roomID)
}

func (r *repo) countByRoomLocked(roomID string) int {
	n := 0
	for _, s := range r.sessions {
		if s.roomID == roomID {
			n++
		}
	}

	return n
}

// CloseAll sends a going-away close frame to every session and closes it.
// Sessions stay registered until their handlers remove them.
func (r *repo) CloseAll(reason string) int {
	funcName := "connection.inmemory.CloseAll"
	r.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.conn != nil {
			conns = append(conns, s.conn)
		}
	}
	r.mu.RUnlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
	for _, conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
	}

	slog.Debug(funcName, "closed", len(conns))

	return len(conns)
}
