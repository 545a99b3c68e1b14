package controller

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// session owns the write half of a relay connection. Frames are queued and
// written by one goroutine; when the queue is full new frames are dropped.
type session struct {
	conn   *websocket.Conn
	send   chan any
	done   chan struct{}
	logger *slog.Logger

	stopOnce sync.Once
	stopped  chan struct{}
}

func newSession(conn *websocket.Conn, buffer int, logger *slog.Logger) *session {
	return &session{
		conn:    conn,
		send:    make(chan any, buffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  logger,
	}
}

func (s *session) enqueue(frame any) {
	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.send <- frame:
	default:
		s.logger.Warn("send queue full, dropping frame")
	}
}

func (s *session) writeLoop() {
	defer close(s.stopped)

	for {
		select {
		case <-s.done:
			return
		case frame := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(frame); err != nil {
				s.logger.Debug("failed to write frame", "error", err)
				return
			}
		}
	}
}

func (s *session) close() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	<-s.stopped
}
