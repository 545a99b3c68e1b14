package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const frameWriteWait = 5 * time.Second

// WSFrame carries player messages over a websocket to a page hosting the
// embedded player.
type WSFrame struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func NewWSFrame(conn *websocket.Conn) *WSFrame {
	return &WSFrame{conn: conn}
}

func DialWSFrame(ctx context.Context, url string) (*WSFrame, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial player bridge: %w", err)
	}

	return NewWSFrame(conn), nil
}

func (f *WSFrame) Post(msg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.conn.SetWriteDeadline(time.Now().Add(frameWriteWait))
	if err := f.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to post player message: %w", err)
	}

	return nil
}

func (f *WSFrame) Receive() ([]byte, error) {
	_, data, err := f.conn.ReadMessage()
	return data, err
}

func (f *WSFrame) Close() error {
	f.mu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = f.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(frameWriteWait))
	f.mu.Unlock()

	return f.conn.Close()
}
