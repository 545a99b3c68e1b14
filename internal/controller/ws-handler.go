package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sharetube/watchparty/internal/channel"
	"github.com/sharetube/watchparty/internal/channel/wsclient"
	"github.com/sharetube/watchparty/internal/service/party"
	"github.com/sharetube/watchparty/pkg/ctxlogger"
	"github.com/sharetube/watchparty/pkg/rest"
	"github.com/sharetube/watchparty/pkg/validator"
	"github.com/sharetube/watchparty/pkg/wsrouter"
)

var ErrEmptyEvent = errors.New("event is required")

// relayRoom upgrades to a websocket and forwards frames between the member
// and the room topic. Payloads are never interpreted.
func (c controller) relayRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room-id")
	if !validator.IsRoomID(roomID) {
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"error": "invalid room id"})
		return
	}
	memberKey := r.URL.Query().Get("member-key")
	sessionID := uuid.NewString()

	ctx := r.Context()
	ctx = ctxlogger.AppendCtx(ctx, slog.String("room_id", roomID))
	ctx = ctxlogger.AppendCtx(ctx, slog.String("session_id", sessionID))

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.InfoContext(ctx, "failed to upgrade connection", "error", err)
		return
	}
	defer conn.Close()

	sess := newSession(conn, c.sendBuffer, c.logger.With("room_id", roomID, "session_id", sessionID))

	joinRoomResp, err := c.partyService.JoinRoom(ctx, &party.JoinRoomParams{
		RoomID:    roomID,
		SessionID: sessionID,
		Conn:      conn,
		Handler: channel.Handler{
			OnMessage: func(event string, payload json.RawMessage) {
				sess.enqueue(&wsclient.Output{
					Type:    wsclient.FrameBroadcast,
					Payload: wsclient.BroadcastPayload{Event: event, Payload: payload},
				})
			},
			OnPresenceSync: func(presence channel.Presence) {
				c.metrics.IncPresenceSyncs()
				sess.enqueue(&wsclient.Output{
					Type:    wsclient.FramePresenceSync,
					Payload: wsclient.PresenceSyncPayload{Presence: presence},
				})
			},
		},
	})
	if err != nil {
		c.logger.WarnContext(ctx, "failed to join room", "error", err)
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteJSON(&wsclient.Output{Type: wsclient.FrameError, Payload: wsclient.ErrorPayload{Message: err.Error()}})
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "join failed"))
		return
	}
	sub := joinRoomResp.Subscription
	c.refreshConnections()

	defer func() {
		if err := c.partyService.LeaveRoom(ctx, &party.LeaveRoomParams{
			SessionID:    sessionID,
			Subscription: sub,
		}); err != nil {
			c.logger.WarnContext(ctx, "failed to leave room", "error", err)
		}
		sess.close()
		c.refreshConnections()
		c.logger.InfoContext(ctx, "member disconnected")
	}()

	// JOINED goes out before the writer starts so it is always the first frame.
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(&wsclient.Output{
		Type:    wsclient.FrameJoined,
		Payload: wsclient.JoinedPayload{Ref: sub.Ref()},
	}); err != nil {
		c.logger.InfoContext(ctx, "failed to write joined frame", "error", err)
		return
	}
	go sess.writeLoop()

	c.logger.InfoContext(ctx, "member connected", "member_key", memberKey, "ref", sub.Ref())

	router := wsrouter.New()
	router.Use(c.wsRequestIdWSMw(), c.loggerWSMw())
	router.OnError(func(ctx context.Context, err error) {
		c.logger.InfoContext(ctx, "websocket message failed", "error", err)
		sess.enqueue(&wsclient.Output{Type: wsclient.FrameError, Payload: wsclient.ErrorPayload{Message: err.Error()}})
	})

	wsrouter.Handle(router, wsclient.FrameBroadcast, func(ctx context.Context, input wsclient.BroadcastPayload) error {
		if input.Event == "" {
			return ErrEmptyEvent
		}
		c.metrics.IncRelayedFrames(input.Event)
		if err := sub.Send(ctx, input.Event, input.Payload); err != nil {
			return fmt.Errorf("failed to broadcast: %w", err)
		}

		return nil
	})
	wsrouter.Handle(router, wsclient.FrameTrack, func(ctx context.Context, input wsclient.TrackPayload) error {
		if input.MemberKey == "" {
			input.MemberKey = memberKey
		}
		if err := sub.Track(ctx, input); err != nil {
			return fmt.Errorf("failed to track presence: %w", err)
		}

		return nil
	})

	if err := router.ServeConn(ctx, conn); err != nil &&
		!websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.InfoContext(ctx, "connection closed", "error", err)
	}
}
