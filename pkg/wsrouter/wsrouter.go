package wsrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownMessageType = errors.New("unknown message type")

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Reader is the read half of a websocket connection.
type Reader interface {
	ReadJSON(v any) error
}

type HandlerFunc[T any] func(ctx context.Context, payload T) error

type Middleware func(next HandlerFunc[any]) HandlerFunc[any]

type ErrorHandler func(ctx context.Context, err error)

type route struct {
	decode  func(json.RawMessage) (any, error)
	handler HandlerFunc[any]
}

type WSRouter struct {
	routes       map[string]route
	middlewares  []Middleware
	errorHandler ErrorHandler
}

func New() *WSRouter {
	return &WSRouter{
		routes:       make(map[string]route),
		errorHandler: func(context.Context, error) {},
	}
}

func (r *WSRouter) Use(mws ...Middleware) {
	r.middlewares = append(r.middlewares, mws...)
}

func (r *WSRouter) OnError(h ErrorHandler) {
	r.errorHandler = h
}

// Handle registers handler for messageType. The payload is decoded into T
// before the middleware chain runs.
func Handle[T any](r *WSRouter, messageType string, handler HandlerFunc[T]) {
	r.routes[messageType] = route{
		decode: func(raw json.RawMessage) (any, error) {
			var payload T
			if len(raw) == 0 {
				return payload, nil
			}
			if err := json.Unmarshal(raw, &payload); err != nil {
				return nil, err
			}

			return payload, nil
		},
		handler: func(ctx context.Context, payload any) error {
			return handler(ctx, payload.(T))
		},
	}
}

// ServeConn reads messages until the connection fails or ctx is done.
// Handler errors are passed to the error handler and do not stop the loop.
func (r *WSRouter) ServeConn(ctx context.Context, conn Reader) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}

		msgCtx := context.WithValue(ctx, messageTypeKey, msg.Type)

		rt, ok := r.routes[msg.Type]
		if !ok {
			r.errorHandler(msgCtx, fmt.Errorf("%w: %q", ErrUnknownMessageType, msg.Type))
			continue
		}

		payload, err := rt.decode(msg.Payload)
		if err != nil {
			r.errorHandler(msgCtx, fmt.Errorf("failed to decode payload: %w", err))
			continue
		}

		h := rt.handler
		for i := len(r.middlewares) - 1; i >= 0; i-- {
			h = r.middlewares[i](h)
		}

		if err := h(msgCtx, payload); err != nil {
			r.errorHandler(msgCtx, err)
		}
	}
}
