package party

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharetube/watchparty/internal/channel"
	"github.com/sharetube/watchparty/internal/repository/connection"
)

// JoinRoom registers a relay session and subscribes it to the room topic.
func (s service) JoinRoom(ctx context.Context, params *JoinRoomParams) (JoinRoomResponse, error) {
	if err := s.connRepo.AddIfBelow(params.SessionID, params.RoomID, params.Conn, s.membersLimit); err != nil {
		if errors.Is(err, connection.ErrLimitReached) {
			return JoinRoomResponse{}, ErrRoomFull
		}
		return JoinRoomResponse{}, fmt.Errorf("failed to add connection: %w", err)
	}

	sub, err := s.broadcaster.Subscribe(ctx, params.RoomID, params.Handler)
	if err != nil {
		_ = s.connRepo.Remove(params.SessionID)
		return JoinRoomResponse{}, fmt.Errorf("failed to subscribe: %w", err)
	}

	return JoinRoomResponse{Subscription: sub}, nil
}

func (s service) LeaveRoom(ctx context.Context, params *LeaveRoomParams) error {
	var errs []error
	if params.Subscription != nil {
		if err := params.Subscription.Unsubscribe(); err != nil && !errors.Is(err, channel.ErrClosed) {
			errs = append(errs, fmt.Errorf("failed to unsubscribe: %w", err))
		}
	}
	if err := s.connRepo.Remove(params.SessionID); err != nil {
		errs = append(errs, fmt.Errorf("failed to remove connection: %w", err))
	}

	return errors.Join(errs...)
}

func (s service) ConnectionCount() int {
	return s.connRepo.Count()
}

// DisconnectAll closes every relay session with a going-away frame.
func (s service) DisconnectAll(reason string) int {
	return s.connRepo.CloseAll(reason)
}
