package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/watchparty/internal/repository/party"
	omitnilpointers "github.com/sharetube/watchparty/pkg/omit-nil-pointers"
)

type repo struct {
	rc             *redis.Client
	expireDuration time.Duration
}

func NewRepo(rc *redis.Client, expireDuration time.Duration) *repo {
	return &repo{
		rc:             rc,
		expireDuration: expireDuration,
	}
}

func (r repo) getPartyKey(roomID string) string {
	return "party:" + roomID
}

func (r repo) executePipe(ctx context.Context, pipe redis.Pipeliner) error {
	cmds, err := pipe.Exec(ctx)
	if err != nil {
		for _, cmd := range cmds {
			if err := cmd.Err(); err != nil {
				return err
			}
		}

		return err
	}

	return nil
}

// CreateParty claims the room id and stores the record. Claiming an id that
// is already stored fails with ErrRoomIDTaken.
func (r repo) CreateParty(ctx context.Context, params *party.CreatePartyParams) error {
	partyKey := r.getPartyKey(params.RoomID)

	claimed, err := r.rc.HSetNX(ctx, partyKey, "room_id", params.RoomID).Result()
	if err != nil {
		return fmt.Errorf("failed to claim room id: %w", err)
	}
	if !claimed {
		return party.ErrRoomIDTaken
	}

	pipe := r.rc.TxPipeline()
	pipe.HSet(ctx, partyKey, omitnilpointers.OmitNilPointers(map[string]any{
		"creator":        params.Creator,
		"content_id":     params.ContentID,
		"content_source": params.ContentSource,
		"title":          params.Title,
		"author_name":    params.AuthorName,
		"thumbnail_url":  params.ThumbnailURL,
		"created_at":     params.CreatedAt.UnixMilli(),
	}))
	pipe.Expire(ctx, partyKey, r.expireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		r.rc.Del(ctx, partyKey)
		return fmt.Errorf("failed to create party: %w", err)
	}

	return nil
}

// GetParty returns the record and extends its lifetime.
func (r repo) GetParty(ctx context.Context, roomID string) (party.Party, error) {
	partyKey := r.getPartyKey(roomID)

	cmd := r.rc.HGetAll(ctx, partyKey)
	if err := cmd.Err(); err != nil {
		return party.Party{}, fmt.Errorf("failed to get party: %w", err)
	}
	if len(cmd.Val()) == 0 {
		return party.Party{}, party.ErrPartyNotFound
	}

	var p party.Party
	if err := cmd.Scan(&p); err != nil {
		return party.Party{}, fmt.Errorf("failed to scan party: %w", err)
	}

	r.rc.Expire(ctx, partyKey, r.expireDuration)

	return p, nil
}

func (r repo) IsPartyExists(ctx context.Context, roomID string) (bool, error) {
	res, err := r.rc.Exists(ctx, r.getPartyKey(roomID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check if party exists: %w", err)
	}

	return res > 0, nil
}
