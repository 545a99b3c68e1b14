package party

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharetube/watchparty/internal/player"
	"github.com/sharetube/watchparty/internal/repository/party"
	"github.com/sharetube/watchparty/pkg/ytvideodata"
)

func (s service) fetchVideo(ctx context.Context, params *CreatePartyParams, dst *party.CreatePartyParams) error {
	if params.ContentSource != player.SourceYouTube || s.videoData == nil {
		return nil
	}

	video, err := s.videoData.Get(ctx, params.ContentID)
	if err != nil {
		if errors.Is(err, ytvideodata.ErrVideoNotFound) {
			return ErrContentNotFound
		}
		s.logger.WarnContext(ctx, "failed to fetch video data", "content_id", params.ContentID, "error", err)
		return nil
	}

	dst.Title = &video.Title
	dst.AuthorName = &video.AuthorName
	dst.ThumbnailURL = &video.ThumbnailUrl

	return nil
}

// CreateParty stores the party record under the requested room id, or under
// a generated one when none is given.
func (s service) CreateParty(ctx context.Context, params *CreatePartyParams) (CreatePartyResponse, error) {
	createParams := party.CreatePartyParams{
		RoomID:        params.RoomID,
		Creator:       params.Creator,
		ContentID:     params.ContentID,
		ContentSource: params.ContentSource,
		CreatedAt:     s.clock.Now(),
	}

	if err := s.fetchVideo(ctx, params, &createParams); err != nil {
		return CreatePartyResponse{}, err
	}

	if params.RoomID != "" {
		if err := s.partyRepo.CreateParty(ctx, &createParams); err != nil {
			if errors.Is(err, party.ErrRoomIDTaken) {
				return CreatePartyResponse{}, ErrRoomIDTaken
			}
			return CreatePartyResponse{}, fmt.Errorf("failed to create party: %w", err)
		}
	} else {
		created := false
		for i := 0; i < s.maxCreateAttempts; i++ {
			createParams.RoomID = s.generator.GenerateRandomString(s.roomIDLength)
			err := s.partyRepo.CreateParty(ctx, &createParams)
			if err == nil {
				created = true
				break
			}
			if !errors.Is(err, party.ErrRoomIDTaken) {
				return CreatePartyResponse{}, fmt.Errorf("failed to create party: %w", err)
			}
			s.logger.DebugContext(ctx, "generated room id collided", "room_id", createParams.RoomID)
		}
		if !created {
			return CreatePartyResponse{}, ErrIDSpaceExhausted
		}
	}

	if s.metrics != nil {
		s.metrics.IncPartiesCreated(params.ContentSource)
	}

	s.logger.InfoContext(ctx, "party created", "room_id", createParams.RoomID, "content_source", params.ContentSource)

	p := party.Party{
		RoomID:        createParams.RoomID,
		Creator:       createParams.Creator,
		ContentID:     createParams.ContentID,
		ContentSource: createParams.ContentSource,
		CreatedAt:     createParams.CreatedAt.UnixMilli(),
	}
	if createParams.Title != nil {
		p.Title = *createParams.Title
		p.AuthorName = *createParams.AuthorName
		p.ThumbnailURL = *createParams.ThumbnailURL
	}

	return CreatePartyResponse{Party: mapParty(&p)}, nil
}

func (s service) GetParty(ctx context.Context, params *GetPartyParams) (GetPartyResponse, error) {
	p, err := s.partyRepo.GetParty(ctx, params.RoomID)
	if err != nil {
		if errors.Is(err, party.ErrPartyNotFound) {
			return GetPartyResponse{}, ErrPartyNotFound
		}
		return GetPartyResponse{}, fmt.Errorf("failed to get party: %w", err)
	}

	return GetPartyResponse{Party: mapParty(&p)}, nil
}
