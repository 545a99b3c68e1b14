package party

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/sharetube/watchparty/internal/channel"
	"github.com/sharetube/watchparty/internal/repository/party"
	"github.com/sharetube/watchparty/pkg/ytvideodata"
)

var (
	ErrPartyNotFound    = errors.New("party not found")
	ErrRoomIDTaken      = errors.New("room id already taken")
	ErrContentNotFound  = errors.New("content not found")
	ErrRoomFull         = errors.New("room is full")
	ErrIDSpaceExhausted = errors.New("failed to generate a free room id")
)

type iPartyRepo interface {
	CreateParty(context.Context, *party.CreatePartyParams) error
	GetParty(context.Context, string) (party.Party, error)
}

type iConnRepo interface {
	AddIfBelow(sessionID, roomID string, conn *websocket.Conn, limit int) error
	Remove(sessionID string) error
	Count() int
	CloseAll(reason string) int
}

type iVideoData interface {
	Get(ctx context.Context, videoID string) (*ytvideodata.VideoData, error)
}

type iGenerator interface {
	GenerateRandomString(length int) string
}

type iMetrics interface {
	IncPartiesCreated(source string)
}

type Config struct {
	RoomIDLength      int
	MaxCreateAttempts int
	MembersLimit      int
	Clock             clockwork.Clock
}

type service struct {
	partyRepo   iPartyRepo
	connRepo    iConnRepo
	broadcaster channel.Broadcaster
	videoData   iVideoData
	generator   iGenerator
	metrics     iMetrics
	logger      *slog.Logger

	roomIDLength      int
	maxCreateAttempts int
	membersLimit      int
	clock             clockwork.Clock
}

func NewService(
	partyRepo iPartyRepo,
	connRepo iConnRepo,
	broadcaster channel.Broadcaster,
	videoData iVideoData,
	generator iGenerator,
	metrics iMetrics,
	logger *slog.Logger,
	cfg *Config,
) *service {
	s := &service{
		partyRepo:         partyRepo,
		connRepo:          connRepo,
		broadcaster:       broadcaster,
		videoData:         videoData,
		generator:         generator,
		metrics:           metrics,
		logger:            logger,
		roomIDLength:      10,
		maxCreateAttempts: 5,
		clock:             clockwork.NewRealClock(),
	}
	if cfg.RoomIDLength > 0 {
		s.roomIDLength = cfg.RoomIDLength
	}
	if cfg.MaxCreateAttempts > 0 {
		s.maxCreateAttempts = cfg.MaxCreateAttempts
	}
	if cfg.Clock != nil {
		s.clock = cfg.Clock
	}
	s.membersLimit = cfg.MembersLimit

	return s
}
