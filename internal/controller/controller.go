package controller

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sharetube/watchparty/internal/metrics"
	"github.com/sharetube/watchparty/internal/service/party"
	"github.com/sharetube/watchparty/pkg/validator"
)

type iPartyService interface {
	CreateParty(context.Context, *party.CreatePartyParams) (party.CreatePartyResponse, error)
	GetParty(context.Context, *party.GetPartyParams) (party.GetPartyResponse, error)
	JoinRoom(context.Context, *party.JoinRoomParams) (party.JoinRoomResponse, error)
	LeaveRoom(context.Context, *party.LeaveRoomParams) error
	ConnectionCount() int
}

type controller struct {
	partyService iPartyService
	metrics      *metrics.Metrics
	upgrader     websocket.Upgrader
	validate     *validator.Validator
	logger       *slog.Logger
	sendBuffer   int
}

func NewController(partyService iPartyService, m *metrics.Metrics, logger *slog.Logger) *controller {
	return &controller{
		partyService: partyService,
		metrics:      m,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		validate:   validator.NewValidator(),
		logger:     logger,
		sendBuffer: 64,
	}
}

func (c controller) generateTimeBasedId() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

func (c controller) refreshConnections() {
	c.metrics.SetConnections(c.partyService.ConnectionCount())
}
