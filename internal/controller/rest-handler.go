package controller

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sharetube/watchparty/internal/service/party"
	"github.com/sharetube/watchparty/pkg/rest"
	"github.com/sharetube/watchparty/pkg/validator"
)

type createPartyRequest struct {
	Creator       string `json:"creator" validate:"required,max=64"`
	RoomID        string `json:"room_id" validate:"omitempty,roomid"`
	ContentID     string `json:"content_id" validate:"required,max=2048"`
	ContentSource string `json:"content_source" validate:"required,oneof=youtube media"`
}

func (c controller) createParty(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createPartyRequest
	if err := rest.ReadJSON(r, &req); err != nil {
		c.logger.InfoContext(ctx, "failed to read request", "error", err)
		rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": err.Error()})
		return
	}

	if validationErrors, ok := c.validate.Validate(req); !ok {
		c.logger.InfoContext(ctx, "invalid request", "errors", validationErrors)
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": validationErrors})
		return
	}

	createPartyResp, err := c.partyService.CreateParty(ctx, &party.CreatePartyParams{
		Creator:       req.Creator,
		RoomID:        req.RoomID,
		ContentID:     req.ContentID,
		ContentSource: req.ContentSource,
	})
	if err != nil {
		switch {
		case errors.Is(err, party.ErrRoomIDTaken):
			rest.WriteJSON(w, http.StatusConflict, rest.Envelope{"error": err.Error()})
		case errors.Is(err, party.ErrContentNotFound):
			rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": err.Error()})
		default:
			c.logger.ErrorContext(ctx, "failed to create party", "error", err)
			rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "internal error"})
		}
		return
	}

	rest.WriteJSON(w, http.StatusCreated, rest.Envelope{"data": createPartyResp.Party})
}

func (c controller) getParty(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	roomID := chi.URLParam(r, "room-id")
	if !validator.IsRoomID(roomID) {
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"error": "invalid room id"})
		return
	}

	getPartyResp, err := c.partyService.GetParty(ctx, &party.GetPartyParams{RoomID: roomID})
	if err != nil {
		if errors.Is(err, party.ErrPartyNotFound) {
			rest.WriteJSON(w, http.StatusNotFound, rest.Envelope{"error": err.Error()})
			return
		}
		c.logger.ErrorContext(ctx, "failed to get party", "error", err)
		rest.WriteJSON(w, http.StatusInternalServerError, rest.Envelope{"error": "internal error"})
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": getPartyResp.Party})
}
