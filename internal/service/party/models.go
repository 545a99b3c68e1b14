package party

import (
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/sharetube/watchparty/internal/channel"
	"github.com/sharetube/watchparty/internal/repository/party"
)

type Video struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

type Party struct {
	RoomID        string `json:"room_id"`
	Creator       string `json:"creator"`
	ContentID     string `json:"content_id"`
	ContentSource string `json:"content_source"`
	JoinPath      string `json:"join_path"`
	Video         *Video `json:"video,omitempty"`
	CreatedAt     int64  `json:"created_at"`
}

func mapParty(p *party.Party) Party {
	out := Party{
		RoomID:        p.RoomID,
		Creator:       p.Creator,
		ContentID:     p.ContentID,
		ContentSource: p.ContentSource,
		JoinPath:      joinPath(p.RoomID, p.ContentID),
		CreatedAt:     p.CreatedAt,
	}
	if p.Title != "" {
		out.Video = &Video{
			Title:        p.Title,
			AuthorName:   p.AuthorName,
			ThumbnailURL: p.ThumbnailURL,
		}
	}

	return out
}

func joinPath(roomID, contentID string) string {
	q := url.Values{}
	q.Set("content", contentID)

	return "/rooms/" + url.PathEscape(roomID) + "?" + q.Encode()
}

type CreatePartyParams struct {
	Creator       string
	RoomID        string
	ContentID     string
	ContentSource string
}

type CreatePartyResponse struct {
	Party Party
}

type GetPartyParams struct {
	RoomID string
}

type GetPartyResponse struct {
	Party Party
}

type JoinRoomParams struct {
	RoomID    string
	SessionID string
	Conn      *websocket.Conn
	Handler   channel.Handler
}

type JoinRoomResponse struct {
	Subscription channel.Subscription
}

type LeaveRoomParams struct {
	SessionID    string
	Subscription channel.Subscription
}
