package party

import (
	"errors"
	"time"
)

var (
	ErrPartyNotFound = errors.New("party not found")
	ErrRoomIDTaken   = errors.New("room id already taken")
)

type Party struct {
	RoomID        string `redis:"room_id"`
	Creator       string `redis:"creator"`
	ContentID     string `redis:"content_id"`
	ContentSource string `redis:"content_source"`
	Title         string `redis:"title"`
	AuthorName    string `redis:"author_name"`
	ThumbnailURL  string `redis:"thumbnail_url"`
	CreatedAt     int64  `redis:"created_at"`
}

type CreatePartyParams struct {
	RoomID        string
	Creator       string
	ContentID     string
	ContentSource string
	Title         *string
	AuthorName    *string
	ThumbnailURL  *string
	CreatedAt     time.Time
}
