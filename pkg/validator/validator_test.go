package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type createParty struct {
	Creator string `json:"creator" validate:"required,max=32"`
	RoomID  string `json:"room_id" validate:"omitempty,roomid"`
	Source  string `json:"content_source" validate:"required,oneof=youtube media"`
}

func TestValidate(t *testing.T) {
	v := NewValidator()

	_, ok := v.Validate(createParty{Creator: "ann", RoomID: "movie-night", Source: "youtube"})
	assert.True(t, ok)

	_, ok = v.Validate(createParty{Creator: "ann", Source: "media"})
	assert.True(t, ok, "room id is optional")

	errs, ok := v.Validate(createParty{RoomID: "a b", Source: "vimeo"})
	require.False(t, ok)
	require.Len(t, errs, 3)

	codes := map[string]string{}
	for _, e := range errs {
		codes[e.Field] = e.Code
	}
	assert.Equal(t, "REQUIRED", codes["creator"])
	assert.Equal(t, "ROOMID", codes["room_id"])
	assert.Equal(t, "ONEOF", codes["content_source"])
}

func TestIsRoomID(t *testing.T) {
	assert.True(t, IsRoomID("r1_x"))
	assert.True(t, IsRoomID("Alpha-2"))
	assert.False(t, IsRoomID("ab"))
	assert.False(t, IsRoomID("room.with.dots"))
	assert.False(t, IsRoomID(""))
}
