package omitnilpointers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOmitNilPointers(t *testing.T) {
	title := "Dune"
	var missing *string

	got := OmitNilPointers(map[string]any{
		"creator": "ann",
		"title":   &title,
		"author":  missing,
		"nil":     nil,
	})

	assert.Equal(t, map[string]any{"creator": "ann", "title": "Dune"}, got)
}
