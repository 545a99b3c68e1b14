package player

import (
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
)

// Content sources a party can be created with.
const (
	SourceYouTube = "youtube"
	SourceMedia   = "media"
)

// Backends holds what each backend needs. Only the fields of the selected
// backend are used.
type Backends struct {
	Frame    Frame
	VideoKey string
	Element  MediaElement
	Clock    clockwork.Clock
	Logger   *slog.Logger
}

// Select builds the player for a content source.
func Select(source string, b Backends) (Player, error) {
	switch source {
	case SourceYouTube:
		if b.Frame == nil {
			return nil, fmt.Errorf("failed to select iframe player: %w", ErrNotReady)
		}
		var opts []IframeOption
		if b.Clock != nil {
			opts = append(opts, WithIframeClock(b.Clock))
		}
		return NewIframePlayer(b.Frame, b.VideoKey, b.Logger, opts...), nil
	case SourceMedia:
		if b.Element == nil {
			return nil, fmt.Errorf("failed to select media player: %w", ErrNotReady)
		}
		return NewMediaPlayer(b.Element), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
}
