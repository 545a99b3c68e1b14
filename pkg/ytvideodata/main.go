package ytvideodata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type VideoData struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailUrl string `json:"thumbnail_url"`
}

type Client struct {
	httpClient   *http.Client
	oembedURL    string
	watchPageURL string
	thumbnailURL string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL points both lookups at baseURL, used by tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.oembedURL = baseURL + "/oembed?url=https://www.youtube.com/watch?v=%s"
		c.watchPageURL = baseURL + "/%s"
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		httpClient:   &http.Client{Timeout: 5 * time.Second},
		oembedURL:    "https://www.youtube.com/oembed?url=https://www.youtube.com/watch?v=%s",
		watchPageURL: "https://youtu.be/%s",
		thumbnailURL: "https://i.ytimg.com/vi/%s/hqdefault.jpg",
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) Get(ctx context.Context, videoId string) (*VideoData, error) {
	videoData, err := c.getVideoWithEmbed(ctx, videoId)
	if err != nil {
		if !errors.Is(err, ErrVideoNotEmbeddable) {
			return nil, fmt.Errorf("failed to get video data with embed: %w", err)
		}

		videoData, err = c.getFromPage(ctx, videoId)
		if err != nil {
			return nil, fmt.Errorf("failed to get video data from page: %w", err)
		}
	}

	return videoData, nil
}
