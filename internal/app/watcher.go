package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sharetube/watchparty/internal/channel/wsclient"
	"github.com/sharetube/watchparty/internal/player"
	"github.com/sharetube/watchparty/internal/service/party"
	"github.com/sharetube/watchparty/internal/watchparty"
	"github.com/sharetube/watchparty/pkg/validator"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrPartyNotFound  = errors.New("party not found")
)

type WatcherConfig struct {
	RelayURL        string        `json:"relay_url"`
	RoomID          string        `json:"room_id"`
	MemberKey       string        `json:"member_key"`
	LogLevel        string        `json:"log_level"`
	Tolerance       float64       `json:"tolerance"`
	EchoWindow      time.Duration `json:"echo_window"`
	MediaDuration   float64       `json:"media_duration"`
	PlayerBridgeURL string        `json:"player_bridge_url"`
}

func (cfg *WatcherConfig) Validate() error {
	if _, err := url.ParseRequestURI(cfg.RelayURL); err != nil {
		return fmt.Errorf("invalid relay url: %w", err)
	}
	if !validator.IsRoomID(cfg.RoomID) {
		return fmt.Errorf("invalid room id %q", cfg.RoomID)
	}
	if cfg.MemberKey == "" {
		return fmt.Errorf("member key is required")
	}
	if _, err := parseLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	if cfg.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be greater than 0")
	}
	if cfg.EchoWindow <= 0 {
		return fmt.Errorf("echo window must be greater than 0")
	}
	if cfg.MediaDuration < 0 {
		return fmt.Errorf("media duration must not be negative")
	}

	return nil
}

type commandKind int

const (
	cmdPlay commandKind = iota
	cmdPause
	cmdSeek
	cmdChat
	cmdWho
	cmdQuit
)

type command struct {
	kind    commandKind
	seconds float64
	text    string
}

func parseCommand(line string) (command, error) {
	name, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "play":
		return command{kind: cmdPlay}, nil
	case "pause":
		return command{kind: cmdPause}, nil
	case "seek":
		seconds, err := strconv.ParseFloat(arg, 64)
		if err != nil || seconds < 0 {
			return command{}, fmt.Errorf("seek needs a non-negative number of seconds")
		}
		return command{kind: cmdSeek, seconds: seconds}, nil
	case "chat":
		if arg == "" {
			return command{}, watchparty.ErrEmptyMessage
		}
		return command{kind: cmdChat, text: arg}, nil
	case "who":
		return command{kind: cmdWho}, nil
	case "quit", "exit":
		return command{kind: cmdQuit}, nil
	default:
		return command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
}

// fetchParty looks up the party record on the relay.
func fetchParty(ctx context.Context, hc *http.Client, relayURL, roomID string) (party.Party, error) {
	u, err := url.JoinPath(relayURL, "api", "watch-parties", roomID)
	if err != nil {
		return party.Party{}, fmt.Errorf("failed to build party url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return party.Party{}, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return party.Party{}, fmt.Errorf("failed to fetch party: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return party.Party{}, ErrPartyNotFound
	default:
		return party.Party{}, fmt.Errorf("failed to fetch party: status %d", resp.StatusCode)
	}

	var body struct {
		Data party.Party `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return party.Party{}, fmt.Errorf("failed to decode party: %w", err)
	}

	return body.Data, nil
}

type watcherPlayer interface {
	watchparty.Player
	Close() error
}

func selectWatcherPlayer(ctx context.Context, cfg *WatcherConfig, p party.Party, clock clockwork.Clock, logger *slog.Logger) (watcherPlayer, error) {
	if p.ContentSource == player.SourceYouTube && cfg.PlayerBridgeURL != "" {
		frame, err := player.DialWSFrame(ctx, cfg.PlayerBridgeURL)
		if err != nil {
			return nil, err
		}
		return player.Select(player.SourceYouTube, player.Backends{
			Frame:    frame,
			VideoKey: p.ContentID,
			Clock:    clock,
			Logger:   logger,
		})
	}

	if p.ContentSource == player.SourceYouTube {
		logger.WarnContext(ctx, "no player bridge configured, using a virtual media element")
	}

	return player.Select(player.SourceMedia, player.Backends{
		Element: player.NewVirtualElement(clock, player.WithDuration(cfg.MediaDuration)),
	})
}

// RunWatcher joins a room as a headless member and drives the player from
// line commands read from in until quit, EOF or ctx is done.
func RunWatcher(ctx context.Context, cfg *WatcherConfig, in io.Reader, out io.Writer) error {
	logger, err := newLogger(cfg.LogLevel, os.Stderr)
	if err != nil {
		return err
	}
	clock := clockwork.NewRealClock()

	p, err := fetchParty(ctx, &http.Client{Timeout: 10 * time.Second}, cfg.RelayURL, cfg.RoomID)
	if err != nil {
		if !errors.Is(err, ErrPartyNotFound) {
			return err
		}
		logger.WarnContext(ctx, "no party record, joining as plain media room", "room_id", cfg.RoomID)
		p = party.Party{RoomID: cfg.RoomID, ContentSource: player.SourceMedia}
	}

	pl, err := selectWatcherPlayer(ctx, cfg, p, clock, logger)
	if err != nil {
		return fmt.Errorf("failed to select player: %w", err)
	}
	defer pl.Close()

	client := watchparty.NewClient(
		wsclient.New(cfg.RelayURL, logger, wsclient.WithMemberKey(cfg.MemberKey)),
		pl,
		logger,
		watchparty.Config{
			RoomID:     cfg.RoomID,
			MemberKey:  cfg.MemberKey,
			Tolerance:  cfg.Tolerance,
			EchoWindow: cfg.EchoWindow,
			Clock:      clock,
		},
	)

	client.Presence().OnChange(func(members []string) {
		fmt.Fprintf(out, "members (%d): %s\n", len(members), strings.Join(members, ", "))
	})
	client.Chat().OnMessage(func(msg watchparty.ChatMessage) {
		fmt.Fprintf(out, "[%s] %s: %s\n", time.UnixMilli(msg.Timestamp).Format(time.TimeOnly), msg.User, msg.Text)
	})

	if err := client.Join(ctx); err != nil {
		return err
	}
	defer client.Leave()

	fmt.Fprintf(out, "joined %s (%s %s)\n", cfg.RoomID, p.ContentSource, p.ContentID)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}

			cmd, err := parseCommand(line)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			if cmd.kind == cmdQuit {
				return nil
			}
			if err := runCommand(ctx, cmd, client, pl, out); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}
	}
}

func runCommand(ctx context.Context, cmd command, client *watchparty.Client, pl watcherPlayer, out io.Writer) error {
	switch cmd.kind {
	case cmdPlay:
		return pl.Play()
	case cmdPause:
		return pl.Pause()
	case cmdSeek:
		return pl.SeekTo(cmd.seconds)
	case cmdChat:
		return client.Chat().Send(ctx, cmd.text)
	case cmdWho:
		fmt.Fprintf(out, "members (%d): %s\n", client.Presence().Count(), strings.Join(client.Presence().Members(), ", "))
		fmt.Fprintf(out, "position: %.1fs state: %s\n", pl.CurrentTime(), pl.State())
	}

	return nil
}
