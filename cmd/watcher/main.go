package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sharetube/watchparty/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
}

var (
	relayURL = configVar[string]{
		envKey:       "WATCHER_RELAY_URL",
		flagKey:      "relay-url",
		defaultValue: "http://localhost:80",
	}
	roomID = configVar[string]{
		envKey:       "WATCHER_ROOM_ID",
		flagKey:      "room",
		defaultValue: "",
	}
	memberKey = configVar[string]{
		envKey:       "WATCHER_MEMBER_KEY",
		flagKey:      "member-key",
		defaultValue: "",
	}
	logLevel = configVar[string]{
		envKey:       "WATCHER_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "WARN",
	}
	tolerance = configVar[float64]{
		envKey:       "WATCHER_TOLERANCE",
		flagKey:      "tolerance",
		defaultValue: 2.0,
	}
	echoWindow = configVar[time.Duration]{
		envKey:       "WATCHER_ECHO_WINDOW",
		flagKey:      "echo-window",
		defaultValue: 500 * time.Millisecond,
	}
	mediaDuration = configVar[float64]{
		envKey:       "WATCHER_MEDIA_DURATION",
		flagKey:      "media-duration",
		defaultValue: 0,
	}
	playerBridgeURL = configVar[string]{
		envKey:       "WATCHER_PLAYER_BRIDGE_URL",
		flagKey:      "player-bridge-url",
		defaultValue: "",
	}
)

func loadWatcherConfig() *app.WatcherConfig {
	pflag.String(relayURL.flagKey, relayURL.defaultValue, "Relay base url")
	pflag.String(roomID.flagKey, roomID.defaultValue, "Room to join")
	pflag.String(memberKey.flagKey, memberKey.defaultValue, "Member key shown to the room")
	pflag.String(logLevel.flagKey, logLevel.defaultValue, "Logging level")
	pflag.Float64(tolerance.flagKey, tolerance.defaultValue, "Drift tolerance in seconds")
	pflag.Duration(echoWindow.flagKey, echoWindow.defaultValue, "How long a remote application absorbs its own echo")
	pflag.Float64(mediaDuration.flagKey, mediaDuration.defaultValue, "Virtual media length in seconds, 0 for unbounded")
	pflag.String(playerBridgeURL.flagKey, playerBridgeURL.defaultValue, "Websocket url of an embedded player bridge")
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	viper.BindEnv(relayURL.flagKey, relayURL.envKey)
	viper.BindEnv(roomID.flagKey, roomID.envKey)
	viper.BindEnv(memberKey.flagKey, memberKey.envKey)
	viper.BindEnv(logLevel.flagKey, logLevel.envKey)
	viper.BindEnv(tolerance.flagKey, tolerance.envKey)
	viper.BindEnv(echoWindow.flagKey, echoWindow.envKey)
	viper.BindEnv(mediaDuration.flagKey, mediaDuration.envKey)
	viper.BindEnv(playerBridgeURL.flagKey, playerBridgeURL.envKey)

	viper.SetDefault(relayURL.flagKey, relayURL.defaultValue)
	viper.SetDefault(roomID.flagKey, roomID.defaultValue)
	viper.SetDefault(memberKey.flagKey, memberKey.defaultValue)
	viper.SetDefault(logLevel.flagKey, logLevel.defaultValue)
	viper.SetDefault(tolerance.flagKey, tolerance.defaultValue)
	viper.SetDefault(echoWindow.flagKey, echoWindow.defaultValue)
	viper.SetDefault(mediaDuration.flagKey, mediaDuration.defaultValue)
	viper.SetDefault(playerBridgeURL.flagKey, playerBridgeURL.defaultValue)

	return &app.WatcherConfig{
		RelayURL:        viper.GetString(relayURL.flagKey),
		RoomID:          viper.GetString(roomID.flagKey),
		MemberKey:       viper.GetString(memberKey.flagKey),
		LogLevel:        viper.GetString(logLevel.flagKey),
		Tolerance:       viper.GetFloat64(tolerance.flagKey),
		EchoWindow:      viper.GetDuration(echoWindow.flagKey),
		MediaDuration:   viper.GetFloat64(mediaDuration.flagKey),
		PlayerBridgeURL: viper.GetString(playerBridgeURL.flagKey),
	}
}

func main() {
	_ = godotenv.Load()

	cfg := loadWatcherConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunWatcher(ctx, cfg, os.Stdin, os.Stdout); err != nil {
		log.Fatal(err)
	}
}
