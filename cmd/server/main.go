package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
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
	port = configVar[int]{
		envKey:       "SERVER_PORT",
		flagKey:      "port",
		defaultValue: 80,
	}
	host = configVar[string]{
		envKey:       "SERVER_HOST",
		flagKey:      "host",
		defaultValue: "0.0.0.0",
	}
	logLevel = configVar[string]{
		envKey:       "SERVER_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
	}
	backend = configVar[string]{
		envKey:       "SERVER_BACKEND",
		flagKey:      "backend",
		defaultValue: app.BackendRedis,
	}
	membersLimit = configVar[int]{
		envKey:       "SERVER_MEMBERS_LIMIT",
		flagKey:      "members-limit",
		defaultValue: 0,
	}
	partyTTL = configVar[time.Duration]{
		envKey:       "SERVER_PARTY_TTL",
		flagKey:      "party-ttl",
		defaultValue: 24 * time.Hour,
	}
	presenceTTL = configVar[time.Duration]{
		envKey:       "SERVER_PRESENCE_TTL",
		flagKey:      "presence-ttl",
		defaultValue: 30 * time.Second,
	}
	presenceHeartbeat = configVar[time.Duration]{
		envKey:       "SERVER_PRESENCE_HEARTBEAT",
		flagKey:      "presence-heartbeat",
		defaultValue: 10 * time.Second,
	}
	redisPort = configVar[int]{
		envKey:       "REDIS_PORT",
		flagKey:      "redis-port",
		defaultValue: 6379,
	}
	redisHost = configVar[string]{
		envKey:       "REDIS_HOST",
		flagKey:      "redis-host",
		defaultValue: "localhost",
	}
	redisPassword = configVar[string]{
		envKey:       "REDIS_PASSWORD",
		flagKey:      "redis-password",
		defaultValue: "",
	}
	redisDB = configVar[int]{
		envKey:       "REDIS_DB",
		flagKey:      "redis-db",
		defaultValue: 0,
	}
	natsURL = configVar[string]{
		envKey:       "NATS_URL",
		flagKey:      "nats-url",
		defaultValue: "nats://localhost:4222",
	}
)

func loadAppConfig() *app.AppConfig {
	pflag.Int(port.flagKey, port.defaultValue, "Server port")
	pflag.String(host.flagKey, host.defaultValue, "Server host")
	pflag.String(logLevel.flagKey, logLevel.defaultValue, "Logging level")
	pflag.String(backend.flagKey, backend.defaultValue, "Room channel backend: memory, redis or nats")
	pflag.Int(membersLimit.flagKey, membersLimit.defaultValue, "Maximum number of members in a room, 0 for no limit")
	pflag.Duration(partyTTL.flagKey, partyTTL.defaultValue, "How long an idle party record is kept")
	pflag.Duration(presenceTTL.flagKey, presenceTTL.defaultValue, "Presence entry lifetime without a heartbeat")
	pflag.Duration(presenceHeartbeat.flagKey, presenceHeartbeat.defaultValue, "Presence heartbeat interval")
	pflag.Int(redisPort.flagKey, redisPort.defaultValue, "Redis port")
	pflag.String(redisHost.flagKey, redisHost.defaultValue, "Redis host")
	pflag.String(redisPassword.flagKey, redisPassword.defaultValue, "Redis password")
	pflag.Int(redisDB.flagKey, redisDB.defaultValue, "Redis database")
	pflag.String(natsURL.flagKey, natsURL.defaultValue, "NATS server url")
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	viper.BindEnv(port.flagKey, port.envKey)
	viper.BindEnv(host.flagKey, host.envKey)
	viper.BindEnv(logLevel.flagKey, logLevel.envKey)
	viper.BindEnv(backend.flagKey, backend.envKey)
	viper.BindEnv(membersLimit.flagKey, membersLimit.envKey)
	viper.BindEnv(partyTTL.flagKey, partyTTL.envKey)
	viper.BindEnv(presenceTTL.flagKey, presenceTTL.envKey)
	viper.BindEnv(presenceHeartbeat.flagKey, presenceHeartbeat.envKey)
	viper.BindEnv(redisPort.flagKey, redisPort.envKey)
	viper.BindEnv(redisHost.flagKey, redisHost.envKey)
	viper.BindEnv(redisPassword.flagKey, redisPassword.envKey)
	viper.BindEnv(redisDB.flagKey, redisDB.envKey)
	viper.BindEnv(natsURL.flagKey, natsURL.envKey)

	viper.SetDefault(port.flagKey, port.defaultValue)
	viper.SetDefault(host.flagKey, host.defaultValue)
	viper.SetDefault(logLevel.flagKey, logLevel.defaultValue)
	viper.SetDefault(backend.flagKey, backend.defaultValue)
	viper.SetDefault(membersLimit.flagKey, membersLimit.defaultValue)
	viper.SetDefault(partyTTL.flagKey, partyTTL.defaultValue)
	viper.SetDefault(presenceTTL.flagKey, presenceTTL.defaultValue)
	viper.SetDefault(presenceHeartbeat.flagKey, presenceHeartbeat.defaultValue)
	viper.SetDefault(redisPort.flagKey, redisPort.defaultValue)
	viper.SetDefault(redisHost.flagKey, redisHost.defaultValue)
	viper.SetDefault(redisPassword.flagKey, redisPassword.defaultValue)
	viper.SetDefault(redisDB.flagKey, redisDB.defaultValue)
	viper.SetDefault(natsURL.flagKey, natsURL.defaultValue)

	config := &app.AppConfig{
		Host:              viper.GetString(host.flagKey),
		Port:              viper.GetInt(port.flagKey),
		LogLevel:          viper.GetString(logLevel.flagKey),
		Backend:           viper.GetString(backend.flagKey),
		MembersLimit:      viper.GetInt(membersLimit.flagKey),
		PartyTTL:          viper.GetDuration(partyTTL.flagKey),
		PresenceTTL:       viper.GetDuration(presenceTTL.flagKey),
		PresenceHeartbeat: viper.GetDuration(presenceHeartbeat.flagKey),
		RedisPort:         viper.GetInt(redisPort.flagKey),
		RedisHost:         viper.GetString(redisHost.flagKey),
		RedisPassword:     viper.GetString(redisPassword.flagKey),
		RedisDB:           viper.GetInt(redisDB.flagKey),
		NatsURL:           viper.GetString(natsURL.flagKey),
	}

	return config
}

func main() {
	ctx := context.Background()

	// .env is optional
	_ = godotenv.Load()

	appConfig := loadAppConfig()
	if err := appConfig.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting app with config: %s\n", jsonConfig)

	log.Fatal(app.Run(ctx, appConfig))
}
