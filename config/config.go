package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/4cecoder/raceroom/protocol"
	"github.com/4cecoder/raceroom/room"
	"github.com/4cecoder/raceroom/telemetry"
)

// Room layouts.
const (
	ModeFixed    = "fixed"
	ModeDynamic  = "dynamic"
	ModeRotation = "rotation"
)

type Config struct {
	Port             string
	RoomName         string
	Mode             string
	MaxPlayerCount   int
	PatchInterval    time.Duration
	EmptyTimeout     time.Duration
	Codec            string
	SendBacklogLimit int
}

func Default() Config {
	return Config{
		Port:             "8080",
		RoomName:         "game_room",
		Mode:             ModeFixed,
		MaxPlayerCount:   10,
		PatchInterval:    50 * time.Millisecond,
		EmptyTimeout:     0,
		Codec:            protocol.CodecJSON,
		SendBacklogLimit: 256,
	}
}

// Load reads .env (if present) into the environment and builds a Config from
// it. Invalid values are logged and the default is kept.
func Load(logger telemetry.Logger) Config {
	logger = telemetry.OrDefault(logger)
	if err := godotenv.Load(); err != nil {
		logger.Printf("no .env loaded: %v", err)
	}
	return FromEnv(os.Getenv, logger)
}

// FromEnv builds a Config from getenv.
func FromEnv(getenv func(string) string, logger telemetry.Logger) Config {
	logger = telemetry.OrDefault(logger)
	cfg := Default()

	if v := getenv("PORT"); v != "" {
		cfg.Port = v
	} else {
		logger.Printf("PORT environment variable not set, using default port %s", cfg.Port)
	}
	if v := getenv("ROOM_NAME"); v != "" {
		cfg.RoomName = v
	}
	if v := getenv("ROOM_MODE"); v != "" {
		switch mode := strings.ToLower(v); mode {
		case ModeFixed, ModeDynamic, ModeRotation:
			cfg.Mode = mode
		default:
			logger.Printf("invalid ROOM_MODE=%q, using %s", v, cfg.Mode)
		}
	}
	if n, ok := positiveInt(getenv, "MAX_PLAYER_COUNT", logger); ok {
		cfg.MaxPlayerCount = n
	} else if cfg.Mode == ModeRotation {
		// One car per grid spot unless told otherwise.
		cfg.MaxPlayerCount = len(room.DefaultSpawnPoints())
	}
	if n, ok := positiveInt(getenv, "PATCH_INTERVAL_MS", logger); ok {
		cfg.PatchInterval = time.Duration(n) * time.Millisecond
	}
	if raw := getenv("EMPTY_TIMEOUT_MS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			cfg.EmptyTimeout = time.Duration(n) * time.Millisecond
		} else {
			logger.Printf("invalid EMPTY_TIMEOUT_MS=%q", raw)
		}
	}
	if v := getenv("WIRE_CODEC"); v != "" {
		if _, err := protocol.CodecByName(v); err == nil {
			cfg.Codec = v
		} else {
			logger.Printf("invalid WIRE_CODEC=%q: %v", v, err)
		}
	}
	if n, ok := positiveInt(getenv, "SEND_BACKLOG_LIMIT", logger); ok {
		cfg.SendBacklogLimit = n
	}
	return cfg
}

// RoomOptions maps the configured layout onto room options. Rotation is a
// dynamic room with the two-point starting grid. A capacity larger than the
// grid is logged: later cars share spawn points.
func (c Config) RoomOptions(logger telemetry.Logger) room.Options {
	opts := room.Options{
		Name:          c.RoomName,
		Mode:          room.ModeFixedSlot,
		MaxClients:    c.MaxPlayerCount,
		PatchInterval: c.PatchInterval,
		EmptyTimeout:  c.EmptyTimeout,
		Logger:        logger,
	}
	switch c.Mode {
	case ModeDynamic:
		opts.Mode = room.ModeDynamic
	case ModeRotation:
		opts.Mode = room.ModeDynamic
		opts.SpawnPoints = room.DefaultSpawnPoints()
		if opts.MaxClients > len(opts.SpawnPoints) {
			telemetry.OrDefault(logger).Printf("rotation room %s allows %d players on %d spawn points; extra cars will spawn on top of each other",
				c.RoomName, opts.MaxClients, len(opts.SpawnPoints))
		}
	}
	return opts
}

func (c Config) Addr() string {
	return ":" + c.Port
}

func (c Config) String() string {
	return fmt.Sprintf("room=%s mode=%s max=%d patch=%s codec=%s", c.RoomName, c.Mode, c.MaxPlayerCount, c.PatchInterval, c.Codec)
}

func positiveInt(getenv func(string) string, key string, logger telemetry.Logger) (int, bool) {
	raw := getenv(key)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		logger.Printf("invalid %s=%q", key, raw)
		return 0, false
	}
	return n, true
}
