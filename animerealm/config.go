package animerealm

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/animerealm/animerealm/animerealm/database"
	"github.com/animerealm/animerealm/animerealm/economy/delivery"
	"github.com/animerealm/animerealm/animerealm/economy/tokens"
	"github.com/animerealm/animerealm/animerealm/handlers"
	"github.com/animerealm/animerealm/animerealm/services"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log       LogConfig                `toml:"log"`
	Bot       BotConfig                `toml:"bot"`
	Access    handlers.AccessConfig    `toml:"access"`
	DB        database.DBConfig        `toml:"db"`
	Economy   tokens.Config            `toml:"economy"`
	Delivery  delivery.Config          `toml:"delivery"`
	Shortener services.ShortenerConfig `toml:"shortener"`
	Channels  ChannelConfig            `toml:"channels"`
	Health    HealthConfig             `toml:"health"`
}

type BotConfig struct {
	Token              string  `toml:"token"`
	BroadcastPerSecond float64 `toml:"broadcast_per_second"`
}

type LogConfig struct {
	Level slog.Level `toml:"level"`
}

// ChannelConfig seeds the log channel ids; the admin console can override
// them at runtime and the overrides win on restart.
type ChannelConfig struct {
	RequestLogChannelID  int64 `toml:"request_log_channel_id"`
	ActivityLogChannelID int64 `toml:"activity_log_channel_id"`
	ErrorLogChannelID    int64 `toml:"error_log_channel_id"`
}

type HealthConfig struct {
	Addr string `toml:"addr"`
}
