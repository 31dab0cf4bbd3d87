// Package governor parses governor command flags and launches the governance
// runtime.
package governor

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/hardwoodsim/league/internal/platform/cmd"
	leagueapp "github.com/hardwoodsim/league/internal/services/league/app"
)

// Config holds governor command configuration.
type Config struct {
	Port          int           `env:"HARDWOOD_GOVERNOR_PORT" envDefault:"8094"`
	DBPath        string        `env:"HARDWOOD_GOVERNOR_DB_PATH" envDefault:"data/governor.db"`
	SeasonID      string        `env:"HARDWOOD_GOVERNOR_SEASON_ID"`
	PollInterval  time.Duration `env:"HARDWOOD_GOVERNOR_POLL_INTERVAL" envDefault:"30s"`
	MaxPendingAge time.Duration `env:"HARDWOOD_GOVERNOR_MAX_PENDING_AGE" envDefault:"24h"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The governor health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The governor SQLite journal path")
	fs.StringVar(&cfg.SeasonID, "season-id", cfg.SeasonID, "The season journal to govern")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Interpretation retry poll interval")
	fs.DurationVar(&cfg.MaxPendingAge, "max-pending-age", cfg.MaxPendingAge, "Age after which a pending interpretation is expired and refunded")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the governor runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceGovernor, func(context.Context) error {
		return leagueapp.Run(ctx, leagueapp.RuntimeConfig{
			Port:          cfg.Port,
			DBPath:        cfg.DBPath,
			SeasonID:      cfg.SeasonID,
			PollInterval:  cfg.PollInterval,
			MaxPendingAge: cfg.MaxPendingAge,
		})
	})
}
