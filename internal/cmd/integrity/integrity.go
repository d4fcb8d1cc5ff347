// Package integrity parses integrity command flags and launches the
// integrity service runtime.
package integrity

import (
	"context"
	"flag"

	entrypoint "github.com/strikeline/arena/internal/platform/cmd"
	"github.com/strikeline/arena/internal/services/integrity/app"
)

// Config holds integrity command configuration.
type Config struct {
	HTTPPort int    `env:"ARENA_INTEGRITY_HTTP_PORT" envDefault:"8090"`
	GRPCPort int    `env:"ARENA_INTEGRITY_GRPC_PORT" envDefault:"8091"`
	DBPath   string `env:"ARENA_INTEGRITY_DB_PATH" envDefault:"data/integrity.db"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.HTTPPort, "http-port", cfg.HTTPPort, "The integrity websocket and API HTTP port")
	fs.IntVar(&cfg.GRPCPort, "grpc-port", cfg.GRPCPort, "The integrity health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The integrity SQLite database path")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the integrity runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceIntegrity, func(context.Context) error {
		return app.Run(ctx, app.RuntimeConfig{
			HTTPPort: cfg.HTTPPort,
			GRPCPort: cfg.GRPCPort,
			DBPath:   cfg.DBPath,
		})
	})
}
