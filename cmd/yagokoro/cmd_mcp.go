package main

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/yagokoro-dev/yagokoro/config"
	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/mcpserver"
	"github.com/yagokoro-dev/yagokoro/secure"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the graph over the Model Context Protocol",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP over stdio until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		opts := mcpserver.Options{
			Version:        version,
			APIKey:         os.Getenv("YAGOKORO_API_KEY"),
			CommunityLevel: a.cfg.Query.CommunityLevel,
			Limiter:        limiterFromConfig(a.cfg),
		}
		if a.cfg.Auth.Enabled {
			// The stdio transport has one owner; mint it a session key so
			// the guard path runs against a real key.
			keys := secure.NewMemoryKeyStore()
			secret, _, err := keys.Create(cmd.Context(), "mcp-session", kg.RoleAdmin, nil, nil)
			if err != nil {
				return err
			}
			opts.APIKey = secret
			opts.Auth = secure.NewAuthorizer(keys)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return mcpserver.New(a.graph, a.vectors, a.client, opts).Run(ctx)
	},
}

var mcpStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what an MCP server over this configuration would expose",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.graph.GraphStats(cmd.Context())
		if err != nil {
			return err
		}
		if outputMode == outputJSON {
			return printJSON(map[string]any{
				"version":       version,
				"graph_backend": a.cfg.Graph.Backend,
				"auth_enabled":  a.cfg.Auth.Enabled,
				"stats":         stats,
			})
		}
		kv("Version", version)
		kv("Graph backend", orDefault(a.cfg.Graph.Backend, "memory"))
		kv("Vector backend", orDefault(a.cfg.Vector.Backend, "memory"))
		kv("Auth", strconv.FormatBool(a.cfg.Auth.Enabled))
		kv("Entities", strconv.Itoa(stats.Entities))
		kv("Relations", strconv.Itoa(stats.Relations))
		kv("Communities", strconv.Itoa(stats.Communities))
		return nil
	},
}

// version is stamped by the release build; dev builds report "dev".
var version = "dev"

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// limiterFromConfig builds the configured rate limiter. An unset preset
// means no limiting; a redis URI switches the backing store.
func limiterFromConfig(cfg *config.Config) secure.Limiter {
	var limit secure.LimitConfig
	switch cfg.RateLimit.Preset {
	case "standard":
		limit = secure.PresetStandard
	case "strict":
		limit = secure.PresetStrict
	case "relaxed":
		limit = secure.PresetRelaxed
	case "hourly":
		limit = secure.PresetHourly
	case "daily":
		limit = secure.PresetDaily
	default:
		return nil
	}
	if cfg.RateLimit.RedisURI != "" {
		return secure.NewRedisLimiter(redis.NewClient(&redis.Options{Addr: cfg.RateLimit.RedisURI}), limit)
	}
	return secure.NewMemoryLimiter(limit)
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd, mcpStatusCmd)
}
