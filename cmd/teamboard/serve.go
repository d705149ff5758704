package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/mschirtzinger/teamboard/internal/events"
	"github.com/mschirtzinger/teamboard/internal/realtime"
	"github.com/mschirtzinger/teamboard/internal/schema"
	"github.com/mschirtzinger/teamboard/internal/service"
	"github.com/mschirtzinger/teamboard/internal/store"
	"github.com/mschirtzinger/teamboard/internal/transport/mcp"
	"github.com/mschirtzinger/teamboard/internal/transport/rest"
	"github.com/mschirtzinger/teamboard/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "server",
	Short:   "Run the HTTP API and realtime server",
	Long: `Serve the REST API, the realtime websocket and, when mcp.enabled is set,
the MCP endpoint.

Every committed mutation is appended to the audit log and published to
connected websocket clients as a "mutations" envelope. With redis.addr set
the same envelopes are also published on teamboard:<instance>:<topic>.

Example usage:
  teamboard serve                  # listen on server.host:server.port
  teamboard serve --port 9000      # override the port
  teamboard serve --watch          # reload documents edited on disk

Connect with a WebSocket client:
  ws://localhost:3000/ws`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}
		if cmd.Flags().Changed("watch") {
			cfg.Storage.Watch, _ = cmd.Flags().GetBool("watch")
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		hub := realtime.NewHub(&realtime.Config{
			BufferSize:     cfg.Realtime.BufferSize,
			WriteTimeout:   cfg.Realtime.WriteTimeout,
			OriginPatterns: cfg.Server.CORSOrigins,
			Logger:         logger,
		})
		hub.Start()
		defer hub.Stop()

		publishers := events.MultiPublisher{hub}
		if cfg.Redis.Addr != "" {
			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer rdb.Close()
			if err := rdb.Ping(ctx).Err(); err != nil {
				logger.Warn("redis relay unreachable, continuing without it", "addr", cfg.Redis.Addr, "error", err)
			} else {
				publishers = append(publishers, realtime.NewRedisPublisher(rdb, cfg.Redis.Instance))
				logger.Info("redis relay enabled", "addr", cfg.Redis.Addr, "instance", cfg.Redis.Instance)
			}
		}

		app, err := openApp(ctx, service.Options{Publisher: publishers})
		if err != nil {
			return err
		}
		defer app.Close()

		restCfg := rest.Config{
			Addr:            cfg.Server.Addr(),
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			CORSOrigins:     cfg.Server.CORSOrigins,
			Version:         Version,
			Logger:          logger,
		}
		if cfg.MCP.Enabled {
			restCfg.MCP = server.NewStreamableHTTPServer(mcp.NewServer(app, Version))
			restCfg.MCPPath = cfg.MCP.Path
		}

		srv := rest.NewServer(app, hub, restCfg)
		if err := srv.Start(); err != nil {
			return err
		}

		if cfg.Storage.Watch {
			go watchDataDir(ctx, app, publishers)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s teamboard %s serving %s\n", ui.Success.Render("✓"), Version, cfg.Storage.DataDir)
		fmt.Fprintf(out, "   API:       http://%s/api\n", srv.Addr())
		fmt.Fprintf(out, "   WebSocket: ws://%s/ws\n", srv.Addr())
		if cfg.MCP.Enabled {
			fmt.Fprintf(out, "   MCP:       http://%s%s\n", srv.Addr(), cfg.MCP.Path)
		}
		fmt.Fprintln(out, ui.Subtle.Render("\nPress Ctrl+C to stop..."))

		<-ctx.Done()

		fmt.Fprintln(out, "\nShutting down...")
		return srv.Stop()
	},
}

// watchDataDir reloads documents edited outside the server and tells
// clients to refetch them.
func watchDataDir(ctx context.Context, app *service.App, pub events.Publisher) {
	reloader := store.NewReloader(store.ReloaderConfig{
		Debounce: cfg.Storage.Debounce,
		Logger:   logger,
		OnReload: func(name string) {
			kind := schema.Kind(name)
			if kind == schema.KindAuditLog {
				if err := app.SyncIndex(ctx); err != nil {
					logger.Warn("audit index sync after reload failed", "error", err)
				}
			}
			if err := pub.Publish(ctx, events.TopicReload, events.Reload{
				EntityType: kind,
				Timestamp:  time.Now().UTC(),
			}); err != nil {
				logger.Debug("reload publish failed", "kind", kind, "error", err)
			}
		},
	}, app.Reloadables()...)

	if err := reloader.Run(ctx, app.DataDir()); err != nil {
		logger.Error("data directory watcher stopped", "error", err)
	}
}

func init() {
	serveCmd.Flags().IntP("port", "p", 3000, "port to listen on (overrides server.port)")
	serveCmd.Flags().Bool("watch", false, "reload documents edited on disk (overrides storage.watch)")
	rootCmd.AddCommand(serveCmd)
}
