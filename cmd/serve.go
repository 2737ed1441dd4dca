package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"stockai-router/internal/cache"
	"stockai-router/internal/dispatch"
	"stockai-router/internal/server"
)

const serveUsage = `Usage:
  stockai-router serve [--config <path>] [--port <port>]

Flags:
  --config string   Path to YAML configuration file (defaults plus environment when omitted)
  --port   int      Override server port from configuration`

const cachePingTimeout = 3 * time.Second

func serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, serveUsage)
	}

	var cfgPath string
	var overridePort int
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")
	fs.IntVar(&overridePort, "port", 0, "override server port")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse serve flags: %w", err)
	}

	if overridePort < 0 || overridePort > 65535 {
		return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
	}

	rt, err := bootstrap(cfgPath)
	if err != nil {
		return err
	}

	if overridePort != 0 {
		rt.cfg.Server.Port = overridePort
	}

	var opts []dispatch.Option
	if rt.cfg.Cache.Enabled() {
		embeddingCache := cache.NewRedisCache(rt.cfg.Cache.RedisAddr, rt.cfg.Cache.Password, rt.cfg.Cache.DB, rt.cfg.Cache.TTL)
		defer embeddingCache.Close()

		pingCtx, cancel := context.WithTimeout(ctx, cachePingTimeout)
		err := embeddingCache.Ping(pingCtx)
		cancel()
		if err != nil {
			slog.Warn("embedding cache unreachable, continuing without it", "addr", rt.cfg.Cache.RedisAddr, "err", err)
		} else {
			slog.Info("embedding cache enabled", "addr", rt.cfg.Cache.RedisAddr, "ttl", rt.cfg.Cache.TTL)
			opts = append(opts, dispatch.WithEmbeddingCache(embeddingCache))
		}
	}

	srv, err := server.New(rt.cfg, rt.dispatcher(opts...))
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}
