package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pinkeep"
	"pkt.systems/pinkeep/httpapi"
	"pkt.systems/pinkeep/internal/appconfig"
	"pkt.systems/pslog"
)

func newHostCmd() *cobra.Command {
	var cfgPath string
	var noHTTP bool
	cmd := &cobra.Command{
		Use:   "host [origin]",
		Short: "Run as the browser's native messaging host",
		Long: "Run as the browser's native messaging host. The browser starts this " +
			"command with the calling extension origin and speaks length-prefixed " +
			"JSON over stdin and stdout.",
		Args:               cobra.ArbitraryArgs,
		FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			origin := callerOrigin(args)
			logger := pslog.Ctx(cmd.Context()).With("origin", origin)
			if err := checkOrigin(cfg.NativeHost.AllowedOrigins, origin); err != nil {
				return err
			}
			store, closeStore, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := closeStore(); err != nil {
					logger.Warn("store close failed", "err", err)
				}
			}()
			logger.Info("store opened", "backend", cfg.Store.Backend, "path", cfg.StorePath())

			serverCfg := pinkeep.ServerConfig{
				Service:         cfg.ServiceConfig(),
				HTTP:            toHTTPConfig(cfg.HTTP),
				MaxMessageBytes: cfg.NativeHost.MaxMessageBytes,
				BusDepth:        cfg.Bus.Depth,
			}
			opts := []pinkeep.ServerOption{pinkeep.WithEngine()}
			if !noHTTP && strings.TrimSpace(cfg.HTTP.Addr) != "" {
				opts = append(opts, pinkeep.WithHTTP())
			}
			server, err := pinkeep.New(serverCfg, pinkeep.ServerDeps{
				Store:  store,
				In:     cmd.InOrStdin(),
				Out:    cmd.OutOrStdout(),
				Logger: logger,
			}, opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&noHTTP, "no-http", false, "disable the list editor UI")
	return cmd
}

// callerOrigin returns the extension origin the browser passed, if any.
func callerOrigin(args []string) string {
	for _, arg := range args {
		if strings.HasPrefix(arg, extensionOriginPrefix) {
			return arg
		}
	}
	return ""
}

// checkOrigin rejects callers missing from a non-empty allow list.
func checkOrigin(allowed []string, origin string) error {
	if len(allowed) == 0 {
		return nil
	}
	for _, candidate := range allowed {
		if candidate == origin {
			return nil
		}
	}
	if origin == "" {
		return errors.New("native host started without an extension origin")
	}
	return fmt.Errorf("extension origin %q is not allowed", origin)
}

func toHTTPConfig(cfg appconfig.HTTPConfig) httpapi.Config {
	return httpapi.Config{
		Addr:     cfg.Addr,
		BaseURL:  cfg.BaseURL,
		BasePath: cfg.BasePath,
	}
}

