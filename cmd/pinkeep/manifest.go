package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/pinkeep/internal/appconfig"
	"pkt.systems/pslog"
)

// hostManifest is the native messaging host registration read by the browser.
type hostManifest struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Path           string   `json:"path"`
	Type           string   `json:"type"`
	AllowedOrigins []string `json:"allowed_origins"`
}

func newManifestCmd() *cobra.Command {
	var cfgPath string
	var origins []string
	var binPath string
	var outPath string
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Print the native messaging host manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if binPath == "" {
				exe, err := os.Executable()
				if err != nil {
					return err
				}
				binPath = exe
			}
			manifest, err := buildManifest(cfg.NativeHost, binPath, origins)
			if err != nil {
				return err
			}
			if outPath == "" {
				return writeManifest(cmd.OutOrStdout(), manifest)
			}
			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				return err
			}
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			if err := writeManifest(f, manifest); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			pslog.Ctx(cmd.Context()).Info("manifest wrote", "path", outPath, "name", manifest.Name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringArrayVar(&origins, "origin", nil, "allowed extension origin (repeatable, adds to native_host.allowed_origins)")
	cmd.Flags().StringVar(&binPath, "path", "", "absolute path of the host binary (defaults to this executable)")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write the manifest to this file")
	return cmd
}

func buildManifest(cfg appconfig.NativeHostConfig, binPath string, extra []string) (hostManifest, error) {
	if !filepath.IsAbs(binPath) {
		return hostManifest{}, fmt.Errorf("host path must be absolute: %q", binPath)
	}
	seen := make(map[string]struct{})
	origins := make([]string, 0, len(cfg.AllowedOrigins)+len(extra))
	for _, origin := range append(append([]string{}, cfg.AllowedOrigins...), extra...) {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if !strings.HasPrefix(origin, extensionOriginPrefix) {
			return hostManifest{}, fmt.Errorf("origin %q must start with %s", origin, extensionOriginPrefix)
		}
		if !strings.HasSuffix(origin, "/") {
			origin += "/"
		}
		if _, ok := seen[origin]; ok {
			continue
		}
		seen[origin] = struct{}{}
		origins = append(origins, origin)
	}
	if len(origins) == 0 {
		return hostManifest{}, errors.New("at least one allowed origin is required")
	}
	return hostManifest{
		Name:           cfg.Name,
		Description:    cfg.Description,
		Path:           binPath,
		Type:           "stdio",
		AllowedOrigins: origins,
	}, nil
}

func writeManifest(w io.Writer, manifest hostManifest) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(manifest)
}
