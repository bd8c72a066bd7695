package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pinkeep/httpapi"
	"pkt.systems/pinkeep/internal/appconfig"
	"pkt.systems/pinkeep/internal/version"
	"pkt.systems/pslog"
)

func newAddCurrentCmd() *cobra.Command {
	var cfgPath string
	var endpoint string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "add-current",
		Short: "Save the browser's active tab through the running host",
		Long: "Save the browser's active tab. Only the running native host can " +
			"reach the browser, so this command calls its list editor API.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base := endpoint
			if base == "" {
				cfg, err := appconfig.Load(cfgPath)
				if err != nil {
					return err
				}
				base, err = hostBaseURL(cfg.HTTP)
				if err != nil {
					return err
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			urls, err := postAddCurrent(ctx, http.DefaultClient, base)
			if err != nil {
				return err
			}
			pslog.Ctx(cmd.Context()).Info("current tab saved", "count", len(urls))
			return printPins(cmd.OutOrStdout(), urls, asJSON)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&endpoint, "url", "", "base URL of the running host UI (defaults to http.addr)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the updated list as a JSON array")
	return cmd
}

// hostBaseURL derives the UI base URL from the host's listen settings.
func hostBaseURL(cfg appconfig.HTTPConfig) (string, error) {
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		return strings.TrimRight(base, "/") + basePathSuffix(cfg.BasePath), nil
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return "", errors.New("http.addr is empty; the host UI is disabled")
	}
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr + basePathSuffix(cfg.BasePath), nil
}

func basePathSuffix(value string) string {
	path := strings.Trim(strings.TrimSpace(value), "/")
	if path == "" {
		return ""
	}
	return "/" + path
}

type apiError struct {
	Error string `json:"error"`
}

func postAddCurrent(ctx context.Context, client *http.Client, base string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+"/api/pins/current", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set(httpapi.RequestHeader, "1")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reach pinkeep host: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var apiErr apiError
		if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("add current tab: %s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return nil, fmt.Errorf("add current tab: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	var out struct {
		URLs []string `json:"urls"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode add current response: %w", err)
	}
	return out.URLs, nil
}
