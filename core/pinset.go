package core

import (
	"context"
	"encoding/json"
	"fmt"

	"pkt.systems/pinkeep/schema"
)

// Dedupe returns urls with exact duplicates and empty entries removed,
// keeping the first occurrence of each.
func Dedupe(urls []string) []string {
	out := make([]string, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, url := range urls {
		if url == "" {
			continue
		}
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		out = append(out, url)
	}
	return out
}

func tabURLs(tabs []schema.Tab) []string {
	out := make([]string, 0, len(tabs))
	for _, tab := range tabs {
		out = append(out, tab.URL)
	}
	return out
}

func containsURL(urls []string, url string) bool {
	for _, existing := range urls {
		if existing == url {
			return true
		}
	}
	return false
}

// loadPinned reads the pinned set. A missing key yields an empty set.
func loadPinned(ctx context.Context, store Store, key string) ([]string, error) {
	data, ok, err := store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load pinned set: %w", err)
	}
	if !ok || len(data) == 0 {
		return []string{}, nil
	}
	var urls []string
	if err := json.Unmarshal(data, &urls); err != nil {
		return nil, fmt.Errorf("%w: %v", schema.ErrInvalidPinnedSet, err)
	}
	if urls == nil {
		urls = []string{}
	}
	return urls, nil
}

// savePinned overwrites the pinned set.
func savePinned(ctx context.Context, store Store, key string, urls []string) error {
	if urls == nil {
		urls = []string{}
	}
	data, err := json.Marshal(urls)
	if err != nil {
		return err
	}
	if err := store.Set(ctx, key, data); err != nil {
		return fmt.Errorf("save pinned set: %w", err)
	}
	return nil
}
