package httpapi

import (
	"net/http"
	"path"
	"strings"
)

// cleanBasePath turns a configured prefix into "/seg[/seg...]", or "" when the
// UI is served from the root.
func cleanBasePath(value string) string {
	trimmed := strings.Trim(strings.TrimSpace(value), "/")
	if trimmed == "" {
		return ""
	}
	cleaned := path.Clean("/" + trimmed)
	if cleaned == "/" {
		return ""
	}
	return cleaned
}

// pageBaseHref is the <base href> the page needs so its relative API calls
// resolve under the prefix. It is empty when neither setting is given.
func pageBaseHref(baseURL, basePath string) string {
	origin := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	prefix := cleanBasePath(basePath)
	switch {
	case origin == "" && prefix == "":
		return ""
	case origin == "":
		return prefix + "/"
	default:
		return origin + prefix + "/"
	}
}

// mountAt serves handler below prefix. A request for the bare prefix is
// redirected to its slash form so relative links keep working.
func mountAt(prefix string, handler http.Handler) http.Handler {
	if prefix == "" {
		return handler
	}
	root := http.NewServeMux()
	root.Handle(prefix+"/", http.StripPrefix(prefix, handler))
	root.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != prefix {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, prefix+"/", http.StatusTemporaryRedirect)
	})
	return root
}
