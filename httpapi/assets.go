package httpapi

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"io/fs"
	"time"
)

//go:embed assets/index.html assets/style.css
var embeddedAssets embed.FS

// staticFS serves the page assets with the assets/ directory stripped.
var staticFS = mustSub(embeddedAssets, "assets")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(fmt.Sprintf("httpapi: embedded %s: %v", dir, err))
	}
	return sub
}

const baseHrefPlaceholder = "<!-- BASE_HREF -->"

// indexPage is the rendered list editor page.
type indexPage struct {
	body    []byte
	modTime time.Time
}

// renderIndex fills the page's base href placeholder.
func renderIndex(baseHref string) (indexPage, error) {
	body, err := fs.ReadFile(staticFS, "index.html")
	if err != nil {
		return indexPage{}, err
	}
	info, err := fs.Stat(staticFS, "index.html")
	if err != nil {
		return indexPage{}, err
	}
	tag := ""
	if baseHref != "" {
		tag = fmt.Sprintf(`<base href="%s" />`, html.EscapeString(baseHref))
	}
	body = bytes.ReplaceAll(body, []byte(baseHrefPlaceholder), []byte(tag))
	return indexPage{body: body, modTime: info.ModTime()}, nil
}
