package loader

import (
	"net/url"
	"sort"
	"strings"

	"taglayer/internal/layer"
	"taglayer/pkg/types"
)

// layerParam carries a non-default layer name to the remote script host.
const layerParam = "l"

// resolveURL builds <host>/<entrypoint>?id=<source-id>&<extra params>, with
// the layer-name parameter appended when a non-default name is in use.
// Extra parameters are emitted in sorted order so resolved URLs are stable.
func resolveURL(cfg Config, src types.Source) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(cfg.Host, "/"))
	b.WriteByte('/')
	b.WriteString(strings.TrimLeft(cfg.Entrypoint, "/"))
	b.WriteString("?id=")
	b.WriteString(url.QueryEscape(src.ID))
	keys := make([]string, 0, len(src.Params))
	for k := range src.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte('&')
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(src.Params[k]))
	}
	if cfg.LayerName != "" && cfg.LayerName != layer.DefaultName {
		b.WriteByte('&')
		b.WriteString(layerParam)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(cfg.LayerName))
	}
	return b.String()
}
