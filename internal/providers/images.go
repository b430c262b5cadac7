package providers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xkilldash9x/specter/api/schemas"
)

// ImageProvider checks candidate image URLs with HEAD requests and records
// the content metadata of those that resolve to an image.
type ImageProvider struct {
	base
}

func NewImageProvider(d Deps) *ImageProvider {
	return &ImageProvider{base: newBase("images", d)}
}

// Inspect probes one candidate. Non-image responses are Absent.
func (p *ImageProvider) Inspect(ctx context.Context, url, source string) schemas.Result[schemas.ImageCandidate] {
	resp := p.fetch.Head(ctx, url)
	if !resp.OK() {
		return absentFrom[schemas.ImageCandidate](p.base, resp)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(ct), "image/") {
		return absent[schemas.ImageCandidate](p.base, "not an image")
	}
	img := schemas.ImageCandidate{URL: url, Source: source, ContentType: ct, Reachable: true}
	if n, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64); err == nil {
		img.Size = n
	}
	if lm, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
		lm = lm.UTC().Truncate(time.Second)
		img.LastModified = &lm
	}
	p.found()
	return schemas.Found(img)
}
