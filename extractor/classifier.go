package extractor

import (
	"context"
	"net/http"
	"strings"
)

// LooksLikeMedia decides whether a URL is directly fetchable media: a
// supported extension answers immediately, otherwise a header-only probe
// inspects the live content type. Probe failures are swallowed and count
// as "not media"; this check must never propagate a network error.
func (x *Extractor) LooksLikeMedia(ctx context.Context, rawURL string) bool {
	if IsSupportedMedia(rawURL) {
		return true
	}
	return x.probeContentType(ctx, rawURL)
}

func (x *Extractor) probeContentType(ctx context.Context, rawURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, x.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", x.cfg.UserAgent)

	resp, err := x.http.Do(req)
	if err != nil {
		x.logger.Debug("content_type_probe_failed", "url", rawURL, "error", err.Error())
		return false
	}
	_ = resp.Body.Close()

	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	return strings.HasPrefix(ct, "image/") || strings.HasPrefix(ct, "video/")
}
