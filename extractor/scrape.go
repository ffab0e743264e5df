package extractor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxScriptImages caps how many candidates the inline-script scan may add.
const maxScriptImages = 3

var scriptImagePattern = regexp.MustCompile(`"(https?://[^"]*\.(?:jpg|jpeg|png|gif|webp)(?:\?[^"]*)?)"`)

// Only these hosts are trusted when pulling image URLs out of script bodies.
var trustedScriptHosts = []string{"googleusercontent.com", "wikimedia.org"}

// ScrapePage fetches an HTML document, discovers candidate media URLs in
// it and runs each one through the direct fetcher. Unlike the yt-dlp
// strategy, a failed page fetch is a hard failure here; failures on
// individual candidates are logged and skipped. An empty result with a nil
// error means the strategy found nothing.
func (x *Extractor) ScrapePage(ctx context.Context, pageURL string) ([]*Media, error) {
	doc, err := x.fetchDocument(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	candidates := x.collectCandidates(doc, pageURL)
	if len(candidates) > x.cfg.MaxCandidates {
		candidates = candidates[:x.cfg.MaxCandidates]
	}

	var out []*Media
	for _, candidate := range candidates {
		media, err := x.FetchDirect(ctx, candidate)
		if err != nil {
			x.logger.Debug("scrape_candidate_failed", "url", candidate, "error", err.Error())
			continue
		}
		out = append(out, media...)
	}
	if len(out) == 0 {
		return nil, nil
	}
	x.logger.Info("scrape_ok", "page", pageURL, "media", len(out))
	return out, nil
}

func (x *Extractor) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, x.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", x.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := x.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: http %d", pageURL, resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

// candidateSet deduplicates while preserving discovery order, so the cap
// keeps the most trusted sources (scanned scripts, page images) first.
type candidateSet struct {
	seen map[string]bool
	urls []string
}

func (s *candidateSet) add(raw string) {
	if raw == "" || s.seen[raw] {
		return
	}
	s.seen[raw] = true
	s.urls = append(s.urls, raw)
}

func (x *Extractor) collectCandidates(doc *goquery.Document, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	set := &candidateSet{seen: make(map[string]bool)}

	resolve := func(ref string) string {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			return ""
		}
		u, err := url.Parse(ref)
		if err != nil {
			return ""
		}
		return base.ResolveReference(u).String()
	}

	if isImageSearchPage(pageURL) {
		x.scanScripts(doc, set)
	}

	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src := s.AttrOr("src", "")
		if strings.HasPrefix(src, "data:") {
			return
		}
		if declaredTooSmall(s, x.cfg.MinDimension) {
			return
		}
		if abs := resolve(src); IsSupportedMedia(abs) {
			set.add(abs)
		}
	})

	doc.Find("img[data-src]").Each(func(_ int, s *goquery.Selection) {
		if abs := resolve(s.AttrOr("data-src", "")); IsSupportedMedia(abs) {
			set.add(abs)
		}
	})

	doc.Find("video[src], source[src]").Each(func(_ int, s *goquery.Selection) {
		if abs := resolve(s.AttrOr("src", "")); IsSupportedMedia(abs) {
			set.add(abs)
		}
	})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if abs := resolve(s.AttrOr("href", "")); IsSupportedMedia(abs) {
			set.add(abs)
		}
	})

	if og, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok {
		if abs := resolve(og); IsSupportedMedia(abs) {
			set.add(abs)
		}
	}

	return set.urls
}

// declaredTooSmall skips thumbnails and tracking pixels based on declared
// dimensions. Images without parseable width/height pass through.
func declaredTooSmall(s *goquery.Selection, min int) bool {
	w, werr := strconv.Atoi(strings.TrimSpace(s.AttrOr("width", "")))
	h, herr := strconv.Atoi(strings.TrimSpace(s.AttrOr("height", "")))
	if werr != nil || herr != nil {
		return false
	}
	return w < min || h < min
}

func isImageSearchPage(pageURL string) bool {
	return strings.Contains(pageURL, "google.") && strings.Contains(pageURL, "tbm=isch")
}

// scanScripts pulls image URLs out of inline script bodies on image-search
// result pages, restricted to trusted media hosts.
func (x *Extractor) scanScripts(doc *goquery.Document, set *candidateSet) {
	found := 0
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, m := range scriptImagePattern.FindAllStringSubmatch(s.Text(), -1) {
			if !trustedScriptHost(m[1]) {
				continue
			}
			set.add(m[1])
			found++
			if found >= maxScriptImages {
				return false
			}
		}
		return true
	})
}

func trustedScriptHost(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, trusted := range trustedScriptHosts {
		if host == trusted || strings.HasSuffix(host, "."+trusted) {
			return true
		}
	}
	return false
}
