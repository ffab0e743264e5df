package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/quailyquaily/linkgrab/internal/retryutil"
)

// sniffLen bounds how much of the body head is kept for HTML detection.
const sniffLen = 1024

// FetchDirect downloads one URL into a temp artifact, subject to the
// document byte ceiling, and returns a single-element descriptor list.
// There is no partial success at this level: any failure means no
// descriptor and no artifact left behind. Transport-level failures are
// retried up to the configured budget; oversize and not-media verdicts are
// deterministic and never retried.
func (x *Extractor) FetchDirect(ctx context.Context, rawURL string) ([]*Media, error) {
	var media *Media
	err := retryutil.Do(ctx, x.logger, "direct_fetch", x.cfg.FetchRetries, x.cfg.FetchRetryDelay, func(ctx context.Context) error {
		m, err := x.downloadDirect(ctx, rawURL)
		if err != nil {
			var oversize *OversizeError
			if errors.As(err, &oversize) || errors.Is(err, ErrNotMedia) {
				return retryutil.Permanent(err)
			}
			return err
		}
		media = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return []*Media{media}, nil
}

func (x *Extractor) downloadDirect(ctx context.Context, rawURL string) (*Media, error) {
	ctx, cancel := context.WithTimeout(ctx, x.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", x.cfg.UserAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := x.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: http %d", rawURL, resp.StatusCode)
	}

	limit := x.cfg.DocumentMaxBytes
	if resp.ContentLength > limit {
		return nil, &OversizeError{Size: resp.ContentLength, Limit: limit}
	}

	contentType := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Type")))
	if strings.HasPrefix(contentType, "text/html") {
		return nil, fmt.Errorf("%w: %s served text/html", ErrNotMedia, rawURL)
	}

	ext := extFromContentType(contentType)
	if ext == "" {
		ext = extFromURL(rawURL)
	}

	dst := filepath.Join(x.tempDir(), "linkgrab-"+uuid.NewString()+ext)
	f, err := os.Create(dst)
	if err != nil {
		return nil, err
	}

	written, head, copyErr := copyWithCeiling(f, resp.Body, limit)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(dst)
		if copyErr != nil {
			return nil, copyErr
		}
		return nil, closeErr
	}

	if looksLikeHTML(head) {
		_ = os.Remove(dst)
		return nil, fmt.Errorf("%w: %s body looks like an html document", ErrNotMedia, rawURL)
	}

	name := FileName(rawURL, ext)
	m := &Media{
		SourceURL:   rawURL,
		LocalPath:   dst,
		Name:        name,
		Size:        written,
		Kind:        ClassifyKind(contentType, name, dst),
		ContentType: contentType,
	}
	x.logger.Info("direct_fetch_ok", "url", rawURL, "name", name, "bytes", written, "kind", string(m.Kind))
	return m, nil
}

// copyWithCeiling streams src into dst, aborting as soon as limit bytes
// are exceeded, and keeps the leading bytes for content sniffing. On abort
// the caller removes dst, so no artifact over the ceiling ever persists.
func copyWithCeiling(dst io.Writer, src io.Reader, limit int64) (int64, []byte, error) {
	head := make([]byte, 0, sniffLen)
	buf := make([]byte, 32*1024)
	var written int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if len(head) < sniffLen {
				take := sniffLen - len(head)
				if take > n {
					take = n
				}
				head = append(head, buf[:take]...)
			}
			written += int64(n)
			if written > limit {
				return written, head, &OversizeError{Size: written, Limit: limit}
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, head, err
			}
		}
		if readErr == io.EOF {
			return written, head, nil
		}
		if readErr != nil {
			return written, head, readErr
		}
	}
}

func looksLikeHTML(head []byte) bool {
	if bytes.Contains(bytes.ToLower(head), []byte("<html")) {
		return true
	}
	return strings.HasPrefix(http.DetectContentType(head), "text/html")
}
