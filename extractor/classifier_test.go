package extractor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLooksLikeMedia(t *testing.T) {
	t.Run("extension short-circuits", func(t *testing.T) {
		// No server behind this URL: the extension must decide without a
		// network call.
		x := newTestExtractor(t, Config{})
		if !x.LooksLikeMedia(context.Background(), "https://127.0.0.1:1/video.mp4") {
			t.Error("media extension not recognized")
		}
	})

	t.Run("probe detects content type", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodHead {
				t.Errorf("method = %s, want HEAD", r.Method)
			}
			w.Header().Set("Content-Type", "image/jpeg")
		}))
		defer srv.Close()

		x := newTestExtractor(t, Config{})
		if !x.LooksLikeMedia(context.Background(), srv.URL+"/cdn/asset") {
			t.Error("probed image not recognized")
		}
	})

	t.Run("html page is not media", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
		}))
		defer srv.Close()

		x := newTestExtractor(t, Config{})
		if x.LooksLikeMedia(context.Background(), srv.URL+"/page") {
			t.Error("html page treated as media")
		}
	})

	t.Run("probe failure counts as not media", func(t *testing.T) {
		x := newTestExtractor(t, Config{})
		if x.LooksLikeMedia(context.Background(), "http://127.0.0.1:1/asset") {
			t.Error("unreachable host treated as media")
		}
	})
}
