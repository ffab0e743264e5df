package extractor

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func parseDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestCollectCandidates(t *testing.T) {
	const page = "https://example.com/article/"
	html := `<html><head>
		<meta property="og:image" content="/og.png">
	</head><body>
		<img src="photo.jpg" width="800" height="600">
		<img src="thumb.jpg" width="50" height="50">
		<img src="data:image/png;base64,AAAA">
		<img data-src="lazy.webp">
		<video src="/videos/clip.mp4"></video>
		<source src="clip.webm">
		<a href="download.gif">gif</a>
		<a href="/about.html">about</a>
		<img src="photo.jpg">
	</body></html>`

	x := newTestExtractor(t, Config{MinDimension: 100})
	got := x.collectCandidates(parseDoc(t, html), page)

	want := []string{
		"https://example.com/article/photo.jpg",
		"https://example.com/article/lazy.webp",
		"https://example.com/videos/clip.mp4",
		"https://example.com/article/clip.webm",
		"https://example.com/article/download.gif",
		"https://example.com/og.png",
	}
	if len(got) != len(want) {
		t.Fatalf("candidates = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidate[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCollectCandidatesSmallImagesSkipped(t *testing.T) {
	html := `<html><body>
		<img src="pixel.gif" width="1" height="1">
		<img src="wide.jpg" width="640" height="20">
		<img src="nodims.jpg">
	</body></html>`

	x := newTestExtractor(t, Config{MinDimension: 100})
	got := x.collectCandidates(parseDoc(t, html), "https://example.com/")
	if len(got) != 1 || got[0] != "https://example.com/nodims.jpg" {
		t.Errorf("candidates = %v, want only nodims.jpg", got)
	}
}

func TestCollectCandidatesScriptScan(t *testing.T) {
	// Image search result pages hide the real URLs in script bodies.
	const page = "https://www.google.com/search?tbm=isch&q=cats"
	html := `<html><body><script>
		var data = ["https://lh3.googleusercontent.com/a.jpg",
			"https://evil.example.com/b.jpg",
			"https://upload.wikimedia.org/c.png",
			"https://lh3.googleusercontent.com/d.jpg",
			"https://lh3.googleusercontent.com/e.jpg"];
	</script></body></html>`

	x := newTestExtractor(t, Config{})
	got := x.collectCandidates(parseDoc(t, html), page)

	if len(got) != maxScriptImages {
		t.Fatalf("candidates = %v, want %d trusted script images", got, maxScriptImages)
	}
	for _, c := range got {
		if strings.Contains(c, "evil.example.com") {
			t.Errorf("untrusted host leaked into candidates: %q", c)
		}
	}
}

func TestCollectCandidatesScriptScanOffForNormalPages(t *testing.T) {
	html := `<html><body><script>
		var data = ["https://lh3.googleusercontent.com/a.jpg"];
	</script></body></html>`

	x := newTestExtractor(t, Config{})
	got := x.collectCandidates(parseDoc(t, html), "https://example.com/blog")
	if len(got) != 0 {
		t.Errorf("candidates = %v, want none for a non-search page", got)
	}
}

func TestTrustedScriptHost(t *testing.T) {
	cases := []struct {
		raw  string
		want bool
	}{
		{"https://lh3.googleusercontent.com/a.jpg", true},
		{"https://upload.wikimedia.org/c.png", true},
		{"https://wikimedia.org/c.png", true},
		{"https://notwikimedia.org/c.png", false},
		{"https://wikimedia.org.evil.com/c.png", false},
		{"://bad", false},
	}
	for _, tc := range cases {
		if got := trustedScriptHost(tc.raw); got != tc.want {
			t.Errorf("trustedScriptHost(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestScrapePage(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body><img src="%s/img.jpg" width="400" height="300"></body></html>`, srv.URL)
	})
	mux.HandleFunc("/img.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(jpegBody(1024))
	})

	x := newTestExtractor(t, Config{})
	media, err := x.ScrapePage(context.Background(), srv.URL+"/page")
	if err != nil {
		t.Fatalf("ScrapePage: %v", err)
	}
	if len(media) != 1 {
		t.Fatalf("got %d media, want 1", len(media))
	}
	defer media[0].Cleanup()
	if media[0].Kind != KindImage {
		t.Errorf("kind = %q, want image", media[0].Kind)
	}
}

func TestScrapePageCapsCandidates(t *testing.T) {
	var fetched int
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		var sb strings.Builder
		sb.WriteString("<html><body>")
		for i := 0; i < 10; i++ {
			fmt.Fprintf(&sb, `<img src="%s/img%d.jpg">`, srv.URL, i)
		}
		sb.WriteString("</body></html>")
		_, _ = w.Write([]byte(sb.String()))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fetched++
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(jpegBody(256))
	})

	x := newTestExtractor(t, Config{MaxCandidates: 5})
	media, err := x.ScrapePage(context.Background(), srv.URL+"/page")
	if err != nil {
		t.Fatalf("ScrapePage: %v", err)
	}
	for _, m := range media {
		m.Cleanup()
	}
	if fetched != 5 {
		t.Errorf("candidate downloads = %d, want 5", fetched)
	}
}

func TestScrapePageNothingFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><p>just text</p></body></html>"))
	}))
	defer srv.Close()

	x := newTestExtractor(t, Config{})
	media, err := x.ScrapePage(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("ScrapePage: %v", err)
	}
	if media != nil {
		t.Errorf("media = %v, want nil for an empty page", media)
	}
}

func TestScrapePageSkipsFailingCandidates(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body>
			<img src="%s/missing.jpg">
			<img src="%s/ok.jpg">
		</body></html>`, srv.URL, srv.URL)
	})
	mux.HandleFunc("/missing.jpg", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/ok.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(jpegBody(512))
	})

	x := newTestExtractor(t, Config{FetchRetries: 1})
	media, err := x.ScrapePage(context.Background(), srv.URL+"/page")
	if err != nil {
		t.Fatalf("ScrapePage: %v", err)
	}
	if len(media) != 1 {
		t.Fatalf("got %d media, want 1 (failed candidate skipped)", len(media))
	}
	media[0].Cleanup()
}
