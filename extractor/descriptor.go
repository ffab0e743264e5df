package extractor

import (
	"crypto/md5"
	"encoding/hex"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Kind classifies a media item for delivery purposes.
type Kind string

const (
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
	KindDocument Kind = "document"
)

// Media describes one extracted media item and its temporary storage.
// LocalPath is exclusively owned by the descriptor: whoever consumes it
// must call Cleanup exactly once, on every exit path.
type Media struct {
	SourceURL   string
	LocalPath   string
	Name        string
	Size        int64
	Kind        Kind
	ContentType string
}

// Cleanup removes the temp artifact. Subsequent calls are no-ops.
func (m *Media) Cleanup() {
	if m.LocalPath == "" {
		return
	}
	_ = os.Remove(m.LocalPath)
	m.LocalPath = ""
}

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".bmp": true,
}

var videoExts = map[string]bool{
	".mp4": true, ".avi": true, ".mov": true, ".mkv": true, ".webm": true, ".m4v": true,
}

// IsSupportedMedia reports whether the URL or file path carries a supported
// image or video extension.
func IsSupportedMedia(pathOrURL string) bool {
	ext := extOf(pathOrURL)
	return imageExts[ext] || videoExts[ext]
}

func extOf(pathOrURL string) string {
	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		return extFromURL(pathOrURL)
	}
	return strings.ToLower(filepath.Ext(pathOrURL))
}

func extFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	p, err := url.PathUnescape(u.Path)
	if err != nil {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}

// extFromContentType maps a Content-Type header to a file extension.
// The common media types are pinned explicitly so we never depend on the
// host's mime database for them.
func extFromContentType(ct string) string {
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	switch mt {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "video/quicktime":
		return ".mov"
	case "video/x-matroska":
		return ".mkv"
	}
	exts, err := mime.ExtensionsByType(mt)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return strings.ToLower(exts[0])
}

// ClassifyKind is the single authority for media-kind decisions: declared
// content type first, then the filename extension, then a byte-level sniff
// of the materialized file. Callers may demote image to document downstream
// (failed validation, photo ceiling) but never re-derive the kind.
func ClassifyKind(contentType, name, localPath string) Kind {
	ct := strings.ToLower(contentType)
	switch {
	case strings.HasPrefix(ct, "image/"):
		return KindImage
	case strings.HasPrefix(ct, "video/"):
		return KindVideo
	}

	ext := strings.ToLower(filepath.Ext(name))
	if imageExts[ext] {
		return KindImage
	}
	if videoExts[ext] {
		return KindVideo
	}

	if localPath != "" {
		if k, ok := kindFromFileHeader(localPath); ok {
			return k
		}
	}
	return KindDocument
}

func kindFromFileHeader(localPath string) (Kind, bool) {
	f, err := os.Open(localPath)
	if err != nil {
		return KindDocument, false
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := f.Read(head)
	if n == 0 && err != nil {
		return KindDocument, false
	}
	ct := http.DetectContentType(head[:n])
	switch {
	case strings.HasPrefix(ct, "image/"):
		return KindImage, true
	case strings.HasPrefix(ct, "video/"):
		return KindVideo, true
	}
	return KindDocument, false
}

// ValidImageFile reports whether the file decodes as an image header.
// Formats outside the stdlib decoders (webp, bmp) are accepted by extension.
func ValidImageFile(localPath string) bool {
	ext := strings.ToLower(filepath.Ext(localPath))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif":
	default:
		return imageExts[ext]
	}

	f, err := os.Open(localPath)
	if err != nil {
		return false
	}
	defer f.Close()

	_, _, err = image.DecodeConfig(f)
	return err == nil
}

// FileName derives a display name from the URL path. When the path carries
// no usable name, one is synthesized deterministically from a hash of the
// URL so repeated extractions agree.
func FileName(rawURL, ext string) string {
	if u, err := url.Parse(rawURL); err == nil {
		p, perr := url.PathUnescape(u.Path)
		if perr != nil {
			p = u.Path
		}
		base := path.Base(p)
		if base != "" && base != "/" && base != "." && strings.Contains(base, ".") {
			return base
		}
	}
	sum := md5.Sum([]byte(rawURL))
	return "media_" + hex.EncodeToString(sum[:])[:8] + ext
}

// ValidURL reports whether the string parses as an absolute http(s) URL
// with a host. Anything else is rejected before any network call.
func ValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
