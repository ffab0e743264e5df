package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ytdlpFormat is the slice of yt-dlp's format JSON the selector needs.
type ytdlpFormat struct {
	FormatID       string  `json:"format_id"`
	Ext            string  `json:"ext"`
	Filesize       int64   `json:"filesize"`
	FilesizeApprox int64   `json:"filesize_approx"`
	Quality        float64 `json:"quality"`
}

type ytdlpInfo struct {
	Title   string        `json:"title"`
	Formats []ytdlpFormat `json:"formats"`
	Entries []ytdlpInfo   `json:"entries"`
}

// FetchYTDLP delegates to yt-dlp: probe the URL for available formats
// without downloading, pick the best one under the size budget, download
// it into a scratch directory and collect the produced files. The caller
// treats any error from this strategy as "found nothing"; it is an
// explicit best-effort link in the chain, never a hard failure.
func (x *Extractor) FetchYTDLP(ctx context.Context, rawURL string) ([]*Media, error) {
	ctx, cancel := context.WithTimeout(ctx, x.cfg.YTDLPTimeout)
	defer cancel()

	info, err := x.ytdlpProbe(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if len(info.Entries) > 0 {
		// Playlists and galleries: only the first entry is considered.
		info = &info.Entries[0]
	}
	if len(info.Formats) == 0 {
		return nil, nil
	}

	format := pickFormat(info.Formats, x.cfg.DocumentMaxBytes)

	dir, err := os.MkdirTemp(x.tempDir(), "linkgrab-ytdlp-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	if err := x.ytdlpDownload(ctx, rawURL, format.FormatID, dir); err != nil {
		return nil, err
	}

	media, err := x.collectDownloaded(rawURL, dir)
	if err != nil {
		return nil, err
	}
	if len(media) > 0 {
		x.logger.Info("ytdlp_ok", "url", rawURL, "title", info.Title, "media", len(media))
	}
	return media, nil
}

// pickFormat selects the highest-quality format whose declared or
// approximate size fits the budget. When nothing fits, it deliberately
// falls back to the first offered format; oversize results are rejected
// later at send time instead of failing the extraction outright.
func pickFormat(formats []ytdlpFormat, budget int64) ytdlpFormat {
	var best *ytdlpFormat
	for i := range formats {
		f := &formats[i]
		size := f.Filesize
		if size == 0 {
			size = f.FilesizeApprox
		}
		if size == 0 || size > budget {
			continue
		}
		if best == nil || f.Quality > best.Quality {
			best = f
		}
	}
	if best == nil {
		return formats[0]
	}
	return *best
}

func (x *Extractor) ytdlpProbe(ctx context.Context, rawURL string) (*ytdlpInfo, error) {
	if _, err := exec.LookPath(x.cfg.YTDLPPath); err != nil {
		return nil, err
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, x.cfg.YTDLPPath, "-J", "-q", "--no-warnings", rawURL)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("yt-dlp probe: %v: %s", err, strings.TrimSpace(stderr.String()))
	}

	var info ytdlpInfo
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		return nil, fmt.Errorf("yt-dlp probe json: %w", err)
	}
	return &info, nil
}

func (x *Extractor) ytdlpDownload(ctx context.Context, rawURL, formatID, dir string) error {
	args := []string{
		"-q", "--no-warnings", "--no-progress",
		"--playlist-items", "1",
		"-o", filepath.Join(dir, "%(title)s.%(ext)s"),
	}
	if formatID != "" {
		args = append(args, "-f", formatID)
	}
	args = append(args, rawURL)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, x.cfg.YTDLPPath, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("yt-dlp download: %v: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// collectDownloaded enumerates the scratch directory, keeps files with a
// supported media extension and moves each out to its own temp artifact
// so the scratch directory can be removed wholesale.
func (x *Extractor) collectDownloaded(srcURL, dir string) ([]*Media, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []*Media
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !IsSupportedMedia(name) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		final := filepath.Join(x.tempDir(), "linkgrab-"+uuid.NewString()+strings.ToLower(filepath.Ext(name)))
		if err := os.Rename(filepath.Join(dir, name), final); err != nil {
			x.logger.Warn("ytdlp_move_failed", "file", name, "error", err.Error())
			continue
		}
		out = append(out, &Media{
			SourceURL: srcURL,
			LocalPath: final,
			Name:      name,
			Size:      fi.Size(),
			Kind:      ClassifyKind("", name, final),
		})
	}
	return out, nil
}
