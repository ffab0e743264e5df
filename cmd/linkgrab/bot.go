package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quailyquaily/linkgrab/extractor"
	"github.com/quailyquaily/linkgrab/internal/logutil"
	"github.com/quailyquaily/linkgrab/telegram"
	"github.com/quailyquaily/linkgrab/tracker"
)

const maxURLsPerMessage = 3

var urlPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

const startText = `Send me any web URL and I will extract images and videos from it.

Supported formats:
- Images: JPG, PNG, GIF, WebP, BMP
- Videos: MP4, AVI, MOV, MKV, WebM, M4V

Commands: /help

Delivered media is auto-deleted after a while for privacy.`

const helpText = `Send a URL and I will scan it for media:
- direct media links (image.jpg, video.mp4, ...)
- video platform links (YouTube, Vimeo, ...)
- articles and posts with embedded media

Make sure the link is public; content behind a login will not work.`

type bot struct {
	api       *telegram.Client
	extractor *extractor.Extractor
	tracker   *tracker.Tracker
	logger    *slog.Logger

	photoMaxBytes    int64
	documentMaxBytes int64
	deleteTTL        time.Duration
	pollTimeout      time.Duration
	maxConcurrency   int
}

func runBot(cmd *cobra.Command, args []string) error {
	token := strings.TrimSpace(viper.GetString("telegram.bot_token"))
	if token == "" {
		return fmt.Errorf("missing telegram.bot_token (set via LINKGRAB_TELEGRAM_BOT_TOKEN or config file)")
	}

	logger, err := logutil.LoggerFromViper()
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := telegram.New(&http.Client{Timeout: 5 * time.Minute}, viper.GetString("telegram.base_url"), token)

	me, err := api.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}

	ext := extractor.New(extractor.Config{
		DocumentMaxBytes: viper.GetInt64("limits.document_max_bytes"),
		FetchTimeout:     viper.GetDuration("fetch.timeout"),
		FetchRetries:     viper.GetInt("fetch.retries"),
		FetchRetryDelay:  viper.GetDuration("fetch.retry_delay"),
		UserAgent:        viper.GetString("fetch.user_agent"),
		MaxCandidates:    viper.GetInt("scrape.max_candidates"),
		MinDimension:     viper.GetInt("scrape.min_dimension"),
		YTDLPPath:        viper.GetString("ytdlp.path"),
		YTDLPTimeout:     viper.GetDuration("ytdlp.timeout"),
	}, logger)

	b := &bot{
		api:              api,
		extractor:        ext,
		logger:           logger,
		photoMaxBytes:    viper.GetInt64("limits.photo_max_bytes"),
		documentMaxBytes: viper.GetInt64("limits.document_max_bytes"),
		deleteTTL:        viper.GetDuration("autodelete.ttl"),
		pollTimeout:      viper.GetDuration("telegram.poll_timeout"),
		maxConcurrency:   viper.GetInt("telegram.max_concurrency"),
	}
	b.tracker = tracker.New(tracker.Config{
		TTL:           viper.GetDuration("autodelete.ttl"),
		SweepInterval: viper.GetDuration("autodelete.sweep_interval"),
		WarningWindow: viper.GetDuration("autodelete.warning_window"),
	}, b, logger)

	logger.Info("bot_start",
		"bot_username", me.Username,
		"bot_id", me.ID,
		"poll_timeout", b.pollTimeout.String(),
		"autodelete_ttl", b.deleteTTL.String(),
	)

	go b.tracker.Run(ctx)
	return b.poll(ctx)
}

type job struct {
	chatID int64
	text   string
}

// poll long-polls getUpdates and dispatches messages to per-chat workers:
// one chat is processed serially, different chats in parallel up to the
// global concurrency limit.
func (b *bot) poll(ctx context.Context) error {
	var (
		mu      sync.Mutex
		workers = make(map[int64]chan job)
		offset  int64
	)
	if b.maxConcurrency <= 0 {
		b.maxConcurrency = 3
	}
	sem := make(chan struct{}, b.maxConcurrency)

	workerLocked := func(chatID int64) chan job {
		if ch, ok := workers[chatID]; ok {
			return ch
		}
		ch := make(chan job, 16)
		workers[chatID] = ch
		go func() {
			for j := range ch {
				sem <- struct{}{}
				b.handleMessage(ctx, j.chatID, j.text)
				<-sem
			}
		}()
		return ch
	}

	for {
		if ctx.Err() != nil {
			b.logger.Info("bot_stop")
			return nil
		}

		updates, next, err := b.api.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				b.logger.Info("bot_stop")
				return nil
			}
			b.logger.Warn("get_updates_error", "error", err.Error())
			time.Sleep(time.Second)
			continue
		}
		offset = next

		for _, u := range updates {
			msg := u.Msg()
			if msg == nil || msg.Chat == nil {
				continue
			}
			text := strings.TrimSpace(msg.Text)
			if text == "" {
				continue
			}
			chatID := msg.Chat.ID

			cmdWord, _ := splitCommand(text)
			switch normalizeSlashCommand(cmdWord) {
			case "/start":
				_, _ = b.api.SendMessage(ctx, chatID, startText)
				continue
			case "/help":
				_, _ = b.api.SendMessage(ctx, chatID, helpText)
				continue
			}

			mu.Lock()
			ch := workerLocked(chatID)
			mu.Unlock()

			select {
			case ch <- job{chatID: chatID, text: text}:
				b.logger.Info("task_enqueued", "chat_id", chatID, "text_len", len(text))
			default:
				b.logger.Warn("chat_queue_full", "chat_id", chatID)
			}
		}
	}
}

func (b *bot) handleMessage(ctx context.Context, chatID int64, text string) {
	urls := extractURLs(text)
	if len(urls) == 0 {
		_, _ = b.api.SendMessage(ctx, chatID,
			"No valid URLs found in your message.\nSend a web URL starting with http:// or https://.")
		return
	}
	for _, u := range urls {
		b.processURL(ctx, chatID, u)
	}
}

// extractURLs pulls up to maxURLsPerMessage well-formed URLs out of a
// message text.
func extractURLs(text string) []string {
	var out []string
	for _, m := range urlPattern.FindAllString(text, -1) {
		if !extractor.ValidURL(m) {
			continue
		}
		out = append(out, m)
		if len(out) == maxURLsPerMessage {
			break
		}
	}
	return out
}

func (b *bot) processURL(ctx context.Context, chatID int64, rawURL string) {
	status, err := b.api.SendMessage(ctx, chatID, "Processing "+truncateURL(rawURL)+"\nPlease wait while I extract media...")
	if err != nil {
		b.logger.Warn("send_status_failed", "chat_id", chatID, "error", err.Error())
	}
	edit := func(text string) {
		if status == nil {
			return
		}
		if err := b.api.EditMessageText(ctx, chatID, status.MessageID, text); err != nil {
			b.logger.Debug("edit_status_failed", "error", err.Error())
		}
	}

	media, err := b.extractor.Extract(ctx, rawURL)
	if err != nil {
		b.logger.Warn("extract_failed", "url", rawURL, "error", err.Error())
		edit(extractFailureText(rawURL, err))
		return
	}

	edit(fmt.Sprintf("Found %d media file(s). Uploading...", len(media)))

	sent := 0
	for _, m := range media {
		if err := b.sendMedia(ctx, chatID, m); err != nil {
			b.logger.Warn("send_media_failed", "chat_id", chatID, "name", m.Name, "error", err.Error())
		} else {
			sent++
		}
		m.Cleanup()
	}

	if sent > 0 {
		edit(fmt.Sprintf("Sent %d media file(s) from %s", sent, truncateURL(rawURL)))
	} else {
		edit("Failed to send media files: they may be too large or in an unsupported format.")
	}
}

// sendMedia delivers one descriptor, demoting images to documents when
// they miss the photo ceiling or fail validation, and falling back to
// document delivery when Telegram rejects the photo payload itself.
func (b *bot) sendMedia(ctx context.Context, chatID int64, m *extractor.Media) error {
	kind := m.Kind
	if kind == extractor.KindImage {
		if m.Size > b.photoMaxBytes || !extractor.ValidImageFile(m.LocalPath) {
			b.logger.Info("image_demoted_to_document", "name", m.Name, "bytes", m.Size)
			kind = extractor.KindDocument
		}
	}
	if kind == extractor.KindVideo && m.Size > b.documentMaxBytes {
		return fmt.Errorf("video too large: %d bytes (max %d)", m.Size, b.documentMaxBytes)
	}

	caption := fmt.Sprintf("%s\nSource: %s\nAuto-deletes in %s", m.Name, truncateURL(m.SourceURL), b.deleteTTL)

	var msg *telegram.Message
	var err error
	switch kind {
	case extractor.KindImage:
		msg, err = b.api.SendPhoto(ctx, chatID, m.LocalPath, caption)
		var apiErr *telegram.APIError
		if err != nil && errors.As(err, &apiErr) && (apiErr.TooLarge() || apiErr.PhotoRejected()) {
			b.logger.Info("photo_fallback_document", "name", m.Name, "reason", apiErr.Description)
			msg, err = b.api.SendDocument(ctx, chatID, m.LocalPath, m.Name, caption)
		}
	case extractor.KindVideo:
		msg, err = b.api.SendVideo(ctx, chatID, m.LocalPath, caption)
	default:
		msg, err = b.api.SendDocument(ctx, chatID, m.LocalPath, m.Name, caption)
	}
	if err != nil {
		return err
	}

	b.tracker.Track(chatID, msg.MessageID, m.Name)
	b.logger.Info("media_sent", "chat_id", chatID, "name", m.Name, "kind", string(kind), "bytes", m.Size)
	return nil
}

// WarnExpiry implements tracker.Notifier.
func (b *bot) WarnExpiry(ctx context.Context, chatID int64, filename string, remaining time.Duration) error {
	text := fmt.Sprintf("Auto-delete warning: %s will be deleted in about %s for privacy.\nSave it now if you need to keep it.",
		filename, remaining.Round(time.Minute))
	_, err := b.api.SendMessage(ctx, chatID, text)
	return err
}

// DeleteMessage implements tracker.Notifier.
func (b *bot) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return b.api.DeleteMessage(ctx, chatID, messageID)
}

func extractFailureText(rawURL string, err error) string {
	var oversize *extractor.OversizeError
	switch {
	case errors.Is(err, extractor.ErrInvalidURL):
		return "That does not look like a valid URL."
	case errors.As(err, &oversize):
		return fmt.Sprintf("The file at %s is too large to download (max %d MB).",
			truncateURL(rawURL), oversize.Limit/(1024*1024))
	case errors.Is(err, extractor.ErrNotMedia):
		return "The link returned a web page instead of a media file."
	case errors.Is(err, extractor.ErrNoMediaFound):
		return "No supported media found at:\n" + truncateURL(rawURL) +
			"\nThe page may not contain images or videos, or they are in unsupported formats."
	default:
		return "Could not fetch media from:\n" + truncateURL(rawURL) +
			"\nCheck that the link is public and accessible."
	}
}

func truncateURL(u string) string {
	const max = 100
	if len(u) <= max {
		return u
	}
	return u[:max] + "..."
}

func splitCommand(text string) (cmd string, rest string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}
	i := strings.IndexAny(text, " \n\t")
	if i == -1 {
		return text, ""
	}
	return text[:i], strings.TrimSpace(text[i:])
}

func normalizeSlashCommand(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" || !strings.HasPrefix(cmd, "/") {
		return ""
	}
	// Allow "/cmd@BotName" variants by stripping "@...".
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd)
}
