package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	// Telegram
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.base_url", "https://api.telegram.org")
	viper.SetDefault("telegram.poll_timeout", 30*time.Second)
	viper.SetDefault("telegram.max_concurrency", 3)

	// Size ceilings
	viper.SetDefault("limits.photo_max_bytes", int64(200*1024*1024))
	viper.SetDefault("limits.document_max_bytes", int64(3*1024*1024*1024))

	// Fetching
	viper.SetDefault("fetch.timeout", 30*time.Second)
	viper.SetDefault("fetch.retries", 3)
	viper.SetDefault("fetch.retry_delay", 2*time.Second)
	viper.SetDefault("fetch.user_agent", "")

	// Page scraping
	viper.SetDefault("scrape.max_candidates", 5)
	viper.SetDefault("scrape.min_dimension", 100)

	// yt-dlp
	viper.SetDefault("ytdlp.path", "yt-dlp")
	viper.SetDefault("ytdlp.timeout", 5*time.Minute)

	// Auto-delete
	viper.SetDefault("autodelete.ttl", time.Hour)
	viper.SetDefault("autodelete.sweep_interval", 10*time.Minute)
	viper.SetDefault("autodelete.warning_window", 5*time.Minute)

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)
}
