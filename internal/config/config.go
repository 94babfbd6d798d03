// Package config reads application settings from env and .env files
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/wb-go/wbf/config"
)

// Getter - источник настроек, его реализует *config.Config.
// Типизированные геттеры возвращают нулевое значение, если строку не удалось разобрать.
type Getter interface {
	SetDefault(key string, value any)
	GetString(key string) string
	GetInt(key string) int
	GetFloat64(key string) float64
	GetDuration(key string) time.Duration
}

type AppConfig struct {
	Port     string
	GinMode  string
	LogLevel string

	PreviewMaxWidth  int
	PreviewMaxHeight int
	JPEGQuality      int

	VideoWorkers     int
	VideoFPSFallback float64
	FFmpegPath       string
	FFprobePath      string
	MagickPath       string

	ExportWorkers   int
	ExportQueueSize int

	SessionTTL      time.Duration
	JanitorInterval time.Duration
	MaxUploadMB     int
	MaxStorageMB    int
}

var defaults = map[string]any{
	"APP_PORT":  "8080",
	"GIN_MODE":  "release",
	"LOG_LEVEL": "info",

	"PREVIEW_MAX_WIDTH":  1280,
	"PREVIEW_MAX_HEIGHT": 720,
	"JPEG_QUALITY":       92,

	"VIDEO_WORKERS":      2,
	"VIDEO_FPS_FALLBACK": 25.0,
	"FFMPEG_PATH":        "ffmpeg",
	"FFPROBE_PATH":       "ffprobe",
	"MAGICK_PATH":        "magick",

	"EXPORT_WORKERS":    1,
	"EXPORT_QUEUE_SIZE": 16,

	"SESSION_TTL":      2 * time.Hour,
	"JANITOR_INTERVAL": time.Minute,
	"MAX_UPLOAD_MB":    512,
	"MAX_STORAGE_MB":   4096,
}

// Load enables env lookups and reads envFile if it exists.
func Load(envFile string) (*AppConfig, error) {
	cfg := config.New()
	cfg.EnableEnv("")

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := cfg.LoadEnvFiles(envFile); err != nil {
				return nil, fmt.Errorf("load env file %q: %w", envFile, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat env file %q: %w", envFile, err)
		}
	}

	return FromGetter(cfg)
}

func FromGetter(g Getter) (*AppConfig, error) {
	for key, value := range defaults {
		g.SetDefault(key, value)
	}

	str := func(key string) string { return strings.TrimSpace(g.GetString(key)) }
	c := &AppConfig{
		Port:     str("APP_PORT"),
		GinMode:  str("GIN_MODE"),
		LogLevel: str("LOG_LEVEL"),

		PreviewMaxWidth:  g.GetInt("PREVIEW_MAX_WIDTH"),
		PreviewMaxHeight: g.GetInt("PREVIEW_MAX_HEIGHT"),
		JPEGQuality:      g.GetInt("JPEG_QUALITY"),

		VideoWorkers:     g.GetInt("VIDEO_WORKERS"),
		VideoFPSFallback: g.GetFloat64("VIDEO_FPS_FALLBACK"),
		FFmpegPath:       str("FFMPEG_PATH"),
		FFprobePath:      str("FFPROBE_PATH"),
		MagickPath:       str("MAGICK_PATH"),

		ExportWorkers:   g.GetInt("EXPORT_WORKERS"),
		ExportQueueSize: g.GetInt("EXPORT_QUEUE_SIZE"),

		SessionTTL:      g.GetDuration("SESSION_TTL"),
		JanitorInterval: g.GetDuration("JANITOR_INTERVAL"),
		MaxUploadMB:     g.GetInt("MAX_UPLOAD_MB"),
		MaxStorageMB:    g.GetInt("MAX_STORAGE_MB"),
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// validate ловит и явные ошибки, и неразобранные значения: геттеры отдают для них ноль
func (c *AppConfig) validate() error {
	switch {
	case c.Port == "":
		return errors.New("APP_PORT must not be empty")
	case c.PreviewMaxWidth < 1 || c.PreviewMaxHeight < 1:
		return fmt.Errorf("PREVIEW_MAX_WIDTH/PREVIEW_MAX_HEIGHT must be positive, got %dx%d", c.PreviewMaxWidth, c.PreviewMaxHeight)
	case c.JPEGQuality < 1 || c.JPEGQuality > 100:
		return fmt.Errorf("JPEG_QUALITY must be in 1..100, got %d", c.JPEGQuality)
	case c.VideoWorkers < 1:
		return fmt.Errorf("VIDEO_WORKERS must be positive, got %d", c.VideoWorkers)
	case c.VideoFPSFallback <= 0:
		return fmt.Errorf("VIDEO_FPS_FALLBACK must be positive, got %v", c.VideoFPSFallback)
	case c.ExportWorkers < 1:
		return fmt.Errorf("EXPORT_WORKERS must be positive, got %d", c.ExportWorkers)
	case c.ExportQueueSize < 1:
		return fmt.Errorf("EXPORT_QUEUE_SIZE must be positive, got %d", c.ExportQueueSize)
	// число без единиц viper читает как наносекунды
	case c.SessionTTL < time.Second:
		return fmt.Errorf("SESSION_TTL must be a positive duration like 90m, got %v", c.SessionTTL)
	case c.JanitorInterval < time.Second:
		return fmt.Errorf("JANITOR_INTERVAL must be a positive duration like 1m, got %v", c.JanitorInterval)
	case c.MaxUploadMB < 1:
		return fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.MaxUploadMB)
	case c.MaxStorageMB < 0:
		return fmt.Errorf("MAX_STORAGE_MB must not be negative, got %d", c.MaxStorageMB)
	}
	return nil
}
