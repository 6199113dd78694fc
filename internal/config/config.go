package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/petervdpas/avp/internal/util"
)

type Config struct {
	Server  Server  `json:"server"`
	Paths   Paths   `json:"paths"`
	TTS     TTS     `json:"tts"`
	Limits  Limits  `json:"limits"`
	Player  Player  `json:"player"`
	Sources Sources `json:"sources"`
	Logging Logging `json:"logging"`
}

type Server struct {
	HTTPAddr string `json:"http_addr"`
	Debug    bool   `json:"debug"`
}

type Paths struct {
	LibraryDir string `json:"library_dir"` // .avp files served by the creator
	DataDir    string `json:"data_dir"`    // sqlite speech cache
}

type TTS struct {
	// Provider selects the backend: "google", "gemini", or "" to pick
	// whichever has credentials (google first).
	Provider        string `json:"provider"`
	GoogleProjectID string `json:"google_project_id"`
	GoogleAPIKey    string `json:"google_api_key"`
	GeminiAPIKey    string `json:"gemini_api_key"`
	GeminiModel     string `json:"gemini_model"`
	GeminiVoice     string `json:"gemini_voice"`
	DefaultLanguage string `json:"default_language"`
	DefaultVoice    string `json:"default_voice"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
	CacheEnabled    bool   `json:"cache_enabled"`
	CacheMaxEntries int    `json:"cache_max_entries"`

	// Reported by /api/config only; no provider is built for these.
	OpenAIAPIKey     string `json:"openai_api_key"`
	ElevenLabsAPIKey string `json:"elevenlabs_api_key"`
}

type Limits struct {
	MaxFileSizeMB            int `json:"max_file_size_mb"`
	WarnFileSizeMB           int `json:"warn_file_size_mb"`
	MaxLessonDurationMinutes int `json:"max_lesson_duration_minutes"`
	MaxKeyframes             int `json:"max_keyframes"`
}

type Player struct {
	TickMillis   int  `json:"tick_millis"`
	StrictAssets bool `json:"strict_assets"`
}

type Sources struct {
	HTTPTimeoutSeconds int `json:"http_timeout_seconds"`
}

type Logging struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // plaintext, color, json
}

func Default() Config {
	return Config{
		Server: Server{
			HTTPAddr: ":3000",
		},
		Paths: Paths{
			LibraryDir: "lessons",
			DataDir:    "data",
		},
		TTS: TTS{
			GeminiModel:     "gemini-2.5-flash-preview-tts",
			GeminiVoice:     "Kore",
			DefaultLanguage: "en-US",
			DefaultVoice:    "en-US-Neural2-C",
			TimeoutSeconds:  30,
			CacheEnabled:    true,
			CacheMaxEntries: 500,
		},
		Limits: Limits{
			MaxFileSizeMB:            10,
			WarnFileSizeMB:           8,
			MaxLessonDurationMinutes: 10,
			MaxKeyframes:             50,
		},
		Player: Player{
			TickMillis: 250,
		},
		Sources: Sources{
			HTTPTimeoutSeconds: 30,
		},
		Logging: Logging{
			Level:  "info",
			Format: "plaintext",
		},
	}
}

// MaxFileSize is the package size limit in bytes.
func (l Limits) MaxFileSize() int64 { return int64(l.MaxFileSizeMB) << 20 }

// WarnFileSize is the size above which uploads are logged as large.
func (l Limits) WarnFileSize() int64 { return int64(l.WarnFileSizeMB) << 20 }

func (c *Config) Validate() error {
	// Server
	if strings.TrimSpace(c.Server.HTTPAddr) == "" {
		return errors.New("server.http_addr is required")
	}
	if _, port, err := net.SplitHostPort(c.Server.HTTPAddr); err != nil {
		return fmt.Errorf("server.http_addr: %w", err)
	} else if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		return errors.New("server.http_addr port must be 0..65535")
	}

	// Paths
	if strings.TrimSpace(c.Paths.LibraryDir) == "" {
		return errors.New("paths.library_dir is required")
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir is required")
	}

	// TTS
	switch c.TTS.Provider {
	case "", "google", "gemini":
	default:
		return fmt.Errorf("tts.provider %q must be google, gemini or empty", c.TTS.Provider)
	}
	if c.TTS.TimeoutSeconds < 1 || c.TTS.TimeoutSeconds > 300 {
		return errors.New("tts.timeout_seconds must be 1..300")
	}
	if c.TTS.CacheEnabled && c.TTS.CacheMaxEntries < 1 {
		return errors.New("tts.cache_max_entries must be > 0 when the cache is enabled")
	}

	// Limits
	if c.Limits.MaxFileSizeMB < 1 {
		return errors.New("limits.max_file_size_mb must be > 0")
	}
	if c.Limits.WarnFileSizeMB < 0 || c.Limits.WarnFileSizeMB > c.Limits.MaxFileSizeMB {
		return errors.New("limits.warn_file_size_mb must be 0..max_file_size_mb")
	}
	if c.Limits.MaxLessonDurationMinutes < 1 {
		return errors.New("limits.max_lesson_duration_minutes must be > 0")
	}
	if c.Limits.MaxKeyframes < 1 {
		return errors.New("limits.max_keyframes must be > 0")
	}

	// Player
	if c.Player.TickMillis < 10 || c.Player.TickMillis > 5000 {
		return errors.New("player.tick_millis must be 10..5000")
	}

	if c.Sources.HTTPTimeoutSeconds < 1 {
		return errors.New("sources.http_timeout_seconds must be > 0")
	}

	// Logging
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn or error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "plaintext", "color", "json":
	default:
		return fmt.Errorf("logging.format %q must be plaintext, color or json", c.Logging.Format)
	}

	return nil
}

// HasGoogle reports whether Google Cloud TTS credentials are present.
func (t TTS) HasGoogle() bool {
	return t.GoogleProjectID != "" && t.GoogleAPIKey != ""
}

// HasGemini reports whether a Gemini API key is present.
func (t TTS) HasGemini() bool { return t.GeminiAPIKey != "" }

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides config values from environment variables. Secrets are
// usually supplied this way rather than stored in the JSON file.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 0 || port > 65535 {
			return fmt.Errorf("SERVER_PORT %q is not a valid port", v)
		}
		host, _, err := net.SplitHostPort(cfg.Server.HTTPAddr)
		if err != nil {
			host = ""
		}
		cfg.Server.HTTPAddr = net.JoinHostPort(host, strconv.Itoa(port))
	}
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&cfg.TTS.GoogleProjectID, "GOOGLE_CLOUD_PROJECT_ID")
	set(&cfg.TTS.GoogleAPIKey, "GOOGLE_CLOUD_TTS_API_KEY")
	set(&cfg.TTS.GeminiAPIKey, "GEMINI_API_KEY")
	set(&cfg.TTS.OpenAIAPIKey, "OPENAI_API_KEY")
	set(&cfg.TTS.ElevenLabsAPIKey, "ELEVENLABS_API_KEY")
	set(&cfg.TTS.Provider, "TTS_PROVIDER")
	set(&cfg.Logging.Level, "LOG_LEVEL")
	set(&cfg.Paths.LibraryDir, "AVP_LIBRARY_DIR")
	return nil
}

// Port returns the numeric port of Server.HTTPAddr, or 0.
func (c *Config) Port() int {
	_, p, err := net.SplitHostPort(c.Server.HTTPAddr)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(p)
	return n
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	// Strip UTF-8 BOM if present (common when editing JSON on Windows).
	b = stripBOM(b)

	// Start from defaults so missing JSON fields remain initialized.
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadPartial reads a config file without validation.
func LoadPartial(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	b = stripBOM(b)

	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// stripBOM removes a UTF-8 byte order mark if present.
func stripBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}

func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	return util.WriteJSONFile(path, cfg)
}

// Ensure loads config if it exists; otherwise creates a default config file.
// Returns (cfg, createdNew, err).
func Ensure(path string) (Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	} else if !os.IsNotExist(err) {
		return Config{}, false, err
	}

	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return Config{}, false, fmt.Errorf("create default config: %w", err)
	}
	return cfg, true, nil
}
