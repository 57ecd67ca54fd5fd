package app

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	HTTPAddr       string
	LogLevel       string
	LogFormat      string
	AllowedOrigins []string

	FFmpegPath  string
	YtDlpPath   string
	CookiesPath string

	DataDir        string
	CacheDir       string
	TracksDir      string
	FallbackDir    string
	CacheMaxBytes  int64
	MinQueueSize   int

	MongoURI      string
	MongoDatabase string

	AdminTokenKey string
	AdminAPIKey   string

	IcecastEnabled     bool
	IcecastHost        string
	IcecastPort        int
	IcecastMount       string
	IcecastPassword    string
	IcecastName        string
	IcecastDescription string
	IcecastGenre       string

	InitialPlaylistID    string
	InitialPlaylistTitle string
	InitialPlaylistGenre string
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":5000"),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", "text")),
		AllowedOrigins: parseCSV(getEnv("ALLOWED_ORIGINS", "")),

		FFmpegPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
		YtDlpPath:   getEnv("YTDLP_PATH", "yt-dlp"),
		CookiesPath: getEnv("COOKIES_PATH", ""),

		DataDir:       getEnv("DATA_DIR", "data"),
		CacheDir:      getEnv("CACHE_DIR", "cache"),
		TracksDir:     getEnv("TRACKS_DIR", "tracks"),
		FallbackDir:   getEnv("FALLBACK_DIR", "fallback"),
		CacheMaxBytes: getEnvInt64("CACHE_MAX_BYTES", 1<<30),
		MinQueueSize:  int(getEnvInt64("MIN_QUEUE_SIZE", 2)),

		MongoURI:      getEnv("MONGO_URI", ""),
		MongoDatabase: getEnv("MONGO_DB", "mradio"),

		AdminTokenKey: getEnv("X_ADMIN_TOKEN_KEY", ""),
		AdminAPIKey:   getEnv("X_ADMIN_API_KEY", ""),

		IcecastEnabled:     getEnvBool("ICECAST_ENABLED", false),
		IcecastHost:        getEnv("ICECAST_HOST", "localhost"),
		IcecastPort:        int(getEnvInt64("ICECAST_PORT", 8000)),
		IcecastMount:       getEnv("ICECAST_MOUNT", "/radio"),
		IcecastPassword:    getEnv("ICECAST_PASSWORD", ""),
		IcecastName:        getEnv("ICECAST_NAME", "mradio"),
		IcecastDescription: getEnv("ICECAST_DESCRIPTION", "continuous internet radio"),
		IcecastGenre:       getEnv("ICECAST_GENRE", "various"),

		InitialPlaylistID:    getEnv("INITIAL_PLAYLIST_ID", ""),
		InitialPlaylistTitle: getEnv("INITIAL_PLAYLIST_TITLE", ""),
		InitialPlaylistGenre: strings.ToLower(getEnv("INITIAL_PLAYLIST_GENRE", "")),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
