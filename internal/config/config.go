package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server      ServerConfig
	Log         LogConfig
	Downloader  DownloaderConfig
	Destination DestinationConfig
	Tasks       TaskConfig
	Sessions    SessionConfig
	OAuth       OAuthConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	destination, err := loadDestinationConfig()
	if err != nil {
		return nil, err
	}

	tasks, err := loadTaskConfig()
	if err != nil {
		return nil, err
	}

	sessions, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:      server,
		Log:         loadLogConfig(),
		Downloader:  loadDownloaderConfig(),
		Destination: destination,
		Tasks:       tasks,
		Sessions:    sessions,
		OAuth:       loadOAuthConfig(),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// LogConfig 描述日志级别与格式。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  getEnvOrDefault("LOG_LEVEL", "info"),
		Format: getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

// DownloaderConfig 描述下载工具的调用方式。
type DownloaderConfig struct {
	Binary string
	// Args 为空时使用默认参数
	Args []string
}

func loadDownloaderConfig() DownloaderConfig {
	var args []string
	if raw := strings.TrimSpace(os.Getenv("DOWNLOADER_ARGS")); raw != "" {
		args = strings.Fields(raw)
	}
	return DownloaderConfig{
		Binary: getEnvOrDefault("DOWNLOADER_BIN", "yt-dlp"),
		Args:   args,
	}
}

// DestinationConfig 描述目标存储接口与对象命名。
type DestinationConfig struct {
	URL            string
	ObjectPrefix   string
	MediaExtension string
	ContentType    string
	FolderID       string
	// Timeout 为 0 表示不限制上传时长
	Timeout time.Duration
}

func loadDestinationConfig() (DestinationConfig, error) {
	timeout, err := parseDurationEnv("DESTINATION_TIMEOUT", 0)
	if err != nil {
		return DestinationConfig{}, err
	}

	return DestinationConfig{
		URL:            getEnvOrDefault("DESTINATION_URL", "https://www.googleapis.com/upload/drive/v3/files?uploadType=multipart"),
		ObjectPrefix:   getEnvOrDefault("OBJECT_PREFIX", "video_"),
		MediaExtension: getEnvOrDefault("MEDIA_EXTENSION", ".mp4"),
		ContentType:    getEnvOrDefault("MEDIA_CONTENT_TYPE", "video/mp4"),
		FolderID:       strings.TrimSpace(os.Getenv("DESTINATION_FOLDER_ID")),
		Timeout:        timeout,
	}, nil
}

// TaskConfig 描述进度轮询与任务保留策略。
type TaskConfig struct {
	PollInterval time.Duration
	// Retention 为 0 表示终态任务永久保留
	Retention time.Duration
}

func loadTaskConfig() (TaskConfig, error) {
	poll, err := parseDurationEnv("POLL_INTERVAL", time.Second)
	if err != nil {
		return TaskConfig{}, err
	}
	if poll <= 0 {
		return TaskConfig{}, fmt.Errorf("invalid POLL_INTERVAL value %q: must be positive", os.Getenv("POLL_INTERVAL"))
	}

	retention, err := parseDurationEnv("TASK_RETENTION", 0)
	if err != nil {
		return TaskConfig{}, err
	}
	if retention < 0 {
		return TaskConfig{}, fmt.Errorf("invalid TASK_RETENTION value %q: must not be negative", os.Getenv("TASK_RETENTION"))
	}

	return TaskConfig{PollInterval: poll, Retention: retention}, nil
}

// SessionConfig 描述会话凭证的存储后端。
type SessionConfig struct {
	Driver        string
	RedisAddr     string
	RedisUsername string
	RedisPassword string
	RedisDB       int
	DatabaseURL   string
	Secret        string
}

func loadSessionConfig() (SessionConfig, error) {
	redisDB := 0
	if db, err := parseOptionalIntEnv("REDIS_DB"); err != nil {
		return SessionConfig{}, err
	} else if db != nil {
		redisDB = *db
	}

	cfg := SessionConfig{
		Driver:        strings.ToLower(getEnvOrDefault("SESSION_STORE", "memory")),
		RedisAddr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisUsername: strings.TrimSpace(os.Getenv("REDIS_USERNAME")),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Secret:        os.Getenv("CREDENTIAL_SECRET"),
	}

	switch cfg.Driver {
	case "memory":
	case "redis":
		if cfg.RedisAddr == "" {
			return SessionConfig{}, fmt.Errorf("SESSION_STORE=redis requires REDIS_ADDR")
		}
	case "postgres":
		if cfg.DatabaseURL == "" {
			return SessionConfig{}, fmt.Errorf("SESSION_STORE=postgres requires DATABASE_URL")
		}
	default:
		return SessionConfig{}, fmt.Errorf("invalid SESSION_STORE value %q", cfg.Driver)
	}
	return cfg, nil
}

// OAuthConfig 描述 Google OAuth 客户端。
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// Enabled 表示是否提供了客户端凭证。
func (c OAuthConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

func loadOAuthConfig() OAuthConfig {
	var scopes []string
	if raw := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_SCOPES")); raw != "" {
		scopes = strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' })
	}
	return OAuthConfig{
		ClientID:     strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_ID")),
		ClientSecret: strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_SECRET")),
		RedirectURL:  getEnvOrDefault("GOOGLE_REDIRECT_URL", "http://localhost:8080/oauth/callback"),
		Scopes:       scopes,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
