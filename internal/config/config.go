package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type GatewayConfig struct {
	BaseURL   string `json:"base_url"`
	TimeoutMS int    `json:"timeout_ms"`
	// Cookie 原样附加到每个请求的 Cookie 头（会话凭据，对客户端不透明）
	// Cookie is attached verbatim as the Cookie header (opaque session credentials).
	Cookie string `json:"cookie"`
	Token  string `json:"token"`
}

type UIConfig struct {
	NarrowWidth      int    `json:"narrow_width"`
	Locale           string `json:"locale"`
	RemoteOrder      bool   `json:"remote_order"`
	ReconcileDelayMS int    `json:"reconcile_delay_ms"`
}

type AudioConfig struct {
	Command         []string `json:"command"`
	DownloadBaseURL string   `json:"download_base_url"`
	MimeType        string   `json:"mime_type"`
}

type ServerConfig struct {
	Addr          string `json:"addr"`
	Responder     string `json:"responder"`
	Model         string `json:"model"`
	BaseURL       string `json:"base_url"`
	APIKey        string `json:"api_key"`
	HistoryTokens int    `json:"history_tokens"`
	TimeoutMS     int    `json:"timeout_ms"`
}

type StorageConfig struct {
	BaseDir string `json:"base_dir"`
}

type LogConfig struct {
	Level string `json:"level"`
	File  string `json:"file"`
}

type Config struct {
	Gateway GatewayConfig `json:"gateway"`
	UI      UIConfig      `json:"ui"`
	Audio   AudioConfig   `json:"audio"`
	Server  ServerConfig  `json:"server"`
	Storage StorageConfig `json:"storage"`
	Log     LogConfig     `json:"log"`
}

type fileUIConfig struct {
	NarrowWidth      *int    `json:"narrow_width"`
	Locale           *string `json:"locale"`
	RemoteOrder      *bool   `json:"remote_order"`
	ReconcileDelayMS *int    `json:"reconcile_delay_ms"`
}

type fileConfig struct {
	Gateway *GatewayConfig `json:"gateway"`
	UI      *fileUIConfig  `json:"ui"`
	Audio   *AudioConfig   `json:"audio"`
	Server  *ServerConfig  `json:"server"`
	Storage *StorageConfig `json:"storage"`
	Log     *LogConfig     `json:"log"`
}

func Default() Config {
	return Config{
		Gateway: GatewayConfig{
			BaseURL:   "http://localhost:8000",
			TimeoutMS: 60000,
		},
		UI: UIConfig{
			NarrowWidth: DefaultNarrowWidth,
		},
		Audio: AudioConfig{
			Command:  []string{"arecord", "-q", "-f", "cd", "-t", "wav", "-"},
			MimeType: "audio/wav",
		},
		Server: ServerConfig{
			Addr:          "127.0.0.1:8000",
			Responder:     "echo",
			Model:         "gpt-4o-mini",
			BaseURL:       "https://api.openai.com/v1",
			HistoryTokens: DefaultHistoryTokens,
			TimeoutMS:     120000,
		},
		Storage: StorageConfig{
			BaseDir: "~/.voicechat",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

const (
	DefaultNarrowWidth   = 80
	DefaultHistoryTokens = 6000
)

// Timeout 返回网关请求超时 / Timeout returns the gateway request timeout
func (g GatewayConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutMS) * time.Millisecond
}

// ReconcileDelay 发送后刷新前的等待时间 / ReconcileDelay is the wait between a reply and the refresh
func (u UIConfig) ReconcileDelay() time.Duration {
	return time.Duration(u.ReconcileDelayMS) * time.Millisecond
}

// DownloadBaseURL 录音下载地址前缀；未配置时由网关地址推导
// DownloadBaseURL is the recording download prefix, derived from the gateway when unset
func (c Config) DownloadBaseURL() string {
	if c.Audio.DownloadBaseURL != "" {
		return c.Audio.DownloadBaseURL
	}
	return c.Gateway.BaseURL + "/files/download"
}

// Extension 录音文件扩展名，由 MIME 类型推导 / Extension is the recording file extension for MimeType
func (a AudioConfig) Extension() string {
	mt, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(a.MimeType)), ";")
	switch strings.TrimSpace(mt) {
	case "audio/webm":
		return ".webm"
	case "audio/ogg":
		return ".ogg"
	case "audio/mpeg":
		return ".mp3"
	case "audio/mp4", "audio/aac":
		return ".m4a"
	default:
		return ".wav"
	}
}

// DBPath 开发服务器的 SQLite 路径 / DBPath is the development server database path
func (s StorageConfig) DBPath() string {
	return filepath.Join(s.BaseDir, "chatd.db")
}

// UploadDir 开发服务器保存上传文件的目录 / UploadDir is where the development server keeps uploads
func (s StorageConfig) UploadDir() string {
	return filepath.Join(s.BaseDir, "uploads")
}

// LogPath TUI 日志文件路径 / LogPath is the TUI log file path
func (c Config) LogPath() string {
	if strings.TrimSpace(c.Log.File) != "" {
		return c.Log.File
	}
	return filepath.Join(c.Storage.BaseDir, "logs", "voicechat.log")
}

func Load(path string) (Config, error) {
	cfg := Default()

	for _, globalPath := range globalConfigPaths() {
		if err := mergeFromFile(&cfg, globalPath); err != nil {
			return Config{}, err
		}
	}

	resolvedPath := strings.TrimSpace(path)
	if envPath := strings.TrimSpace(os.Getenv("VOICECHAT_CONFIG_PATH")); envPath != "" {
		resolvedPath = envPath
	}
	if resolvedPath == "" {
		resolvedPath = findProjectConfigPath()
	}
	if err := mergeFromFile(&cfg, resolvedPath); err != nil {
		return Config{}, err
	}

	// .env 只补充尚未设置的环境变量 / .env only fills variables that are not set yet
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	if err := normalize(&cfg); err != nil {
		return Config{}, err
	}
	return applyEnv(cfg)
}

func globalConfigPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, ".voicechat", "config.json"),
		filepath.Join(home, ".voicechat", "config.yaml"),
	}
}

func findProjectConfigPath() string {
	candidates := []string{
		"voicechat.config.json",
		"voicechat.config.yaml",
		".voicechat/config.json",
		".voicechat/config.yaml",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func mergeFromFile(cfg *Config, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}

	resolved, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("expand config path %q: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %q: %w", resolved, err)
	}

	cleaned, err := toJSON(resolved, data)
	if err != nil {
		return fmt.Errorf("parse config %q: %w", resolved, err)
	}
	var fileCfg fileConfig
	if err := json.Unmarshal(cleaned, &fileCfg); err != nil {
		return fmt.Errorf("parse config %q: %w", resolved, err)
	}
	applyFileConfig(cfg, fileCfg)
	return nil
}

// toJSON 将 YAML 或 JSONC 统一转换为 JSON
// toJSON converts YAML or JSONC input to plain JSON
func toJSON(path string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		if doc == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(doc)
	default:
		return stripJSONComments(data), nil
	}
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if fc.Gateway != nil {
		cfg.Gateway = mergeGateway(cfg.Gateway, *fc.Gateway)
	}
	if fc.UI != nil {
		if fc.UI.NarrowWidth != nil {
			cfg.UI.NarrowWidth = *fc.UI.NarrowWidth
		}
		if fc.UI.Locale != nil {
			cfg.UI.Locale = *fc.UI.Locale
		}
		if fc.UI.RemoteOrder != nil {
			cfg.UI.RemoteOrder = *fc.UI.RemoteOrder
		}
		if fc.UI.ReconcileDelayMS != nil {
			cfg.UI.ReconcileDelayMS = *fc.UI.ReconcileDelayMS
		}
	}
	if fc.Audio != nil {
		cfg.Audio = mergeAudio(cfg.Audio, *fc.Audio)
	}
	if fc.Server != nil {
		cfg.Server = mergeServer(cfg.Server, *fc.Server)
	}
	if fc.Storage != nil && strings.TrimSpace(fc.Storage.BaseDir) != "" {
		cfg.Storage.BaseDir = fc.Storage.BaseDir
	}
	if fc.Log != nil {
		if strings.TrimSpace(fc.Log.Level) != "" {
			cfg.Log.Level = fc.Log.Level
		}
		if strings.TrimSpace(fc.Log.File) != "" {
			cfg.Log.File = fc.Log.File
		}
	}
}

func mergeGateway(base GatewayConfig, override GatewayConfig) GatewayConfig {
	if strings.TrimSpace(override.BaseURL) != "" {
		base.BaseURL = override.BaseURL
	}
	if override.TimeoutMS > 0 {
		base.TimeoutMS = override.TimeoutMS
	}
	if strings.TrimSpace(override.Cookie) != "" {
		base.Cookie = override.Cookie
	}
	if strings.TrimSpace(override.Token) != "" {
		base.Token = override.Token
	}
	return base
}

func mergeAudio(base AudioConfig, override AudioConfig) AudioConfig {
	if len(override.Command) > 0 {
		base.Command = append([]string(nil), override.Command...)
	}
	if strings.TrimSpace(override.DownloadBaseURL) != "" {
		base.DownloadBaseURL = override.DownloadBaseURL
	}
	if strings.TrimSpace(override.MimeType) != "" {
		base.MimeType = override.MimeType
	}
	return base
}

func mergeServer(base ServerConfig, override ServerConfig) ServerConfig {
	if strings.TrimSpace(override.Addr) != "" {
		base.Addr = override.Addr
	}
	if strings.TrimSpace(override.Responder) != "" {
		base.Responder = override.Responder
	}
	if strings.TrimSpace(override.Model) != "" {
		base.Model = override.Model
	}
	if strings.TrimSpace(override.BaseURL) != "" {
		base.BaseURL = override.BaseURL
	}
	if strings.TrimSpace(override.APIKey) != "" {
		base.APIKey = override.APIKey
	}
	if override.HistoryTokens > 0 {
		base.HistoryTokens = override.HistoryTokens
	}
	if override.TimeoutMS > 0 {
		base.TimeoutMS = override.TimeoutMS
	}
	return base
}

func normalize(cfg *Config) error {
	cfg.Gateway.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Gateway.BaseURL), "/")
	if cfg.Gateway.BaseURL == "" {
		cfg.Gateway.BaseURL = Default().Gateway.BaseURL
	}
	if cfg.Gateway.TimeoutMS <= 0 {
		cfg.Gateway.TimeoutMS = Default().Gateway.TimeoutMS
	}

	if cfg.UI.NarrowWidth <= 0 {
		cfg.UI.NarrowWidth = DefaultNarrowWidth
	}
	if cfg.UI.ReconcileDelayMS < 0 {
		cfg.UI.ReconcileDelayMS = 0
	}
	cfg.UI.Locale = strings.TrimSpace(cfg.UI.Locale)

	cfg.Audio.Command = normalizeCommand(cfg.Audio.Command)
	if len(cfg.Audio.Command) == 0 {
		cfg.Audio.Command = Default().Audio.Command
	}
	cfg.Audio.DownloadBaseURL = strings.TrimRight(strings.TrimSpace(cfg.Audio.DownloadBaseURL), "/")
	if strings.TrimSpace(cfg.Audio.MimeType) == "" {
		cfg.Audio.MimeType = Default().Audio.MimeType
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Server.Responder)) {
	case "", "echo":
		cfg.Server.Responder = "echo"
	case "openai":
		cfg.Server.Responder = "openai"
	default:
		return fmt.Errorf("unknown server.responder %q (want echo or openai)", cfg.Server.Responder)
	}
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		cfg.Server.Addr = Default().Server.Addr
	}
	if cfg.Server.HistoryTokens <= 0 {
		cfg.Server.HistoryTokens = DefaultHistoryTokens
	}
	if cfg.Server.TimeoutMS <= 0 {
		cfg.Server.TimeoutMS = Default().Server.TimeoutMS
	}

	if strings.TrimSpace(cfg.Storage.BaseDir) == "" {
		cfg.Storage.BaseDir = Default().Storage.BaseDir
	}
	storageDir, err := expandPath(cfg.Storage.BaseDir)
	if err != nil {
		return err
	}
	cfg.Storage.BaseDir = storageDir
	if cfg.Log.File != "" {
		logFile, err := expandPath(cfg.Log.File)
		if err != nil {
			return err
		}
		cfg.Log.File = logFile
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Log.Level)) {
	case "":
		cfg.Log.Level = "info"
	case "trace", "debug", "info", "warn", "warning", "error":
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	default:
		return fmt.Errorf("invalid log.level %q", cfg.Log.Level)
	}
	return nil
}

func applyEnv(cfg Config) (Config, error) {
	if v := strings.TrimSpace(os.Getenv("VOICECHAT_BASE_URL")); v != "" {
		cfg.Gateway.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("VOICECHAT_TOKEN")); v != "" {
		cfg.Gateway.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("VOICECHAT_COOKIE")); v != "" {
		cfg.Gateway.Cookie = v
	}
	if v := strings.TrimSpace(os.Getenv("VOICECHAT_TIMEOUT_MS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid VOICECHAT_TIMEOUT_MS: %q", v)
		}
		cfg.Gateway.TimeoutMS = n
	}
	if v := strings.TrimSpace(os.Getenv("VOICECHAT_DATA_DIR")); v != "" {
		cfg.Storage.BaseDir = v
	}
	if v := strings.TrimSpace(os.Getenv("VOICECHAT_LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("VOICECHAT_LANG")); v != "" {
		cfg.UI.Locale = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" && cfg.Server.APIKey == "" {
		cfg.Server.APIKey = v
	}

	return cfg, normalize(&cfg)
}

func normalizeCommand(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		if path == "~" {
			path = home
		} else {
			path = filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return filepath.Abs(path)
}

func stripJSONComments(data []byte) []byte {
	const (
		stateNormal = iota
		stateString
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	escaped := false
	out := bytes.Buffer{}

	for i := 0; i < len(data); i++ {
		c := data[i]
		next := byte(0)
		if i+1 < len(data) {
			next = data[i+1]
		}

		switch state {
		case stateNormal:
			if c == '"' {
				state = stateString
				out.WriteByte(c)
				continue
			}
			if c == '/' && next == '/' {
				state = stateLineComment
				i++
				continue
			}
			if c == '/' && next == '*' {
				state = stateBlockComment
				i++
				continue
			}
			out.WriteByte(c)
		case stateString:
			out.WriteByte(c)
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' {
				escaped = true
				continue
			}
			if c == '"' {
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				out.WriteByte(c)
			}
		case stateBlockComment:
			if c == '*' && next == '/' {
				state = stateNormal
				i++
			}
		}
	}

	return out.Bytes()
}
