package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 구조체 - 모든 환경변수를 담음
type Config struct {
	// Server
	Port   string
	AppEnv string

	// Gemini API
	GeminiAPIKeys      []string
	GeminiModel        string
	UpstreamTimeout    time.Duration
	FailoverOnKeyError bool

	// Upload
	MaxUploadMB int

	// Redis (선택 - 여러 인스턴스가 키 로테이션을 공유할 때만)
	RedisURL       string
	RedisCursorKey string
}

// Options - 로더 동작 설정
type Options struct {
	EnvFile string
}

// maxNumberedKeys - GEMINI_API_KEY_2 .. GEMINI_API_KEY_N 탐색 상한
const maxNumberedKeys = 16

// LoadConfig - .env + 환경변수 로드
func LoadConfig(opts Options) (*Config, error) {
	// .env 파일 로드 (있으면)
	if opts.EnvFile != "" {
		_ = godotenv.Load(opts.EnvFile)
	} else {
		_ = godotenv.Load()
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	timeout, err := parseTimeout(v.GetString("UPSTREAM_TIMEOUT"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:   strings.TrimSpace(v.GetString("PORT")),
		AppEnv: strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV"))),

		GeminiAPIKeys:      collectAPIKeys(v),
		GeminiModel:        strings.TrimSpace(v.GetString("GEMINI_MODEL")),
		UpstreamTimeout:    timeout,
		FailoverOnKeyError: v.GetBool("FAILOVER_ON_KEY_ERROR"),

		MaxUploadMB: v.GetInt("MAX_UPLOAD_MB"),

		RedisURL:       strings.TrimSpace(v.GetString("REDIS_URL")),
		RedisCursorKey: strings.TrimSpace(v.GetString("REDIS_CURSOR_KEY")),
	}

	// 필수 환경변수 검증
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("GEMINI_MODEL", "gemini-2.5-flash-image")
	v.SetDefault("UPSTREAM_TIMEOUT", "3m")
	v.SetDefault("FAILOVER_ON_KEY_ERROR", false)
	v.SetDefault("MAX_UPLOAD_MB", 10)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_CURSOR_KEY", "relay:gemini:cursor")
}

// parseTimeout - "90s", "3m" 같은 Go duration 또는 단위 없는 정수(초)
func parseTimeout(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid UPSTREAM_TIMEOUT %q: use seconds or a duration like 90s", raw)
	}
	return d, nil
}

// collectAPIKeys - GEMINI_API_KEYS(콤마 구분) + GEMINI_API_KEY + GEMINI_API_KEY_2..N
// 순서 유지, 중복 제거
func collectAPIKeys(v *viper.Viper) []string {
	var raw []string
	raw = append(raw, strings.Split(v.GetString("GEMINI_API_KEYS"), ",")...)
	raw = append(raw, v.GetString("GEMINI_API_KEY"))
	for i := 2; i <= maxNumberedKeys; i++ {
		raw = append(raw, os.Getenv(fmt.Sprintf("GEMINI_API_KEY_%d", i)))
	}

	seen := make(map[string]struct{}, len(raw))
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// Validate - 필수 값 검증 (누락 항목을 한번에 모아서 반환)
func (c *Config) Validate() error {
	var missing []string

	if c.Port == "" {
		missing = append(missing, "PORT")
	}
	if len(c.GeminiAPIKeys) == 0 {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if c.GeminiModel == "" {
		missing = append(missing, "GEMINI_MODEL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be > 0")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be > 0")
	}
	if c.RedisURL != "" && c.RedisCursorKey == "" {
		return fmt.Errorf("REDIS_CURSOR_KEY must be provided when REDIS_URL is set")
	}
	return nil
}

// IsDevelopment - 개발 모드 여부 (업스트림 원문 노출)
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development" || c.AppEnv == "dev"
}

// MaxUploadBytes - 업로드 상한 (bytes)
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// ListenAddr - http.Server 주소
func (c *Config) ListenAddr() string {
	return ":" + c.Port
}
