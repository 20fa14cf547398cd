package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingJWTSecret はJWT署名用シークレットが設定されていないことを表す。
var ErrMissingJWTSecret = errors.New("config: auth.jwt_secret（JWT_SECRET）が設定されていません")

// デフォルト値。
const (
	defaultPort            = "5000"
	defaultShutdownTimeout = 10 * time.Second
	defaultDriver          = DriverSQLite
	defaultSQLiteDSN       = "file:catalog.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
)

// データベースドライバ名。
const (
	// DriverSQLite は modernc.org/sqlite を使用する。
	DriverSQLite = "sqlite"
	// DriverPgx は github.com/jackc/pgx/v5/stdlib を使用する。
	DriverPgx = "pgx"
)

// Config はサーバー全体の設定。
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	CORS     CORSConfig     `yaml:"cors"`
}

// ServerConfig はHTTPサーバーの設定。
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"-"`

	ShutdownTimeoutRaw string `yaml:"shutdown_timeout"`
}

// AuthConfig は認証ゲートの設定。
type AuthConfig struct {
	// JWTSecret はトークン検証用の共有鍵。デフォルト値は持たない。
	JWTSecret string `yaml:"jwt_secret"`
	// Leeway は有効期限判定で許容する時計のずれ。
	Leeway time.Duration `yaml:"-"`

	LeewayRaw string `yaml:"leeway"`
}

// DatabaseConfig はドキュメントストアの接続設定。
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LoggingConfig はロガーの設定。
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CORSConfig はクロスオリジンリクエストの設定。
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load は設定を読み込む。path が空の場合は環境変数とデフォルト値のみを使う。
// 検証は行わないので、呼び出し側で Validate を呼ぶこと。
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

// load は環境変数の参照方法を差し替え可能にした Load の実装。
func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		expanded := expandEnvVars(string(data), lookup)
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルのパースに失敗: %w", err)
		}
	}

	applyEnv(&cfg, lookup)
	applyDefaults(&cfg)

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("期間指定のパースに失敗: %w", err)
	}

	return &cfg, nil
}

// envVarPattern は ${VAR_NAME} 形式にマッチする。
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars は ${VAR_NAME} を環境変数の値に置き換える。未設定の変数は空文字列になる。
func expandEnvVars(s string, lookup func(string) (string, bool)) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		v, _ := lookup(name)
		return v
	})
}

// applyEnv は環境変数で設定を上書きする。空の値は無視する。
func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	set("PORT", &cfg.Server.Port)
	set("SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeoutRaw)
	set("JWT_SECRET", &cfg.Auth.JWTSecret)
	set("JWT_LEEWAY", &cfg.Auth.LeewayRaw)
	set("DATABASE_DRIVER", &cfg.Database.Driver)
	set("DATABASE_DSN", &cfg.Database.DSN)
	set("LOG_LEVEL", &cfg.Logging.Level)
	set("LOG_FORMAT", &cfg.Logging.Format)

	if v, ok := lookup("CORS_ALLOWED_ORIGINS"); ok && v != "" {
		cfg.CORS.AllowedOrigins = splitList(v)
	}
}

// applyDefaults は未設定の項目にデフォルト値を設定する。JWTSecret は対象外。
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = defaultPort
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = defaultDriver
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == DriverSQLite {
		cfg.Database.DSN = defaultSQLiteDSN
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaultLogFormat
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"*"}
	}
}

// parseDurations は期間指定の文字列を time.Duration に変換する。
func parseDurations(cfg *Config) error {
	var err error

	cfg.Server.ShutdownTimeout = defaultShutdownTimeout
	if cfg.Server.ShutdownTimeoutRaw != "" {
		cfg.Server.ShutdownTimeout, err = time.ParseDuration(cfg.Server.ShutdownTimeoutRaw)
		if err != nil {
			return fmt.Errorf("server.shutdown_timeout %q: %w", cfg.Server.ShutdownTimeoutRaw, err)
		}
	}

	if cfg.Auth.LeewayRaw != "" {
		cfg.Auth.Leeway, err = time.ParseDuration(cfg.Auth.LeewayRaw)
		if err != nil {
			return fmt.Errorf("auth.leeway %q: %w", cfg.Auth.LeewayRaw, err)
		}
	}

	return nil
}

// Validate は起動前に必須項目と値の妥当性を検証する。
// JWT署名用シークレットが無い場合は ErrMissingJWTSecret を返す。
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if c.Auth.Leeway < 0 {
		return fmt.Errorf("auth.leeway は0以上である必要があります: %s", c.Auth.Leeway)
	}
	if c.Server.Port == "" {
		return errors.New("server.port は必須です")
	}

	switch c.Database.Driver {
	case DriverSQLite, DriverPgx:
	default:
		return fmt.Errorf("database.driver %q はサポートされていません（%s または %s）", c.Database.Driver, DriverSQLite, DriverPgx)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn は必須です")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q は不正です", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format %q は不正です", c.Logging.Format)
	}

	return nil
}

// splitList はカンマ区切りの文字列を分割し、空要素を除く。
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
