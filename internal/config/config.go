package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"ledpong/utils"
)

const (
	envPrefix    = "LEDPONG"
	configName   = "ledpong"
	configEnvKey = envPrefix + "_CONFIG"
)

var (
	ErrInvalidPort      = errors.New("port must be between 1 and 65535")
	ErrInvalidTickRate  = errors.New("tickRate must be positive")
	ErrInvalidDelta     = errors.New("maxDeltaTime must be positive")
	ErrInvalidLogFormat = errors.New("logFormat must be text or json")
	ErrInvalidTokenTTL  = errors.New("tokenTTL must be positive")
)

// Config はサーバーとボットの実行時設定です。
type Config struct {
	Addr      string `mapstructure:"addr"`
	Port      int    `mapstructure:"port"`
	LogLevel  string `mapstructure:"logLevel"`
	LogFormat string `mapstructure:"logFormat"`
	LogFile   string `mapstructure:"logFile"`

	TickRate     int           `mapstructure:"tickRate"`
	MaxDeltaTime float64       `mapstructure:"maxDeltaTime"`
	PingInterval time.Duration `mapstructure:"pingInterval"`
	IdleTimeout  time.Duration `mapstructure:"idleTimeout"`
	DefaultRoom  string        `mapstructure:"defaultRoom"`
	Seed         uint64        `mapstructure:"seed"`

	// authSecret が空なら /ws は認証なし
	AuthSecret string        `mapstructure:"authSecret"`
	TokenTTL   time.Duration `mapstructure:"tokenTTL"`

	// otlpEndpoint が空ならOTLPエクスポートは無効
	ServiceName  string `mapstructure:"serviceName"`
	OTLPEndpoint string `mapstructure:"otlpEndpoint"`
	OTLPInsecure bool   `mapstructure:"otlpInsecure"`

	BotCount  int    `mapstructure:"botCount"`
	ServerURL string `mapstructure:"serverURL"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", "localhost")
	v.SetDefault("port", 9090)
	v.SetDefault("logLevel", "info")
	v.SetDefault("logFormat", "text")
	v.SetDefault("logFile", "")

	v.SetDefault("tickRate", 60)
	v.SetDefault("maxDeltaTime", 0.1)
	v.SetDefault("pingInterval", "5s")
	v.SetDefault("idleTimeout", "30s")
	v.SetDefault("defaultRoom", "default")
	v.SetDefault("seed", 0)

	v.SetDefault("authSecret", "")
	v.SetDefault("tokenTTL", "1h")

	v.SetDefault("serviceName", "ledpong")
	v.SetDefault("otlpEndpoint", "")
	v.SetDefault("otlpInsecure", true)

	v.SetDefault("botCount", 1)
	v.SetDefault("serverURL", "")
}

// bindEnv は LEDPONG_ 接頭辞に加えて従来の環境変数名も受け付けます。
func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	legacy := map[string]string{
		"addr":     "ADDR",
		"port":     "PORT",
		"botCount": "BOT_COUNT",
	}
	for key, name := range legacy {
		if err := v.BindEnv(key, envPrefix+"_"+strings.ToUpper(key), name); err != nil {
			return fmt.Errorf("binding env %s: %w", name, err)
		}
	}
	return nil
}

// LoadEnvFile は .env ファイルを環境変数に読み込みます。ファイルが無い場合は何もしません。
// 既に設定されている環境変数は上書きしません。
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// Load は既定値、設定ファイル、環境変数の順に設定を重ねて返します。
// configFile が空なら LEDPONG_CONFIG、それも無ければカレントディレクトリの ledpong.{json,yaml,toml} を探します。
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if configFile == "" {
		configFile = utils.GetEnvDefault(configEnvKey, "")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidPort, c.Port))
	}
	if c.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidTickRate, c.TickRate))
	}
	if c.MaxDeltaTime <= 0 || !utils.IsFinite(c.MaxDeltaTime) {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalidDelta, c.MaxDeltaTime))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.LogFormat))
	}
	if c.AuthSecret != "" && c.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidTokenTTL, c.TokenTTL))
	}
	return errors.Join(errs...)
}

// ListenAddr は host:port 形式の待ち受けアドレスです。
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Addr, strconv.Itoa(c.Port))
}

// WebSocketURL はボットの接続先です。serverURL が未設定なら待ち受けアドレスから組み立てます。
func (c *Config) WebSocketURL() string {
	if c.ServerURL != "" {
		return c.ServerURL
	}
	return "ws://" + c.ListenAddr() + "/ws"
}
