// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	ListenAddr          string        `mapstructure:"listen_addr"`
	RPCList             []string      `mapstructure:"rpc_list"`
	PostgresURL         string        `mapstructure:"postgres_url"`
	JWTSecret           string        `mapstructure:"jwt_secret"`
	CustodialPrivateKey string        `mapstructure:"custodial_private_key"`
	GitHubAPIURL        string        `mapstructure:"github_api_url"`
	GitLabAPIURL        string        `mapstructure:"gitlab_api_url"`
	WebhookURL          string        `mapstructure:"webhook_url"`
	ConfirmTimeout      time.Duration `mapstructure:"confirm_timeout"`
	Retries             int           `mapstructure:"retries"`
	DebugLogging        bool          `mapstructure:"debug_logging"`
	LogFile             string        `mapstructure:"log_file"`
	AllowedOrigins      []string      `mapstructure:"allowed_origins"`
	Oracle              OracleConfig  `mapstructure:"oracle"`
	Launch              LaunchConfig  `mapstructure:"launch"`
	Policy              PolicyConfig  `mapstructure:"policy"`
}

// OracleConfig – параметры клиента рыночных данных.
type OracleConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	TradesLimit int           `mapstructure:"trades_limit"`
}

// LaunchConfig – параметры сервиса создания токенов.
type LaunchConfig struct {
	APIURL           string  `mapstructure:"api_url"`
	Slippage         float64 `mapstructure:"slippage"`
	PriorityFee      float64 `mapstructure:"priority_fee"`
	InitialBuyAmount float64 `mapstructure:"initial_buy_amount"`
}

// PolicyConfig holds the custody policy constants. All amounts are in SOL.
type PolicyConfig struct {
	FeeRate          float64       `mapstructure:"fee_rate"`
	MinClaim         float64       `mapstructure:"min_claim"`
	SafetyBuffer     float64       `mapstructure:"safety_buffer"`
	PaymentTolerance float64       `mapstructure:"payment_tolerance"`
	DeploymentCost   float64       `mapstructure:"deployment_cost"`
	QuoteTTL         time.Duration `mapstructure:"quote_ttl"`
	// ClaimPriority – уровень compute budget для claim-транзакции (none/low/medium/high).
	ClaimPriority string `mapstructure:"claim_priority"`
}

const (
	DefaultListenAddr       = ":8080"
	DefaultConfirmTimeout   = 60 * time.Second
	DefaultRetries          = 3
	DefaultOracleURL        = "https://frontend-api-v3.pump.fun"
	DefaultOracleTimeout    = 5 * time.Second
	DefaultTradesLimit      = 200
	DefaultGitHubAPIURL     = "https://api.github.com"
	DefaultGitLabAPIURL     = "https://gitlab.com/api/v4"
	DefaultLaunchAPIURL     = "https://pumpportal.fun/api/trade-local"
	DefaultSlippage         = 10
	DefaultPriorityFee      = 0.0005
	DefaultFeeRate          = 0.005
	DefaultMinClaim         = 0.0001
	DefaultSafetyBuffer     = 1.0
	DefaultPaymentTolerance = 0.95
	DefaultDeploymentCost   = 0.05
	DefaultQuoteTTL         = 90 * time.Second
	DefaultClaimPriority    = "low"
	DefaultLogFile          = "custody.log"
)

// DefaultAllowedOrigins – origin веб-клиента для локальной разработки.
var DefaultAllowedOrigins = []string{"http://localhost:3000"}

func LoadConfig(path string) (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"listen_addr":              DefaultListenAddr,
		"confirm_timeout":          DefaultConfirmTimeout,
		"retries":                  DefaultRetries,
		"log_file":                 DefaultLogFile,
		"allowed_origins":          DefaultAllowedOrigins,
		"github_api_url":           DefaultGitHubAPIURL,
		"gitlab_api_url":           DefaultGitLabAPIURL,
		"oracle.base_url":          DefaultOracleURL,
		"oracle.timeout":           DefaultOracleTimeout,
		"oracle.trades_limit":      DefaultTradesLimit,
		"launch.api_url":           DefaultLaunchAPIURL,
		"launch.slippage":          DefaultSlippage,
		"launch.priority_fee":      DefaultPriorityFee,
		"policy.fee_rate":          DefaultFeeRate,
		"policy.min_claim":         DefaultMinClaim,
		"policy.safety_buffer":     DefaultSafetyBuffer,
		"policy.payment_tolerance": DefaultPaymentTolerance,
		"policy.deployment_cost":   DefaultDeploymentCost,
		"policy.quote_ttl":         DefaultQuoteTTL,
		"policy.claim_priority":    DefaultClaimPriority,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	for _, rpcURL := range cfg.RPCList {
		if err := validateURLWithCache(rpcURL, "http"); err != nil {
			return errors.New("invalid RPC URL protocol")
		}
	}
	for _, u := range []string{cfg.Oracle.BaseURL, cfg.GitHubAPIURL, cfg.GitLabAPIURL, cfg.Launch.APIURL} {
		if err := validateURLWithCache(u, "http"); err != nil {
			return errors.New("invalid service URL: " + u)
		}
	}
	if cfg.WebhookURL != "" {
		if err := validateURLWithCache(cfg.WebhookURL, "https"); err != nil {
			return errors.New("webhook URL must use HTTPS")
		}
	}
	if cfg.JWTSecret == "" {
		return errors.New("missing jwt_secret")
	}
	if len(cfg.AllowedOrigins) == 0 {
		return errors.New("allowed_origins is empty")
	}
	for _, origin := range cfg.AllowedOrigins {
		if err := validateOrigin(origin); err != nil {
			return err
		}
	}
	if cfg.ConfirmTimeout <= 0 {
		return errors.New("invalid confirm_timeout")
	}
	if cfg.Retries < 0 {
		return errors.New("invalid retries count")
	}
	if cfg.Oracle.Timeout <= 0 {
		return errors.New("invalid oracle.timeout")
	}
	if cfg.Oracle.TradesLimit <= 0 {
		return errors.New("invalid oracle.trades_limit")
	}
	return validatePolicy(&cfg.Policy)
}

func validatePolicy(p *PolicyConfig) error {
	if p.FeeRate <= 0 || p.FeeRate >= 1 {
		return errors.New("policy.fee_rate must be in (0, 1)")
	}
	if p.PaymentTolerance <= 0 || p.PaymentTolerance > 1 {
		return errors.New("policy.payment_tolerance must be in (0, 1]")
	}
	if p.MinClaim < 0 {
		return errors.New("invalid policy.min_claim")
	}
	if p.SafetyBuffer < 0 {
		return errors.New("invalid policy.safety_buffer")
	}
	if p.DeploymentCost < 0 {
		return errors.New("invalid policy.deployment_cost")
	}
	if p.QuoteTTL <= 0 {
		return errors.New("invalid policy.quote_ttl")
	}
	return nil
}

// FeeRateDecimal и остальные хелперы переводят float-значения конфига в decimal.
func (p PolicyConfig) FeeRateDecimal() decimal.Decimal {
	return decimal.NewFromFloat(p.FeeRate)
}

func (p PolicyConfig) MinClaimDecimal() decimal.Decimal {
	return decimal.NewFromFloat(p.MinClaim)
}

func (p PolicyConfig) SafetyBufferDecimal() decimal.Decimal {
	return decimal.NewFromFloat(p.SafetyBuffer)
}

func (p PolicyConfig) PaymentToleranceDecimal() decimal.Decimal {
	return decimal.NewFromFloat(p.PaymentTolerance)
}

func (p PolicyConfig) DeploymentCostDecimal() decimal.Decimal {
	return decimal.NewFromFloat(p.DeploymentCost)
}

// validateOrigin допускает шаблон поддоменов (https://*.example.com),
// но не origin, совпадающий с любым хостом.
func validateOrigin(origin string) error {
	parsed, err := url.Parse(origin)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return errors.New("invalid allowed origin: " + origin)
	}
	if parsed.Host == "*" || parsed.Path != "" {
		return errors.New("allowed origin must name a single host: " + origin)
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	v.AutomaticEnv()
	v.SetEnvPrefix("GITUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Ключ кастодиального кошелька никогда не хранится в файле конфигурации в проде
	if envKey := v.GetString("CUSTODIAL_PRIVATE_KEY"); envKey != "" {
		cfg.CustodialPrivateKey = envKey
	}
	if envSecret := v.GetString("JWT_SECRET"); envSecret != "" {
		cfg.JWTSecret = envSecret
	}
	if envDSN := v.GetString("POSTGRES_URL"); envDSN != "" {
		cfg.PostgresURL = envDSN
	}

	if rpcs := splitList(v.GetString("RPC_LIST")); len(rpcs) > 0 {
		cfg.RPCList = rpcs
	}
	if origins := splitList(v.GetString("ALLOWED_ORIGINS")); len(origins) > 0 {
		cfg.AllowedOrigins = origins
	}
	return nil
}

// splitList разбирает список через запятую, пропуская пустые элементы.
func splitList(raw string) []string {
	var list []string
	for _, item := range strings.Split(raw, ",") {
		if clean := strings.TrimSpace(item); clean != "" {
			list = append(list, clean)
		}
	}
	return list
}
