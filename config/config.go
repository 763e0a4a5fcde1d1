package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/dexterm/internal/domain"
)

// Candle sources.
const (
	CandleSourceGeckoTerminal = "geckoterminal"
	CandleSourceBinance       = "binance"
	CandleSourceBybit         = "bybit"
	CandleSourceHyperliquid   = "hyperliquid"
)

// Reference price sources.
const (
	ReferenceNone        = "none"
	ReferenceBinance     = "binance"
	ReferenceBybit       = "bybit"
	ReferenceHyperliquid = "hyperliquid"
)

// Environment variables holding secrets.
const (
	EnvPrivateKey       = "DEXTERM_PRIVATE_KEY"
	EnvZeroXAPIKey      = "ZEROX_API_KEY"
	EnvBinanceAPIKey    = "BINANCE_API_KEY"
	EnvBinanceSecret    = "BINANCE_API_SECRET"
	EnvBybitAPIKey      = "BYBIT_API_KEY"
	EnvBybitSecret      = "BYBIT_API_SECRET"
	EnvHyperliquidURL   = "HYPERLIQUID_API_URL"
	EnvGeckoTerminalURL = "GECKOTERMINAL_API_URL"
)

const (
	defaultRPCURL          = "https://eth.llamarpc.com"
	defaultChainID         = 1
	defaultNetwork         = "eth"
	defaultListenAddr      = ":8080"
	defaultTimeframe       = domain.Timeframe1h
	defaultCandleLimit     = 300
	defaultSMAPeriod       = 20
	defaultEMAPeriod       = 20
	defaultSlowEMAPeriod   = 50
	defaultRSIPeriod       = 14
	defaultRefreshInterval = 10 * time.Second
	defaultDebounce        = 500 * time.Millisecond
	defaultQuoteTTL        = 30 * time.Second
	defaultSlippageBps     = 50
	defaultTradesDir       = "./wal/trades"
	defaultSnapshotsDir    = "./wal/balances"
	defaultTLSCacheDir     = "cert-cache"
)

// Config settings of one terminal instance (one pool chart plus its swap panel).
type Config struct {
	Name string

	Network      string
	Pool         string
	CandleSource string
	CandlePair   domain.Pair
	CandleLimit  int
	Timeframe    domain.Timeframe

	SMAPeriod     int
	EMAPeriod     int
	SlowEMAPeriod int
	RSIPeriod     int

	RefreshInterval time.Duration

	ReferenceSource string
	ReferencePair   domain.Pair

	RPCURL      string
	ChainID     int64
	SwapAPIURL  string
	Debounce    time.Duration
	QuoteTTL    time.Duration
	SlippageBps int

	SellToken     string
	BuyToken      string
	DefaultAmount decimal.Decimal

	TradesDir    string
	SnapshotsDir string
	ListenAddr   string
	TLSDomains   []string
	TLSCacheDir  string

	Secrets Secrets
}

// Secrets credentials read from the environment, never from the yaml file.
type Secrets struct {
	PrivateKey       string
	ZeroXAPIKey      string
	BinanceAPIKey    string
	BinanceSecret    string
	BybitAPIKey      string
	BybitSecret      string
	HyperliquidURL   string
	GeckoTerminalURL string
}

// ConfigTmp yaml representation of Config.
type ConfigTmp struct {
	Name            string        `yaml:"name,omitempty"`
	Network         string        `yaml:"network,omitempty"`
	Pool            string        `yaml:"pool,omitempty"`
	CandleSource    string        `yaml:"candle_source,omitempty"`
	CandlePair      string        `yaml:"candle_pair,omitempty"`
	CandleLimit     int           `yaml:"candle_limit,omitempty"`
	Timeframe       string        `yaml:"timeframe,omitempty"`
	SMAPeriod       int           `yaml:"sma_period,omitempty"`
	EMAPeriod       int           `yaml:"ema_period,omitempty"`
	SlowEMAPeriod   int           `yaml:"slow_ema_period,omitempty"`
	RSIPeriod       int           `yaml:"rsi_period,omitempty"`
	RefreshInterval time.Duration `yaml:"refresh_interval,omitempty"`
	ReferenceSource string        `yaml:"reference_source,omitempty"`
	ReferencePair   string        `yaml:"reference_pair,omitempty"`
	RPCURL          string        `yaml:"rpc_url,omitempty"`
	ChainID         int64         `yaml:"chain_id,omitempty"`
	SwapAPIURL      string        `yaml:"swap_api_url,omitempty"`
	Debounce        time.Duration `yaml:"debounce,omitempty"`
	QuoteTTL        time.Duration `yaml:"quote_ttl,omitempty"`
	SlippageBps     int           `yaml:"slippage_bps,omitempty"`
	SellToken       string        `yaml:"sell_token,omitempty"`
	BuyToken        string        `yaml:"buy_token,omitempty"`
	DefaultAmount   string        `yaml:"default_amount,omitempty"`
	TradesDir       string        `yaml:"trades_dir,omitempty"`
	SnapshotsDir    string        `yaml:"snapshots_dir,omitempty"`
	ListenAddr      string        `yaml:"listen_addr,omitempty"`
	TLSDomains      []string      `yaml:"tls_domains,omitempty"`
	TLSCacheDir     string        `yaml:"tls_cache_dir,omitempty"`
}

// Get loads an optional .env file, then reads configs from --config or, without it, from flags.
func Get() ([]Config, error) {
	return GetFrom(flag.CommandLine, os.Args[1:])
}

// GetFrom is Get with an explicit flag set and argument list.
func GetFrom(fs *flag.FlagSet, args []string) ([]Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to load .env")
	}
	secrets := secretsFromEnv()

	configPath := fs.String("config", "", "path to yaml config")
	_ = fs.Bool("setup", false, "run the interactive setup wizard")
	cli := registerFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configPath != "" {
		return getYaml(*configPath, secrets)
	}

	c, err := cli.toConfig()
	if err != nil {
		return nil, err
	}
	c.Secrets = secrets
	return []Config{c}, nil
}

func secretsFromEnv() Secrets {
	return Secrets{
		PrivateKey:       os.Getenv(EnvPrivateKey),
		ZeroXAPIKey:      os.Getenv(EnvZeroXAPIKey),
		BinanceAPIKey:    os.Getenv(EnvBinanceAPIKey),
		BinanceSecret:    os.Getenv(EnvBinanceSecret),
		BybitAPIKey:      os.Getenv(EnvBybitAPIKey),
		BybitSecret:      os.Getenv(EnvBybitSecret),
		HyperliquidURL:   os.Getenv(EnvHyperliquidURL),
		GeckoTerminalURL: os.Getenv(EnvGeckoTerminalURL),
	}
}

type cliFlags struct {
	strs                        map[string]*string
	chainID                     *int64
	slippage                    *int
	refresh, debounce, quoteTTL *time.Duration
}

func registerFlags(fs *flag.FlagSet) *cliFlags {
	c := &cliFlags{strs: map[string]*string{}}
	str := func(name, def, usage string) {
		c.strs[name] = fs.String(name, def, usage)
	}
	str("network", defaultNetwork, "GeckoTerminal network id, example: eth")
	str("pool", "", "pool address charted by the terminal")
	str("candles", CandleSourceGeckoTerminal, "candle source: geckoterminal, binance, bybit or hyperliquid")
	str("candlepair", "", "exchange pair for binance/hyperliquid candles, example: ETH_USDT")
	str("timeframe", string(defaultTimeframe), "chart timeframe: 1m, 5m, 1h, 4h or 1d")
	str("reference", ReferenceNone, "reference price source: none, binance, bybit or hyperliquid")
	str("referencepair", "", "reference price pair, example: ETH_USDT")
	str("rpc", defaultRPCURL, "EVM JSON-RPC endpoint")
	str("swapapi", "", "swap API base url")
	str("sell", "", "default sell token address")
	str("buy", "", "default buy token address")
	str("amount", "", "default pay amount")
	str("listen", defaultListenAddr, "HTTP listen address")
	str("tlsdomains", "", "comma separated domains for automatic TLS certificates")
	str("tlscache", "", "directory for cached TLS certificates")
	c.chainID = fs.Int64("chainid", defaultChainID, "chain id")
	c.slippage = fs.Int("slippage", defaultSlippageBps, "slippage tolerance in basis points")
	c.refresh = fs.Duration("refreshinterval", defaultRefreshInterval, "candle refresh interval")
	c.debounce = fs.Duration("debounce", defaultDebounce, "quote input debounce")
	c.quoteTTL = fs.Duration("quotettl", defaultQuoteTTL, "quote lifetime when the API omits one")
	return c
}

func (c *cliFlags) toConfig() (Config, error) {
	return fromTmp(ConfigTmp{
		Network:         *c.strs["network"],
		Pool:            *c.strs["pool"],
		CandleSource:    *c.strs["candles"],
		CandlePair:      *c.strs["candlepair"],
		Timeframe:       *c.strs["timeframe"],
		ReferenceSource: *c.strs["reference"],
		ReferencePair:   *c.strs["referencepair"],
		RPCURL:          *c.strs["rpc"],
		SwapAPIURL:      *c.strs["swapapi"],
		SellToken:       *c.strs["sell"],
		BuyToken:        *c.strs["buy"],
		DefaultAmount:   *c.strs["amount"],
		ListenAddr:      *c.strs["listen"],
		TLSDomains:      splitList(*c.strs["tlsdomains"]),
		TLSCacheDir:     *c.strs["tlscache"],
		ChainID:         *c.chainID,
		SlippageBps:     *c.slippage,
		RefreshInterval: *c.refresh,
		Debounce:        *c.debounce,
		QuoteTTL:        *c.quoteTTL,
	})
}

func getYaml(path string, secrets Secrets) ([]Config, error) {
	var configsTmp []ConfigTmp

	f, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(f, &configsTmp); err != nil {
		return nil, err
	}
	if len(configsTmp) == 0 {
		return nil, fmt.Errorf("no terminal configs in %s", path)
	}

	configs := make([]Config, 0, len(configsTmp))
	for i, c := range configsTmp {
		newConfig, err := fromTmp(c)
		if err != nil {
			return nil, errors.Wrapf(err, "config #%d", i)
		}
		newConfig.Secrets = secrets
		configs = append(configs, newConfig)
	}
	return configs, nil
}

// fromTmp applies defaults and validates a raw config.
func fromTmp(c ConfigTmp) (Config, error) {
	conf := Config{
		Name:            c.Name,
		Network:         orDefault(c.Network, defaultNetwork),
		Pool:            strings.TrimSpace(c.Pool),
		CandleSource:    strings.ToLower(orDefault(c.CandleSource, CandleSourceGeckoTerminal)),
		CandleLimit:     intOrDefault(c.CandleLimit, defaultCandleLimit),
		SMAPeriod:       intOrDefault(c.SMAPeriod, defaultSMAPeriod),
		EMAPeriod:       intOrDefault(c.EMAPeriod, defaultEMAPeriod),
		SlowEMAPeriod:   intOrDefault(c.SlowEMAPeriod, defaultSlowEMAPeriod),
		RSIPeriod:       intOrDefault(c.RSIPeriod, defaultRSIPeriod),
		RefreshInterval: durationOrDefault(c.RefreshInterval, defaultRefreshInterval),
		ReferenceSource: strings.ToLower(orDefault(c.ReferenceSource, ReferenceNone)),
		RPCURL:          orDefault(c.RPCURL, defaultRPCURL),
		ChainID:         c.ChainID,
		SwapAPIURL:      c.SwapAPIURL,
		Debounce:        durationOrDefault(c.Debounce, defaultDebounce),
		QuoteTTL:        durationOrDefault(c.QuoteTTL, defaultQuoteTTL),
		SlippageBps:     intOrDefault(c.SlippageBps, defaultSlippageBps),
		SellToken:       strings.TrimSpace(c.SellToken),
		BuyToken:        strings.TrimSpace(c.BuyToken),
		TradesDir:       orDefault(c.TradesDir, defaultTradesDir),
		SnapshotsDir:    orDefault(c.SnapshotsDir, defaultSnapshotsDir),
		ListenAddr:      orDefault(c.ListenAddr, defaultListenAddr),
		TLSDomains:      splitList(strings.Join(c.TLSDomains, ",")),
	}
	if len(conf.TLSDomains) > 0 {
		conf.TLSCacheDir = orDefault(c.TLSCacheDir, defaultTLSCacheDir)
	}
	if conf.ChainID == 0 {
		conf.ChainID = defaultChainID
	}

	tf, err := domain.ParseTimeframe(orDefault(c.Timeframe, string(defaultTimeframe)))
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'timeframe' param: %s, error: %w", c.Timeframe, err)
	}
	conf.Timeframe = tf

	switch conf.CandleSource {
	case CandleSourceGeckoTerminal:
		if conf.Pool == "" {
			return Config{}, errors.New("'pool' is required for the geckoterminal candle source")
		}
	case CandleSourceBinance, CandleSourceBybit, CandleSourceHyperliquid:
		pair, err := domain.ParsePair(c.CandlePair)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'candle_pair' param: %s, error: %w", c.CandlePair, err)
		}
		conf.CandlePair = pair
	default:
		return Config{}, fmt.Errorf("unknown candle source %q", conf.CandleSource)
	}

	switch conf.ReferenceSource {
	case ReferenceNone:
	case ReferenceBinance, ReferenceBybit, ReferenceHyperliquid:
		pair, err := domain.ParsePair(c.ReferencePair)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'reference_pair' param: %s, error: %w", c.ReferencePair, err)
		}
		conf.ReferencePair = pair
	default:
		return Config{}, fmt.Errorf("unknown reference source %q", conf.ReferenceSource)
	}

	for name, v := range map[string]int{
		"sma_period":      conf.SMAPeriod,
		"ema_period":      conf.EMAPeriod,
		"slow_ema_period": conf.SlowEMAPeriod,
		"rsi_period":      conf.RSIPeriod,
		"candle_limit":    conf.CandleLimit,
	} {
		if v < 1 {
			return Config{}, fmt.Errorf("incorrect '%s' param: must be positive, got %d", name, v)
		}
	}
	if conf.SlippageBps < 0 || conf.SlippageBps > 10000 {
		return Config{}, fmt.Errorf("incorrect 'slippage_bps' param: %d, must be within 0..10000", conf.SlippageBps)
	}

	if c.DefaultAmount != "" {
		amount, err := decimal.NewFromString(c.DefaultAmount)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'default_amount' param in yaml config (correct format is 12.5), error: %w", err)
		}
		if !amount.IsPositive() {
			return Config{}, fmt.Errorf("incorrect 'default_amount' param: must be positive, got %s", amount)
		}
		conf.DefaultAmount = amount
	}

	if conf.Name == "" {
		conf.Name = conf.defaultName()
	}
	return conf, nil
}

func (c Config) defaultName() string {
	if c.CandleSource == CandleSourceGeckoTerminal {
		return fmt.Sprintf("%s:%s", c.Network, c.Pool)
	}
	return fmt.Sprintf("%s:%s", c.CandleSource, c.CandlePair)
}

// ToTmp converts the config back into its yaml form. Secrets are not included.
func (c Config) ToTmp() ConfigTmp {
	tmp := ConfigTmp{
		Name:            c.Name,
		Network:         c.Network,
		Pool:            c.Pool,
		CandleSource:    c.CandleSource,
		CandleLimit:     c.CandleLimit,
		Timeframe:       string(c.Timeframe),
		SMAPeriod:       c.SMAPeriod,
		EMAPeriod:       c.EMAPeriod,
		SlowEMAPeriod:   c.SlowEMAPeriod,
		RSIPeriod:       c.RSIPeriod,
		RefreshInterval: c.RefreshInterval,
		ReferenceSource: c.ReferenceSource,
		RPCURL:          c.RPCURL,
		ChainID:         c.ChainID,
		SwapAPIURL:      c.SwapAPIURL,
		Debounce:        c.Debounce,
		QuoteTTL:        c.QuoteTTL,
		SlippageBps:     c.SlippageBps,
		SellToken:       c.SellToken,
		BuyToken:        c.BuyToken,
		TradesDir:       c.TradesDir,
		SnapshotsDir:    c.SnapshotsDir,
		ListenAddr:      c.ListenAddr,
		TLSDomains:      c.TLSDomains,
		TLSCacheDir:     c.TLSCacheDir,
	}
	if !c.CandlePair.IsZero() {
		tmp.CandlePair = c.CandlePair.String()
	}
	if !c.ReferencePair.IsZero() {
		tmp.ReferencePair = c.ReferencePair.String()
	}
	if !c.DefaultAmount.IsZero() {
		tmp.DefaultAmount = c.DefaultAmount.String()
	}
	return tmp
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

func intOrDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func durationOrDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// Validate applies defaults to c and reports whether the result is a usable config.
func (c ConfigTmp) Validate() error {
	_, err := fromTmp(c)
	return err
}
