package setup

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/dexterm/config"
	"github.com/vadiminshakov/dexterm/internal/domain"
)

// DefaultFile where the wizard writes the generated config.
const DefaultFile = "config.gen.yaml"

const clearScreen = "\033[H\033[2J"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// answers raw wizard input.
type answers struct {
	candleSource    string
	network         string
	pool            string
	candlePair      string
	timeframe       string
	smaPeriod       string
	emaPeriod       string
	rsiPeriod       string
	referenceSource string
	referencePair   string
	rpcURL          string
	chainID         string
	slippageBps     string
	sellToken       string
	buyToken        string
	amount          string
	listenAddr      string
}

func defaultAnswers() answers {
	return answers{
		candleSource:    config.CandleSourceGeckoTerminal,
		network:         "eth",
		timeframe:       string(domain.Timeframe1h),
		smaPeriod:       "20",
		emaPeriod:       "20",
		rsiPeriod:       "14",
		referenceSource: config.ReferenceNone,
		rpcURL:          "https://eth.llamarpc.com",
		chainID:         "1",
		slippageBps:     "50",
		listenAddr:      ":8080",
	}
}

func step(title string) {
	fmt.Print(clearScreen)
	fmt.Println(headerStyle.Render("DEXTERM CONFIG WIZARD"))
	fmt.Println(stepStyle.Render(title))
}

// RunTUI launches the terminal configuration wizard and returns the path of the written config.
func RunTUI() (string, error) {
	a := defaultAnswers()
	var confirm bool

	// step 1: welcome
	fmt.Print(clearScreen)
	fmt.Println(headerStyle.Render("DEXTERM CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Chart a pool and swap from one place.\n"))

	fmt.Println(stepStyle.Render("STEP 1: CANDLES"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where should candles come from?").
				Options(
					huh.NewOption("GeckoTerminal (DEX pool)", config.CandleSourceGeckoTerminal),
					huh.NewOption("Binance", config.CandleSourceBinance),
					huh.NewOption("Bybit", config.CandleSourceBybit),
					huh.NewOption("Hyperliquid", config.CandleSourceHyperliquid),
				).
				Value(&a.candleSource),
		),
	).Run()
	if err != nil {
		return "", err
	}

	step("STEP 2: MARKET")
	var marketFields []huh.Field
	if a.candleSource == config.CandleSourceGeckoTerminal {
		marketFields = []huh.Field{
			huh.NewInput().
				Title("Network").
				Description("GeckoTerminal network id (e.g. eth, base, arbitrum)").
				Value(&a.network),
			huh.NewInput().
				Title("Pool Address").
				Value(&a.pool).
				Validate(validateAddress),
		}
	} else {
		marketFields = []huh.Field{
			huh.NewInput().
				Title("Exchange Pair").
				Description("Must contain underscore (e.g. ETH_USDT)").
				Value(&a.candlePair).
				Validate(validatePair),
		}
	}
	if err := huh.NewForm(huh.NewGroup(marketFields...)).Run(); err != nil {
		return "", err
	}

	step("STEP 3: CHART")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Timeframe").
				Options(
					huh.NewOption("1 minute", string(domain.Timeframe1m)),
					huh.NewOption("5 minutes", string(domain.Timeframe5m)),
					huh.NewOption("1 hour", string(domain.Timeframe1h)),
					huh.NewOption("4 hours", string(domain.Timeframe4h)),
					huh.NewOption("1 day", string(domain.Timeframe1d)),
				).
				Value(&a.timeframe),
			huh.NewInput().Title("SMA Period").Value(&a.smaPeriod).Validate(validatePeriod),
			huh.NewInput().Title("EMA Period").Value(&a.emaPeriod).Validate(validatePeriod),
			huh.NewInput().Title("RSI Period").Value(&a.rsiPeriod).Validate(validatePeriod),
		),
	).Run()
	if err != nil {
		return "", err
	}

	step("STEP 4: SWAPS")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("RPC URL").Value(&a.rpcURL),
			huh.NewInput().Title("Chain ID").Value(&a.chainID).Validate(validatePeriod),
			huh.NewInput().
				Title("Slippage (bps)").
				Description("50 means 0.5%").
				Value(&a.slippageBps).
				Validate(validateSlippage),
			huh.NewInput().
				Title("Default Sell Token").
				Description("Token address, empty to skip").
				Value(&a.sellToken).
				Validate(optional(validateAddress)),
			huh.NewInput().
				Title("Default Buy Token").
				Description("Token address, empty to skip").
				Value(&a.buyToken).
				Validate(optional(validateAddress)),
			huh.NewInput().
				Title("Default Pay Amount").
				Description("In sell token units, empty to skip").
				Value(&a.amount).
				Validate(optional(validateAmount)),
		),
	).Run()
	if err != nil {
		return "", err
	}

	step("STEP 5: REFERENCE PRICE")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Compare quotes against a CEX price?").
				Options(
					huh.NewOption("No", config.ReferenceNone),
					huh.NewOption("Binance", config.ReferenceBinance),
					huh.NewOption("Bybit", config.ReferenceBybit),
					huh.NewOption("Hyperliquid", config.ReferenceHyperliquid),
				).
				Value(&a.referenceSource),
		),
	).Run()
	if err != nil {
		return "", err
	}
	if a.referenceSource != config.ReferenceNone {
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Reference Pair").
					Description("Base is the default sell token (e.g. ETH_USDT)").
					Value(&a.referencePair).
					Validate(validatePair),
			),
		).Run()
		if err != nil {
			return "", err
		}
	}

	step("FINAL CONFIRMATION")
	tmp, err := a.toConfig()
	if err != nil {
		return "", err
	}
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(a.summary()))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render(
		fmt.Sprintf("Secrets are read from the environment: %s, %s", config.EnvPrivateKey, config.EnvZeroXAPIKey)))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return "", err
	}
	if !confirm {
		return "", fmt.Errorf("setup cancelled by user")
	}

	if err := writeConfig(DefaultFile, tmp); err != nil {
		return "", err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting terminal...", DefaultFile)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return DefaultFile, nil
}

func (a answers) summary() string {
	market := a.candlePair
	if a.candleSource == config.CandleSourceGeckoTerminal {
		market = a.network + ":" + a.pool
	}
	return fmt.Sprintf(
		"Candles: %s\nMarket: %s\nTimeframe: %s\nChain: %s\nSlippage: %s bps\nReference: %s %s\n",
		a.candleSource, market, a.timeframe, a.chainID, a.slippageBps, a.referenceSource, a.referencePair,
	)
}

// toConfig converts answers into a validated yaml config.
func (a answers) toConfig() (config.ConfigTmp, error) {
	atoi := func(s string) int {
		n, _ := strconv.Atoi(strings.TrimSpace(s))
		return n
	}
	chainID, _ := strconv.ParseInt(strings.TrimSpace(a.chainID), 10, 64)

	tmp := config.ConfigTmp{
		CandleSource:    a.candleSource,
		Timeframe:       a.timeframe,
		SMAPeriod:       atoi(a.smaPeriod),
		EMAPeriod:       atoi(a.emaPeriod),
		RSIPeriod:       atoi(a.rsiPeriod),
		ReferenceSource: a.referenceSource,
		RPCURL:          a.rpcURL,
		ChainID:         chainID,
		SlippageBps:     atoi(a.slippageBps),
		SellToken:       strings.TrimSpace(a.sellToken),
		BuyToken:        strings.TrimSpace(a.buyToken),
		DefaultAmount:   strings.TrimSpace(a.amount),
		ListenAddr:      a.listenAddr,
	}
	if a.candleSource == config.CandleSourceGeckoTerminal {
		tmp.Network = a.network
		tmp.Pool = strings.TrimSpace(a.pool)
	} else {
		tmp.CandlePair = strings.ToUpper(strings.TrimSpace(a.candlePair))
	}
	if a.referenceSource != config.ReferenceNone {
		tmp.ReferencePair = strings.ToUpper(strings.TrimSpace(a.referencePair))
	}

	if err := tmp.Validate(); err != nil {
		return config.ConfigTmp{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return tmp, nil
}

func writeConfig(path string, tmp config.ConfigTmp) error {
	data, err := yaml.Marshal([]config.ConfigTmp{tmp})
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

func validateAmount(s string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if !d.IsPositive() {
		return fmt.Errorf("must be greater than zero")
	}
	return nil
}

func validatePair(s string) error {
	if s == "" {
		return fmt.Errorf("pair cannot be empty")
	}
	if _, err := domain.ParsePair(s); err != nil {
		return fmt.Errorf("invalid format: must be BASE_QUOTE (e.g. ETH_USDT)")
	}
	return nil
}

func validateAddress(s string) error {
	if !common.IsHexAddress(strings.TrimSpace(s)) {
		return fmt.Errorf("must be a 0x-prefixed address")
	}
	return nil
}

func validatePeriod(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func validateSlippage(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 || n > 10000 {
		return fmt.Errorf("must be between 0 and 10000")
	}
	return nil
}

// optional accepts empty input and validates everything else with fn.
func optional(fn func(string) error) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return nil
		}
		return fn(s)
	}
}
