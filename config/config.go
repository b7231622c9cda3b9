package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds everything needed to boot a simulation: the market the loans
// trade against, the lending policy, and the optional scenario driver.
type Config struct {
	CollateralAsset       string
	DebtAsset             string
	CollateralPrice       decimal.Decimal
	DebtAssetPrice        decimal.Decimal
	LiquidationFeePercent decimal.Decimal

	MaxInitialLTVPercent        decimal.Decimal
	WarningLTVPercent           decimal.Decimal
	LiquidationThresholdPercent decimal.Decimal
	RepayTolerancePercent       decimal.Decimal

	StartDate  time.Time
	ListenAddr string
	WALDir     string

	Scenario ScenarioConfig
}

// ScenarioConfig configures the optional automatic price scenario.
type ScenarioConfig struct {
	Enabled           bool
	Days              int
	Seed              int64
	DriftPercent      decimal.Decimal
	VolatilityPercent decimal.Decimal
	AutoLiquidate     bool
}

type ConfigTmp struct {
	CollateralAsset       string `yaml:"collateral_asset"`
	DebtAsset             string `yaml:"debt_asset"`
	CollateralPrice       string `yaml:"collateral_price"`
	DebtAssetPrice        string `yaml:"debt_asset_price"`
	LiquidationFeePercent string `yaml:"liquidation_fee_percent,omitempty"`

	MaxInitialLTVPercent        string `yaml:"max_initial_ltv_percent,omitempty"`
	WarningLTVPercent           string `yaml:"warning_ltv_percent,omitempty"`
	LiquidationThresholdPercent string `yaml:"liquidation_threshold_percent,omitempty"`
	RepayTolerancePercent       string `yaml:"repay_tolerance_percent,omitempty"`

	StartDate  string `yaml:"start_date,omitempty"` // YYYY-MM-DD
	ListenAddr string `yaml:"listen_addr,omitempty"`
	WALDir     string `yaml:"wal_dir,omitempty"`

	Scenario ScenarioTmp `yaml:"scenario,omitempty"`
}

type ScenarioTmp struct {
	Enabled           bool   `yaml:"enabled,omitempty"`
	Days              int    `yaml:"days,omitempty"`
	Seed              int64  `yaml:"seed,omitempty"`
	DriftPercent      string `yaml:"drift_percent,omitempty"`
	VolatilityPercent string `yaml:"volatility_percent,omitempty"`
	AutoLiquidate     bool   `yaml:"auto_liquidate,omitempty"`
}

const (
	defaultFeePercent     = "10"
	defaultMaxInitialLTV  = "50"
	defaultWarningLTV     = "50"
	defaultLiqThreshold   = "65"
	defaultRepayTolerance = "1"
	defaultListenAddr     = ":8080"
	defaultScenarioDays   = 90
	defaultScenarioSeed   = 42
	defaultScenarioDrift  = "0"
	defaultScenarioVol    = "2"
	startDateLayout       = "2006-01-02"
)

func Get() (Config, error) {
	configPath := flag.String("config", "", "path to yaml config")
	flag.Parse()
	if *configPath != "" {
		return getYaml(*configPath)
	}
	return getFromCLI()
}

func getFromCLI() (Config, error) {
	collateral := flag.String("collateral", "MEME", "collateral asset symbol")
	debt := flag.String("debt", "SOL", "debt asset symbol")
	collateralPrice := flag.String("collateralprice", "0.02", "collateral asset price in USD")
	debtPrice := flag.String("debtprice", "3", "debt asset price in USD")
	fee := flag.String("fee", defaultFeePercent, "liquidation fee percent")
	listen := flag.String("listen", defaultListenAddr, "http listen address")
	walDir := flag.String("waldir", "", "event journal directory, empty disables the journal")

	flag.Parse()

	tmp := ConfigTmp{
		CollateralAsset:       *collateral,
		DebtAsset:             *debt,
		CollateralPrice:       *collateralPrice,
		DebtAssetPrice:        *debtPrice,
		LiquidationFeePercent: *fee,
		ListenAddr:            *listen,
		WALDir:                *walDir,
	}
	return fromTmp(tmp)
}

func getYaml(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var tmp ConfigTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, err
	}
	return fromTmp(tmp)
}

func fromTmp(tmp ConfigTmp) (Config, error) {
	if tmp.CollateralAsset == "" || tmp.DebtAsset == "" {
		return Config{}, fmt.Errorf("'collateral_asset' and 'debt_asset' params are required")
	}

	cfg := Config{
		CollateralAsset: tmp.CollateralAsset,
		DebtAsset:       tmp.DebtAsset,
		ListenAddr:      tmp.ListenAddr,
		WALDir:          tmp.WALDir,
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}

	var err error
	if cfg.CollateralPrice, err = parsePrice(tmp.CollateralPrice, "collateral_price"); err != nil {
		return Config{}, err
	}
	if cfg.DebtAssetPrice, err = parsePrice(tmp.DebtAssetPrice, "debt_asset_price"); err != nil {
		return Config{}, err
	}
	if cfg.LiquidationFeePercent, err = parsePercent(tmp.LiquidationFeePercent, defaultFeePercent, "liquidation_fee_percent"); err != nil {
		return Config{}, err
	}
	if cfg.MaxInitialLTVPercent, err = parsePercent(tmp.MaxInitialLTVPercent, defaultMaxInitialLTV, "max_initial_ltv_percent"); err != nil {
		return Config{}, err
	}
	if cfg.WarningLTVPercent, err = parsePercent(tmp.WarningLTVPercent, defaultWarningLTV, "warning_ltv_percent"); err != nil {
		return Config{}, err
	}
	if cfg.LiquidationThresholdPercent, err = parsePercent(tmp.LiquidationThresholdPercent, defaultLiqThreshold, "liquidation_threshold_percent"); err != nil {
		return Config{}, err
	}
	if cfg.RepayTolerancePercent, err = parsePercent(tmp.RepayTolerancePercent, defaultRepayTolerance, "repay_tolerance_percent"); err != nil {
		return Config{}, err
	}

	if tmp.StartDate == "" {
		cfg.StartDate = time.Now().UTC().Truncate(24 * time.Hour)
	} else {
		cfg.StartDate, err = time.Parse(startDateLayout, tmp.StartDate)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'start_date' param in config (correct format is %s): %w", startDateLayout, err)
		}
	}

	cfg.Scenario, err = scenarioFromTmp(tmp.Scenario)
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func scenarioFromTmp(tmp ScenarioTmp) (ScenarioConfig, error) {
	sc := ScenarioConfig{
		Enabled:       tmp.Enabled,
		Days:          tmp.Days,
		Seed:          tmp.Seed,
		AutoLiquidate: tmp.AutoLiquidate,
	}
	if sc.Days == 0 {
		sc.Days = defaultScenarioDays
	}
	if sc.Seed == 0 {
		sc.Seed = defaultScenarioSeed
	}

	var err error
	if sc.DriftPercent, err = parseDecimalOrDefault(tmp.DriftPercent, defaultScenarioDrift, "scenario.drift_percent"); err != nil {
		return ScenarioConfig{}, err
	}
	if sc.VolatilityPercent, err = parseDecimalOrDefault(tmp.VolatilityPercent, defaultScenarioVol, "scenario.volatility_percent"); err != nil {
		return ScenarioConfig{}, err
	}
	if sc.VolatilityPercent.IsNegative() {
		return ScenarioConfig{}, fmt.Errorf("incorrect 'scenario.volatility_percent' param: must not be negative")
	}
	return sc, nil
}

func parsePrice(raw, name string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Decimal{}, fmt.Errorf("'%s' param is required", name)
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("incorrect '%s' param in config (must be a decimal): %w", name, err)
	}
	if value.LessThanOrEqual(decimal.Zero) {
		return decimal.Decimal{}, fmt.Errorf("incorrect '%s' param in config: must be positive, got %s", name, value)
	}
	return value, nil
}

func parsePercent(raw, fallback, name string) (decimal.Decimal, error) {
	value, err := parseDecimalOrDefault(raw, fallback, name)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if value.IsNegative() || value.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Decimal{}, fmt.Errorf("incorrect '%s' param in config: must be between 0 and 100, got %s", name, value)
	}
	return value, nil
}

func parseDecimalOrDefault(raw, fallback, name string) (decimal.Decimal, error) {
	if raw == "" {
		raw = fallback
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("incorrect '%s' param in config (must be a decimal): %w", name, err)
	}
	return value, nil
}
