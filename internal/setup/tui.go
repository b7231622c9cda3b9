package setup

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/solvena/lendsim/config"
)

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

// RunTUI launches the terminal configuration wizard and writes the
// resulting yaml to config.gen.yaml.
func RunTUI() error {
	var (
		collateralAsset string
		debtAsset       string
		collateralPrice string
		debtPrice       string
		feeStr          string
		thresholdStr    string
		startDate       string
		listenAddr      string
		walDir          string
		runScenario     bool
		scenarioDays    string
		driftStr        string
		volStr          string
		autoLiquidate   bool
		confirm         bool
	)

	// defaults
	collateralAsset = "MEME"
	debtAsset = "SOL"
	collateralPrice = "0.02"
	debtPrice = "3"
	feeStr = "10"
	thresholdStr = "65"
	startDate = time.Now().UTC().Format("2006-01-02")
	listenAddr = ":8080"
	scenarioDays = "90"
	driftStr = "0"
	volStr = "2"

	// step 1: welcome + market
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("LENDSIM CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Let's set up your lending market.\n"))

	fmt.Println(stepStyle.Render("STEP 1: MARKET"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Collateral Asset").
				Description("Symbol of the asset borrowers pledge (e.g. MEME)").
				Value(&collateralAsset).
				Validate(validateSymbol),
			huh.NewInput().
				Title("Debt Asset").
				Description("Symbol of the asset being borrowed (e.g. SOL)").
				Value(&debtAsset).
				Validate(validateSymbol),
			huh.NewInput().
				Title("Collateral Price (USD)").
				Value(&collateralPrice).
				Validate(validatePositiveDecimal),
			huh.NewInput().
				Title("Debt Asset Price (USD)").
				Value(&debtPrice).
				Validate(validatePositiveDecimal),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 2: risk policy
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("LENDSIM CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 2: RISK POLICY"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Liquidation Threshold %").
				Description("LTV at which loans become liquidatable (e.g. 65)").
				Value(&thresholdStr).
				Validate(validatePercent),
			huh.NewInput().
				Title("Liquidation Fee %").
				Description("Penalty added to debt on liquidation (e.g. 10)").
				Value(&feeStr).
				Validate(validatePercent),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 3: runtime
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("LENDSIM CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 3: RUNTIME"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Simulation Start Date").
				Description("YYYY-MM-DD").
				Value(&startDate).
				Validate(func(s string) error {
					_, err := time.Parse("2006-01-02", s)
					return err
				}),
			huh.NewInput().
				Title("HTTP Listen Address").
				Value(&listenAddr),
			huh.NewInput().
				Title("Event Journal Directory").
				Description("Leave empty to disable the persistent journal").
				Value(&walDir),
			huh.NewConfirm().
				Title("Run a price scenario on start?").
				Value(&runScenario),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 4: scenario specifics
	if runScenario {
		fmt.Print("\033[H\033[2J")
		fmt.Println(headerStyle.Render("LENDSIM CONFIG WIZARD"))
		fmt.Println(stepStyle.Render("STEP 4: SCENARIO"))
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Days to Simulate").
					Value(&scenarioDays),
				huh.NewInput().
					Title("Daily Drift %").
					Description("Expected daily price move, may be negative (e.g. -0.5)").
					Value(&driftStr),
				huh.NewInput().
					Title("Daily Volatility %").
					Description("Standard deviation of daily moves (e.g. 3)").
					Value(&volStr),
				huh.NewConfirm().
					Title("Auto-liquidate loans crossing the threshold?").
					Value(&autoLiquidate),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	// confirmation
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("LENDSIM CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("FINAL CONFIRMATION"))

	summary := fmt.Sprintf(
		"Market: %s collateral vs %s debt\nPrices: $%s / $%s\nThreshold: %s%%  Fee: %s%%\nStart: %s\nListen: %s\n",
		collateralAsset, debtAsset, collateralPrice, debtPrice, thresholdStr, feeStr, startDate, listenAddr,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

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
		return err
	}

	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	cfgTmp := config.ConfigTmp{
		CollateralAsset:             collateralAsset,
		DebtAsset:                   debtAsset,
		CollateralPrice:             collateralPrice,
		DebtAssetPrice:              debtPrice,
		LiquidationFeePercent:       feeStr,
		LiquidationThresholdPercent: thresholdStr,
		StartDate:                   startDate,
		ListenAddr:                  listenAddr,
		WALDir:                      walDir,
	}
	if runScenario {
		cfgTmp.Scenario = config.ScenarioTmp{
			Enabled:           true,
			DriftPercent:      driftStr,
			VolatilityPercent: volStr,
			AutoLiquidate:     autoLiquidate,
		}
		fmt.Sscanf(scenarioDays, "%d", &cfgTmp.Scenario.Days)
	}

	data, err := yaml.Marshal(cfgTmp)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}

	filename := "config.gen.yaml"
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting simulator...", filename)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return nil
}

func validateSymbol(s string) error {
	if s == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	return nil
}

func validatePositiveDecimal(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validatePercent(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("must be between 0 and 100")
	}
	return nil
}
