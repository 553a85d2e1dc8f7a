package store

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode         string   `yaml:"mode"`
	Exchange     string   `yaml:"exchange"`
	ScanSeconds  int      `yaml:"scan_seconds"`
	Universe     []string `yaml:"universe"`

	Session struct {
		PreOpenStart     string `yaml:"pre_open_start"`
		MarketOpen       string `yaml:"market_open"`
		EntryWindowStart string `yaml:"entry_window_start"`
		ContinuousStart  string `yaml:"continuous_start"`
		NoNewEntries     string `yaml:"no_new_entries"`
		AdvisoryExit     string `yaml:"advisory_exit"`
		MandatoryExit    string `yaml:"mandatory_exit"`
		MarketClose      string `yaml:"market_close"`
	} `yaml:"session"`

	Breaker struct {
		StopLossLimit int `yaml:"stop_loss_limit"`
	} `yaml:"breaker"`

	Exits struct {
		BreakevenPct   float64 `yaml:"breakeven_pct"`
		TrailingPct    float64 `yaml:"trailing_pct"`
		TrailingFactor float64 `yaml:"trailing_factor"`
	} `yaml:"exits"`

	Scoring struct {
		GapWeight        float64 `yaml:"gap_weight"`
		VolumeWeight     float64 `yaml:"volume_weight"`
		DistanceWeight   float64 `yaml:"distance_weight"`
		MaxRankedSignals int     `yaml:"max_ranked_signals"`
		MinStars         int     `yaml:"min_stars"`
	} `yaml:"scoring"`

	Risk struct {
		Capital         float64 `yaml:"capital"`
		PerTradeRiskPct float64 `yaml:"per_trade_risk_pct"`
		MaxPositions    int     `yaml:"max_positions"`
	} `yaml:"risk"`

	Historical struct {
		LookbackDays   int     `yaml:"lookback_days"`
		RequestsPerSec float64 `yaml:"requests_per_sec"`
		MinCandles     int     `yaml:"min_candles"`
	} `yaml:"historical"`

	Feed struct {
		BackoffSeconds   []int `yaml:"backoff_seconds"`
		MaxTokensPerConn int   `yaml:"max_tokens_per_conn"`
	} `yaml:"feed"`

	Regime struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"regime"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if len(c.Universe) == 0 {
		return errors.New("universe cannot be empty")
	}
	if c.Breaker.StopLossLimit <= 0 {
		return fmt.Errorf("breaker.stop_loss_limit must be positive, got %d", c.Breaker.StopLossLimit)
	}
	if c.Exits.TrailingFactor <= 0 || c.Exits.TrailingFactor >= 1 {
		return fmt.Errorf("exits.trailing_factor must be in (0,1), got %.4f", c.Exits.TrailingFactor)
	}
	if c.Exits.TrailingPct < c.Exits.BreakevenPct {
		return fmt.Errorf("exits.trailing_pct (%.2f) must not be below exits.breakeven_pct (%.2f)",
			c.Exits.TrailingPct, c.Exits.BreakevenPct)
	}
	if c.Risk.PerTradeRiskPct <= 0 || c.Risk.PerTradeRiskPct > 100 {
		return fmt.Errorf("risk.per_trade_risk_pct must be between 0-100, got %.2f", c.Risk.PerTradeRiskPct)
	}
	if c.Feed.MaxTokensPerConn > 0 && len(c.Universe) > c.Feed.MaxTokensPerConn {
		return fmt.Errorf("universe size %d exceeds feed.max_tokens_per_conn %d",
			len(c.Universe), c.Feed.MaxTokensPerConn)
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	if c.ScanSeconds == 0 {
		c.ScanSeconds = 1
	}
	if c.Exchange == "" {
		c.Exchange = "NSE"
	}
	if c.Exits.BreakevenPct == 0 {
		c.Exits.BreakevenPct = 2.0
	}
	if c.Exits.TrailingPct == 0 {
		c.Exits.TrailingPct = 4.0
	}
	if c.Exits.TrailingFactor == 0 {
		c.Exits.TrailingFactor = 0.98
	}
	if c.Breaker.StopLossLimit == 0 {
		c.Breaker.StopLossLimit = 3
	}
	if c.Scoring.MaxRankedSignals == 0 {
		c.Scoring.MaxRankedSignals = 5
	}
	if c.Scoring.GapWeight == 0 && c.Scoring.VolumeWeight == 0 && c.Scoring.DistanceWeight == 0 {
		c.Scoring.GapWeight = 0.4
		c.Scoring.VolumeWeight = 0.4
		c.Scoring.DistanceWeight = 0.2
	}
	if c.Historical.LookbackDays == 0 {
		c.Historical.LookbackDays = 10
	}
	if c.Historical.RequestsPerSec == 0 {
		c.Historical.RequestsPerSec = 3
	}
	if c.Historical.MinCandles == 0 {
		c.Historical.MinCandles = 2
	}
	if len(c.Feed.BackoffSeconds) == 0 {
		c.Feed.BackoffSeconds = []int{2, 4, 8}
	}
	if c.Feed.MaxTokensPerConn == 0 {
		c.Feed.MaxTokensPerConn = 3000
	}
	applySessionDefaults(&c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func applySessionDefaults(c *Config) {
	if c.Session.PreOpenStart == "" {
		c.Session.PreOpenStart = "09:00"
	}
	if c.Session.MarketOpen == "" {
		c.Session.MarketOpen = "09:15"
	}
	if c.Session.EntryWindowStart == "" {
		c.Session.EntryWindowStart = "09:30"
	}
	if c.Session.ContinuousStart == "" {
		c.Session.ContinuousStart = "11:00"
	}
	if c.Session.NoNewEntries == "" {
		c.Session.NoNewEntries = "14:30"
	}
	if c.Session.AdvisoryExit == "" {
		c.Session.AdvisoryExit = "15:00"
	}
	if c.Session.MandatoryExit == "" {
		c.Session.MandatoryExit = "15:10"
	}
	if c.Session.MarketClose == "" {
		c.Session.MarketClose = "15:30"
	}
}
