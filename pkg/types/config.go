// Package types provides configuration types for the backtest simulator.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// RunConfig is the serializable configuration of one backtest run, as
// submitted over the API or read from a config file. The builder translates
// it into an executable setup and performs all validation.
type RunConfig struct {
	Symbol           string          `json:"symbol"`
	BaseBudget       decimal.Decimal `json:"baseBudget"`
	QuoteBudget      decimal.Decimal `json:"quoteBudget"`
	StartTime        time.Time       `json:"startTime"`
	EndTime          time.Time       `json:"endTime"`
	PricePoint       PricePoint      `json:"pricePoint"`
	SpotFees         []Fee           `json:"spotFees"`
	LeverageRatio    decimal.Decimal `json:"leverageRatio"`
	LiquidationRatio decimal.Decimal `json:"liquidationRatio"`
	RandomSeed       int64           `json:"randomSeed,omitempty"`
}

// DefaultRunConfig mirrors the simulator's built-in defaults: quote-only
// budget of 10000, open price, 0.1% base-asset spot fee, 5x leverage with a
// 0.1 liquidation ratio.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		QuoteBudget:      decimal.NewFromInt(10000),
		PricePoint:       PriceAtOpen,
		SpotFees:         []Fee{{Kind: AmountPercentage, Amount: decimal.NewFromFloat(0.1), Source: FeeSourceBase}},
		LeverageRatio:    decimal.NewFromInt(5),
		LiquidationRatio: decimal.NewFromFloat(0.1),
	}
}

// ServerConfig represents API server configuration.
type ServerConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	DataDir        string        `json:"dataDir"`
	ReadTimeout    time.Duration `json:"readTimeout"`
	WriteTimeout   time.Duration `json:"writeTimeout"`
	EnableMetrics  bool          `json:"enableMetrics"`
	AllowedOrigins []string      `json:"allowedOrigins"`
}

// DefaultServerConfig returns the server defaults used when no configuration
// file or environment overrides are present.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:          "127.0.0.1",
		Port:          8080,
		DataDir:       "data",
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		EnableMetrics: true,
	}
}
