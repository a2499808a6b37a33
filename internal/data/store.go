// Package data provides candle storage, loading and resampling.
package data

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/candleworks/backtest/pkg/types"
)

// Store provides access to historical candle data on disk. Series are keyed
// by symbol and timeframe and cached in memory after the first load.
type Store struct {
	mu       sync.RWMutex
	logger   *zap.Logger
	dataDir  string
	cache    map[string][]types.Candle
	metadata map[string]*SymbolMetadata
}

// SymbolMetadata describes the available data for a symbol.
type SymbolMetadata struct {
	Symbol    string          `json:"symbol"`
	Timeframe types.Timeframe `json:"timeframe"`
	StartDate time.Time       `json:"startDate"`
	EndDate   time.Time       `json:"endDate"`
	BarCount  int             `json:"barCount"`
}

// NewStore creates a store rooted at dataDir, creating the directory if
// needed.
func NewStore(logger *zap.Logger, dataDir string) (*Store, error) {
	store := &Store{
		logger:   logger,
		dataDir:  dataDir,
		cache:    make(map[string][]types.Candle),
		metadata: make(map[string]*SymbolMetadata),
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := store.loadMetadata(); err != nil {
		logger.Warn("Failed to load metadata", zap.Error(err))
	}

	return store, nil
}

// LoadCandles returns the candle series for a symbol and timeframe, reading
// it from disk on the first call. A <symbol>_<timeframe>.json file takes
// precedence over a .csv file with the same stem. The series is validated
// before it is cached; a broken file never reaches the engine.
func (s *Store) LoadCandles(ctx context.Context, symbol string, timeframe types.Timeframe) ([]types.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cacheKey := fmt.Sprintf("%s_%s", symbol, timeframe)
	if cached, ok := s.cache[cacheKey]; ok {
		return cached, nil
	}

	stem := filepath.Join(s.dataDir, cacheKey)
	candles, err := loadSeriesFile(stem)
	if err != nil {
		return nil, err
	}
	if err := types.ValidateCandles(candles); err != nil {
		return nil, fmt.Errorf("invalid series for %s: %w", cacheKey, err)
	}

	s.cache[cacheKey] = candles
	s.logger.Info("Loaded candle series",
		zap.String("symbol", symbol),
		zap.String("timeframe", string(timeframe)),
		zap.Int("bars", len(candles)))
	return candles, nil
}

func loadSeriesFile(stem string) ([]types.Candle, error) {
	if raw, err := os.ReadFile(stem + ".json"); err == nil {
		var candles []types.Candle
		if err := json.Unmarshal(raw, &candles); err != nil {
			return nil, fmt.Errorf("failed to parse %s.json: %w", stem, err)
		}
		return candles, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}

	f, err := os.Open(stem + ".csv")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no data file for %s: %w", filepath.Base(stem), os.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses a candle series from CSV with the columns
// time,open,high,low,close,volume. The time column accepts RFC 3339 or unix
// seconds; a header row is skipped when present.
func ReadCSV(r io.Reader) ([]types.Candle, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	var candles []types.Candle
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		line++

		if len(record) != 6 {
			return nil, fmt.Errorf("csv line %d: expected 6 columns, got %d", line, len(record))
		}
		if line == 1 && strings.EqualFold(record[0], "time") {
			continue
		}

		candle, err := parseCSVRecord(record)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func parseCSVRecord(record []string) (types.Candle, error) {
	ts, err := parseTime(record[0])
	if err != nil {
		return types.Candle{}, err
	}

	fields := make([]decimal.Decimal, 5)
	names := [5]string{"open", "high", "low", "close", "volume"}
	for i, name := range names {
		value, err := decimal.NewFromString(strings.TrimSpace(record[i+1]))
		if err != nil {
			return types.Candle{}, fmt.Errorf("invalid %s %q: %w", name, record[i+1], err)
		}
		fields[i] = value
	}

	return types.Candle{
		Time:   ts,
		Open:   fields[0],
		High:   fields[1],
		Low:    fields[2],
		Close:  fields[3],
		Volume: fields[4],
	}, nil
}

func parseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if unix, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", value, err)
	}
	return ts, nil
}

// SaveCandles writes a series to disk as JSON and updates the symbol
// metadata.
func (s *Store) SaveCandles(symbol string, timeframe types.Timeframe, candles []types.Candle) error {
	if err := types.ValidateCandles(candles); err != nil {
		return fmt.Errorf("refusing to save invalid series: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cacheKey := fmt.Sprintf("%s_%s", symbol, timeframe)
	filename := filepath.Join(s.dataDir, cacheKey+".json")

	raw, err := json.MarshalIndent(candles, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal series: %w", err)
	}
	if err := os.WriteFile(filename, raw, 0644); err != nil {
		return fmt.Errorf("failed to write data file: %w", err)
	}

	s.cache[cacheKey] = candles
	s.metadata[symbol] = &SymbolMetadata{
		Symbol:    symbol,
		Timeframe: timeframe,
		StartDate: candles[0].Time,
		EndDate:   candles[len(candles)-1].Time,
		BarCount:  len(candles),
	}
	return s.saveMetadata()
}

// AvailableSymbols returns all symbols known to the store.
func (s *Store) AvailableSymbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	symbols := make([]string, 0, len(s.metadata))
	for symbol := range s.metadata {
		symbols = append(symbols, symbol)
	}
	return symbols
}

// DataRange returns the available time range for a symbol.
func (s *Store) DataRange(symbol string) (start, end time.Time, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.metadata[symbol]
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("no data available for symbol %s", symbol)
	}
	return meta.StartDate, meta.EndDate, nil
}

// FilterByTime returns the candles within [start, end] inclusive. A zero
// start or end leaves that side unbounded.
func FilterByTime(candles []types.Candle, start, end time.Time) []types.Candle {
	var filtered []types.Candle
	for _, candle := range candles {
		if !start.IsZero() && candle.Time.Before(start) {
			continue
		}
		if !end.IsZero() && candle.Time.After(end) {
			continue
		}
		filtered = append(filtered, candle)
	}
	return filtered
}

// ClearCache drops all cached series.
func (s *Store) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string][]types.Candle)
}

func (s *Store) loadMetadata() error {
	raw, err := os.ReadFile(filepath.Join(s.dataDir, "metadata.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var metadata map[string]*SymbolMetadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return err
	}
	s.metadata = metadata
	return nil
}

func (s *Store) saveMetadata() error {
	raw, err := json.MarshalIndent(s.metadata, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dataDir, "metadata.json"), raw, 0644)
}
