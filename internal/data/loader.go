// Package data loads daily bars from the local cache or the remote
// provider.
package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tradeforge/quant-backend/pkg/types"
)

const (
	defaultBaseURL = "https://stooq.com/q/d/l/"
	fetchAttempts  = 3
)

// Loader fetches daily bars, caching them in memory and as CSV files under
// the cache directory. A cache miss triggers a download; the loader never
// fabricates bars.
type Loader struct {
	mu       sync.Mutex
	logger   *zap.Logger
	cacheDir string
	baseURL  string
	client   *http.Client
	cache    map[string]*types.BarSeries
}

// NewLoader creates a loader writing CSV caches under cacheDir.
func NewLoader(logger *zap.Logger, cacheDir string) (*Loader, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Loader{
		logger:   logger.Named("data"),
		cacheDir: cacheDir,
		baseURL:  defaultBaseURL,
		client:   &http.Client{Timeout: 30 * time.Second},
		cache:    make(map[string]*types.BarSeries),
	}, nil
}

// SetBaseURL overrides the provider endpoint. Tests point it at a local
// server.
func (l *Loader) SetBaseURL(u string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.baseURL = u
}

// Load returns the bars for the configured symbol and range, from the
// in-memory cache, the CSV cache, or the provider, in that order. Loaded
// series are validated before they are served.
func (l *Loader) Load(ctx context.Context, cfg types.DataConfig) (*types.BarSeries, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	start, end, err := cfg.Window()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := fmt.Sprintf("%s_%s_%s_%s", cfg.Symbol, cfg.Start, cfg.End, cfg.Interval)
	if series, ok := l.cache[key]; ok {
		return series, nil
	}

	path := filepath.Join(l.cacheDir, key+".csv")
	if series, err := l.readCacheFile(path, cfg.Symbol); err == nil {
		l.logger.Debug("loaded bars from cache file",
			zap.String("symbol", cfg.Symbol),
			zap.Int("bars", series.Len()))
		l.cache[key] = series
		return series, nil
	} else if !os.IsNotExist(err) {
		l.logger.Warn("unreadable cache file, refetching",
			zap.String("path", path), zap.Error(err))
	}

	series, err := l.fetch(ctx, cfg, start, end)
	if err != nil {
		return nil, err
	}
	if err := l.writeCacheFile(path, series); err != nil {
		l.logger.Warn("failed to write cache file", zap.String("path", path), zap.Error(err))
	}

	l.logger.Info("downloaded bars",
		zap.String("symbol", cfg.Symbol),
		zap.String("start", cfg.Start),
		zap.String("end", cfg.End),
		zap.Int("bars", series.Len()))

	l.cache[key] = series
	return series, nil
}

// fetch downloads the range from the provider, retrying transient
// failures with a linear backoff.
func (l *Loader) fetch(ctx context.Context, cfg types.DataConfig, start, end time.Time) (*types.BarSeries, error) {
	reqURL, err := l.buildURL(cfg, start, end)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		series, err := l.fetchOnce(ctx, reqURL, cfg.Symbol)
		if err == nil {
			return series, nil
		}
		lastErr = err
		l.logger.Warn("download attempt failed",
			zap.String("symbol", cfg.Symbol),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt < fetchAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}
	return nil, fmt.Errorf("download failed for %s after %d attempts: %w",
		cfg.Symbol, fetchAttempts, lastErr)
}

func (l *Loader) fetchOnce(ctx context.Context, reqURL, symbol string) (*types.BarSeries, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	series, err := l.parseProviderCSV(resp.Body, symbol)
	if err != nil {
		return nil, err
	}
	if series.Len() == 0 {
		return nil, fmt.Errorf("provider returned no bars for %s", symbol)
	}
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("downloaded series failed validation: %w", err)
	}
	return series, nil
}

func (l *Loader) buildURL(cfg types.DataConfig, start, end time.Time) (string, error) {
	base, err := url.Parse(l.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid provider URL %q: %w", l.baseURL, err)
	}

	q := base.Query()
	q.Set("s", providerSymbol(cfg.Symbol))
	q.Set("d1", start.Format("20060102"))
	q.Set("d2", end.Format("20060102"))
	q.Set("i", intervalCode(cfg.Interval))
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// providerSymbol normalizes a ticker for the provider: lowercase, with US
// tickers carrying the .us suffix when no market is given.
func providerSymbol(symbol string) string {
	s := strings.ToLower(symbol)
	if !strings.Contains(s, ".") {
		s += ".us"
	}
	return s
}

func intervalCode(interval types.Interval) string {
	switch interval {
	case types.IntervalWeekly:
		return "w"
	case types.IntervalMonthly:
		return "m"
	default:
		return "d"
	}
}

// parseProviderCSV reads the provider's Date,Open,High,Low,Close,Volume
// rows. The provider serves adjusted prices, so AdjClose mirrors Close.
// Rows with missing fields are skipped and counted.
func (l *Loader) parseProviderCSV(r io.Reader, symbol string) (*types.BarSeries, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse provider response: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty provider response for %s", symbol)
	}

	bars := make([]types.Bar, 0, len(records)-1)
	skipped := 0
	for i, rec := range records {
		if i == 0 && strings.EqualFold(rec[0], "date") {
			continue
		}
		bar, err := parseBarRecord(rec, false)
		if err != nil {
			skipped++
			continue
		}
		bars = append(bars, bar)
	}
	if skipped > 0 {
		l.logger.Warn("skipped rows with missing values",
			zap.String("symbol", symbol),
			zap.Int("rows", skipped))
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return types.NewBarSeries(symbol, bars), nil
}

// readCacheFile loads a previously written CSV cache. The cached schema
// carries the adjusted close explicitly.
func (l *Loader) readCacheFile(path, symbol string) (*types.BarSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse cache file: %w", err)
	}

	bars := make([]types.Bar, 0, len(records))
	for i, rec := range records {
		if i == 0 && strings.EqualFold(rec[0], "date") {
			continue
		}
		bar, err := parseBarRecord(rec, true)
		if err != nil {
			return nil, fmt.Errorf("cache row %d: %w", i, err)
		}
		bars = append(bars, bar)
	}

	series := types.NewBarSeries(symbol, bars)
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("cached series failed validation: %w", err)
	}
	return series, nil
}

func (l *Loader) writeCacheFile(path string, series *types.BarSeries) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"date", "open", "high", "low", "close", "adj_close", "volume"}); err != nil {
		return err
	}
	for _, b := range series.Bars {
		rec := []string{
			b.Date.Format("2006-01-02"),
			b.Open.String(),
			b.High.String(),
			b.Low.String(),
			b.Close.String(),
			b.AdjClose.String(),
			b.Volume.String(),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// parseBarRecord converts one CSV row into a bar. withAdjClose selects the
// seven-column cache schema over the provider's six columns.
func parseBarRecord(rec []string, withAdjClose bool) (types.Bar, error) {
	want := 6
	if withAdjClose {
		want = 7
	}
	if len(rec) < want-1 {
		return types.Bar{}, fmt.Errorf("short record: %d fields", len(rec))
	}

	date, err := time.Parse("2006-01-02", rec[0])
	if err != nil {
		return types.Bar{}, fmt.Errorf("bad date %q: %w", rec[0], err)
	}

	prices := make([]decimal.Decimal, 4)
	for i := 0; i < 4; i++ {
		prices[i], err = decimal.NewFromString(rec[1+i])
		if err != nil {
			return types.Bar{}, fmt.Errorf("bad price %q: %w", rec[1+i], err)
		}
	}

	bar := types.Bar{
		Date:  date,
		Open:  prices[0],
		High:  prices[1],
		Low:   prices[2],
		Close: prices[3],
	}

	volIdx := 5
	if withAdjClose {
		bar.AdjClose, err = decimal.NewFromString(rec[5])
		if err != nil {
			return types.Bar{}, fmt.Errorf("bad adjusted close %q: %w", rec[5], err)
		}
		volIdx = 6
	} else {
		bar.AdjClose = bar.Close
	}

	// Some symbols come without a volume column; treat it as zero.
	if len(rec) > volIdx && rec[volIdx] != "" {
		bar.Volume, err = decimal.NewFromString(rec[volIdx])
		if err != nil {
			return types.Bar{}, fmt.Errorf("bad volume %q: %w", rec[volIdx], err)
		}
	}
	return bar, nil
}
