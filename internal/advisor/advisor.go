// Package advisor produces optional market commentary for completed runs
// through an OpenAI-compatible chat completion API. The advisor is advisory
// only; nothing in the evaluation pipeline depends on its output.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/tradeforge/quant-backend/internal/backtest"
	"github.com/tradeforge/quant-backend/internal/regime"
	"github.com/tradeforge/quant-backend/pkg/types"
)

// Stance is the advisor's parsed position recommendation.
type Stance string

const (
	StanceIncrease Stance = "increase"
	StanceHold     Stance = "hold"
	StanceReduce   Stance = "reduce"
)

// Commentary is the advisor's view on a completed run.
type Commentary struct {
	Text   string `json:"text"`
	Stance Stance `json:"stance"`
	Model  string `json:"model"`
}

// Client calls the commentary API. A client without an API key is
// disabled and returns an error from Advise.
type Client struct {
	logger     *zap.Logger
	config     types.AdvisorConfig
	httpClient *http.Client
}

// NewClient creates an advisor client.
func NewClient(logger *zap.Logger, config types.AdvisorConfig) *Client {
	return &Client{
		logger:     logger.Named("advisor"),
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c.config.APIKey != ""
}

// Advise asks for commentary on a completed evaluation. The prompt carries
// the classified regime and the headline statistics; the response is scanned
// for a position stance.
func (c *Client) Advise(ctx context.Context, symbol string, state *regime.State, stats backtest.Stats) (*Commentary, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("advisor API key not configured")
	}

	query := fmt.Sprintf(`A daily backtest of %s just completed.
Market regime: %s (trend strength %.2f, annualized volatility %.1f%%).
Results: total return %.1f%%, sharpe %.2f, max drawdown %.1f%%.
In three sentences, assess whether these results are robust for this regime and
whether exposure should be increased, held, or reduced. Start the answer with
one of the words INCREASE, HOLD, or REDUCE.`,
		symbol, state.Regime, state.TrendStrength, state.Volatility*100,
		stats.TotalReturn*100, stats.Sharpe, stats.MaxDrawdown*100)

	text, err := c.call(ctx, query)
	if err != nil {
		return nil, err
	}

	commentary := &Commentary{
		Text:   text,
		Stance: parseStance(text),
		Model:  c.config.Model,
	}

	c.logger.Debug("received commentary",
		zap.String("symbol", symbol),
		zap.String("stance", string(commentary.Stance)))

	return commentary, nil
}

func (c *Client) call(ctx context.Context, query string) (string, error) {
	reqBody := map[string]interface{}{
		"model": c.config.Model,
		"messages": []map[string]string{
			{
				"role":    "system",
				"content": "You are a quantitative trading analyst. Assess backtest results concisely and conservatively.",
			},
			{
				"role":    "user",
				"content": query,
			},
		},
		"temperature": 0.2,
		"max_tokens":  500,
	}

	jsonBody, _ := json.Marshal(reqBody)

	req, err := http.NewRequestWithContext(ctx, "POST", c.config.BaseURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", err
	}

	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("advisor API error: %d", resp.StatusCode)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("empty response from advisor API")
	}

	return result.Choices[0].Message.Content, nil
}

// parseStance scans the commentary for a recommendation keyword. Anything
// ambiguous is read as hold.
func parseStance(text string) Stance {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "reduce"):
		return StanceReduce
	case strings.Contains(lower, "increase"):
		return StanceIncrease
	default:
		return StanceHold
	}
}
