package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tradeforge/quant-backend/internal/api"
	"github.com/tradeforge/quant-backend/internal/data"
	"github.com/tradeforge/quant-backend/internal/metrics"
	"github.com/tradeforge/quant-backend/pkg/types"
)

func providerCSV(closes []float64) string {
	var sb strings.Builder
	sb.WriteString("Date,Open,High,Low,Close,Volume\n")
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		d := start.AddDate(0, 0, i)
		fmt.Fprintf(&sb, "%s,%.4f,%.4f,%.4f,%.4f,1000\n",
			d.Format("2006-01-02"), c, c+0.5, c-0.5, c)
	}
	return sb.String()
}

func trendingCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	return closes
}

func oscillatingCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + 5*math.Sin(2*math.Pi*float64(i)/20)
	}
	return closes
}

func setupTestServer(t *testing.T, closes []float64) *httptest.Server {
	t.Helper()
	logger := zap.NewNop()

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(providerCSV(closes)))
	}))
	t.Cleanup(provider.Close)

	loader, err := data.NewLoader(logger, t.TempDir())
	if err != nil {
		t.Fatalf("failed to create loader: %v", err)
	}
	loader.SetBaseURL(provider.URL)

	cfg := types.DefaultConfig()
	cfg.Data.Symbol = "TEST"
	cfg.Data.Start = "2020-01-01"
	cfg.Data.End = "2021-01-01"

	server := api.NewServer(logger, cfg, loader, nil, metrics.New(prometheus.NewRegistry()))
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	}
	return resp.StatusCode, body
}

func postJSON(t *testing.T, url string, payload interface{}) (int, map[string]interface{}) {
	t.Helper()
	raw, _ := json.Marshal(payload)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	}
	return resp.StatusCode, body
}

// waitForDone polls a state endpoint until the run leaves the running
// state.
func waitForDone(t *testing.T, url string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		status, body := getJSON(t, url)
		if status != http.StatusOK {
			t.Fatalf("status poll returned %d", status)
		}
		if body["status"] != "running" {
			return body
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("timed out waiting for completion")
	return nil
}

func TestHealthEndpoint(t *testing.T) {
	ts := setupTestServer(t, trendingCloses(140))

	status, body := getJSON(t, ts.URL+"/api/v1/health")
	if status != http.StatusOK {
		t.Fatalf("health returned %d", status)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
}

func TestAnalysisEndpoint(t *testing.T) {
	ts := setupTestServer(t, trendingCloses(140))

	status, body := getJSON(t, ts.URL+"/api/v1/analysis/TEST")
	if status != http.StatusOK {
		t.Fatalf("analysis returned %d", status)
	}

	if body["bars"].(float64) != 140 {
		t.Errorf("bars = %v, want 140", body["bars"])
	}
	if body["recommended_strategy"] != "momentum" {
		t.Errorf("recommended strategy = %v, want momentum for a trend", body["recommended_strategy"])
	}
	regimeState, ok := body["regime"].(map[string]interface{})
	if !ok {
		t.Fatal("regime state missing")
	}
	if regimeState["regime"] != "trending_up" {
		t.Errorf("regime = %v, want trending_up", regimeState["regime"])
	}
	if _, ok := body["features"]; !ok {
		t.Error("feature snapshot missing")
	}
}

func TestAnalysisRejectsShortRange(t *testing.T) {
	ts := setupTestServer(t, trendingCloses(30))

	status, _ := getJSON(t, ts.URL+"/api/v1/analysis/TEST")
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 for too little data", status)
	}
}

func TestBacktestLifecycle(t *testing.T) {
	ts := setupTestServer(t, oscillatingCloses(140))

	status, body := postJSON(t, ts.URL+"/api/v1/backtest/run", api.RunRequest{
		Strategy: &types.StrategyConfig{Name: "mean_reversion", Window: 10, Threshold: 1.0},
	})
	if status != http.StatusOK {
		t.Fatalf("run returned %d", status)
	}
	id, ok := body["id"].(string)
	if !ok || id == "" {
		t.Fatal("run response missing id")
	}

	final := waitForDone(t, ts.URL+"/api/v1/backtest/"+id)
	if final["status"] != "completed" {
		t.Fatalf("run finished as %v: %v", final["status"], final["error"])
	}
	result, ok := final["result"].(map[string]interface{})
	if !ok {
		t.Fatal("completed run missing result")
	}
	if result["symbol"] != "TEST" {
		t.Errorf("result symbol = %v", result["symbol"])
	}

	status, trades := getJSON(t, ts.URL+"/api/v1/backtest/"+id+"/trades")
	if status != http.StatusOK {
		t.Fatalf("trades returned %d", status)
	}
	if trades["count"].(float64) < 2 {
		t.Errorf("trades count = %v, want at least 2", trades["count"])
	}
}

func TestBacktestRejectsUnknownStrategy(t *testing.T) {
	ts := setupTestServer(t, oscillatingCloses(140))

	status, _ := postJSON(t, ts.URL+"/api/v1/backtest/run", api.RunRequest{
		Strategy: &types.StrategyConfig{Name: "arbitrage", Window: 10, Threshold: 1.0},
	})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
}

func TestBacktestNotFound(t *testing.T) {
	ts := setupTestServer(t, oscillatingCloses(140))

	status, _ := getJSON(t, ts.URL+"/api/v1/backtest/no-such-id")
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
}

func TestOptimizeLifecycle(t *testing.T) {
	ts := setupTestServer(t, oscillatingCloses(140))

	status, body := postJSON(t, ts.URL+"/api/v1/optimize/run", api.OptimizeRequest{
		Strategy: &types.StrategyConfig{Name: "mean_reversion", Window: 20, Threshold: 1.0},
		Grid:     map[string][]float64{"window": {5, 10}, "threshold": {1.0}},
	})
	if status != http.StatusOK {
		t.Fatalf("optimize run returned %d", status)
	}
	id := body["id"].(string)

	final := waitForDone(t, ts.URL+"/api/v1/optimize/"+id)
	if final["status"] != "completed" {
		t.Fatalf("search finished as %v: %v", final["status"], final["error"])
	}
	if final["done"].(float64) != 2 || final["total"].(float64) != 2 {
		t.Errorf("progress = %v/%v, want 2/2", final["done"], final["total"])
	}
	result, ok := final["result"].(map[string]interface{})
	if !ok {
		t.Fatal("completed search missing result")
	}
	if _, ok := result["best_params"]; !ok {
		t.Error("result missing best params")
	}
}

func TestWebSocketPing(t *testing.T) {
	ts := setupTestServer(t, trendingCloses(140))

	wsURL := "ws" + ts.URL[4:] + "/ws/progress"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer conn.Close()

	ping := api.Message{ID: "ping-1", Type: "request", Method: "ping"}
	if err := conn.WriteJSON(ping); err != nil {
		t.Fatalf("failed to send ping: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var response api.Message
	if err := conn.ReadJSON(&response); err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	if response.ID != "ping-1" || response.Method != "ping" {
		t.Errorf("response = %+v", response)
	}
}

func TestWebSocketRunStatus(t *testing.T) {
	ts := setupTestServer(t, trendingCloses(140))

	wsURL := "ws" + ts.URL[4:] + "/ws/progress"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer conn.Close()

	status := api.Message{
		ID:      "status-1",
		Type:    "request",
		Method:  "run:status",
		Payload: map[string]interface{}{"id": "no-such-run"},
	}
	if err := conn.WriteJSON(status); err != nil {
		t.Fatalf("failed to send status request: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var response api.Message
	if err := conn.ReadJSON(&response); err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	if response.Error != "run not found" {
		t.Errorf("error = %q, want run not found", response.Error)
	}
}
