package backtest

// Trade is one closed round trip extracted from the signal series. Indices
// refer to the underlying bars; Return compounds the net returns over
// [EntryIndex, ExitIndex] inclusive.
type Trade struct {
	EntryIndex int     `json:"entry_index"`
	ExitIndex  int     `json:"exit_index"`
	Bars       int     `json:"bars"`
	Return     float64 `json:"return"`
}

// TradeStats summarizes the closed round trips. AvgLoss is reported as a
// positive magnitude. Everything is 0 when no trade closed.
type TradeStats struct {
	NumTrades int     `json:"num_trades"`
	WinRate   float64 `json:"win_rate"`
	AvgWin    float64 `json:"avg_win"`
	AvgLoss   float64 `json:"avg_loss"`
}

// AnalyzeTrades pairs each 0→1 signal transition with the nearest
// following 1→0 transition and compounds the net returns over the
// inclusive span. Index 0 is never a transition, and a trailing entry with
// no exit is dropped. Zero-return trades count toward NumTrades but are
// neither wins nor losses.
func AnalyzeTrades(signals, netReturns []float64) ([]Trade, TradeStats) {
	var entries, exits []int
	for i := 1; i < len(signals); i++ {
		switch {
		case signals[i-1] == 0 && signals[i] == 1:
			entries = append(entries, i)
		case signals[i-1] == 1 && signals[i] == 0:
			exits = append(exits, i)
		}
	}

	var trades []Trade
	j := 0
	for _, entry := range entries {
		for j < len(exits) && exits[j] <= entry {
			j++
		}
		if j == len(exits) {
			break
		}
		exit := exits[j]
		j++

		ret := 1.0
		for i := entry; i <= exit; i++ {
			ret *= 1 + netReturns[i]
		}
		trades = append(trades, Trade{
			EntryIndex: entry,
			ExitIndex:  exit,
			Bars:       exit - entry + 1,
			Return:     ret - 1,
		})
	}

	return trades, summarizeTrades(trades)
}

func summarizeTrades(trades []Trade) TradeStats {
	st := TradeStats{NumTrades: len(trades)}
	if len(trades) == 0 {
		return st
	}

	var winSum, lossSum float64
	var wins, losses int
	for _, tr := range trades {
		switch {
		case tr.Return > 0:
			wins++
			winSum += tr.Return
		case tr.Return < 0:
			losses++
			lossSum += tr.Return
		}
	}

	st.WinRate = float64(wins) / float64(len(trades))
	if wins > 0 {
		st.AvgWin = winSum / float64(wins)
	}
	if losses > 0 {
		st.AvgLoss = -lossSum / float64(losses)
	}
	return st
}
