// Package eod turns the day's exit journal into a CSV performance summary
// after market close.
package eod

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

type exitLine struct {
	Time      string  `json:"time"`
	Symbol    string  `json:"symbol"`
	TradeID   string  `json:"trade_id"`
	ExitPrice float64 `json:"exit_price"`
	Qty       int     `json:"qty"`
	PnL       float64 `json:"pnl"`
	PnLPct    float64 `json:"pnl_pct"`
	Reason    string  `json:"reason"`
}

type aggRow struct {
	Symbol    string
	Trades    int
	Wins      int
	Losses    int
	PnL       float64
	StopExits int
	TimeExits int
}

func logDir() string {
	if v := os.Getenv("SCANNER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}
func istNow() time.Time { return time.Now().In(time.FixedZone("IST", 19800)) }
func exitsFile(t time.Time) string {
	d := t.Format("2006-01-02")
	return filepath.Join(logDir(), "exits", d+".txt")
}
func eodCSVPath(t time.Time) string {
	d := t.Format("2006-01-02")
	return filepath.Join(logDir(), "eod", d+".csv")
}

// SummarizeDay reads the date's exit journal, aggregates by symbol, and
// writes the CSV report. A day with no exits produces no file and no error.
func SummarizeDay(t time.Time) (string, error) {
	inPath := exitsFile(t)
	if _, err := os.Stat(inPath); err != nil {
		return "", nil
	}
	f, err := os.Open(inPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	aggs := map[string]*aggRow{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var el exitLine
		if err := json.Unmarshal([]byte(sc.Text()), &el); err != nil {
			continue
		}
		row := aggs[el.Symbol]
		if row == nil {
			row = &aggRow{Symbol: el.Symbol}
			aggs[el.Symbol] = row
		}
		row.Trades++
		row.PnL += el.PnL
		if el.PnL >= 0 {
			row.Wins++
		} else {
			row.Losses++
		}
		switch el.Reason {
		case "stop-loss":
			row.StopExits++
		case "time-exit":
			row.TimeExits++
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	if len(aggs) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(aggs))
	for k := range aggs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	outPath := eodCSVPath(t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	defer w.Flush()
	headers := []string{"symbol", "trades", "wins", "losses", "stop_exits", "time_exits", "realized_pnl"}
	if err := w.Write(headers); err != nil {
		return "", err
	}
	var totalTrades, totalWins int
	var totalPnL float64
	for _, k := range keys {
		r := aggs[k]
		rec := []string{
			r.Symbol,
			strconv.Itoa(r.Trades),
			strconv.Itoa(r.Wins),
			strconv.Itoa(r.Losses),
			strconv.Itoa(r.StopExits),
			strconv.Itoa(r.TimeExits),
			fmt.Sprintf("%.2f", r.PnL),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
		totalTrades += r.Trades
		totalWins += r.Wins
		totalPnL += r.PnL
	}
	_ = w.Write([]string{"TOTAL", strconv.Itoa(totalTrades), strconv.Itoa(totalWins), "", "", "", fmt.Sprintf("%.2f", totalPnL)})
	return outPath, nil
}

// SummarizeToday summarizes the current IST date.
func SummarizeToday() (string, error) { return SummarizeDay(istNow()) }

// summaryDelay is how long after market close the report becomes due,
// leaving room for the square-off exits to finish journaling.
const summaryDelay = 10 * time.Minute

// ShouldRunNow reports whether the summary is due: past the given market
// close plus the settling delay, with no report written yet.
func ShouldRunNow(marketClose time.Time) (bool, string) {
	now := istNow()
	cutoff := marketClose.Add(summaryDelay)
	outPath := eodCSVPath(now)
	if now.After(cutoff) {
		if _, err := os.Stat(outPath); errors.Is(err, os.ErrNotExist) {
			return true, outPath
		}
	}
	return false, outPath
}
