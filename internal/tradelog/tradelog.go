package tradelog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var mu sync.Mutex

var ist = time.FixedZone("IST", 19800)

// SignalEntry is one emitted signal, journaled as a JSON line.
type SignalEntry struct {
	Time     string  `json:"time"`
	Symbol   string  `json:"symbol"`
	Strategy string  `json:"strategy"`
	Score    float64 `json:"score"`
	Stars    int     `json:"stars"`
	Qty      int     `json:"qty"`
	Entry    float64 `json:"entry"`
	StopLoss float64 `json:"stop_loss"`
}

// ExitEntry is one closed trade, journaled as a JSON line.
type ExitEntry struct {
	Time      string  `json:"time"`
	Symbol    string  `json:"symbol"`
	TradeID   string  `json:"trade_id"`
	ExitPrice float64 `json:"exit_price"`
	Qty       int     `json:"qty"`
	PnL       float64 `json:"pnl"`
	PnLPct    float64 `json:"pnl_pct"`
	Reason    string  `json:"reason"`
}

func logDir() string {
	if v := os.Getenv("SCANNER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

func signalsFilepath(t time.Time) string {
	d := t.In(ist).Format("2006-01-02")
	return filepath.Join(logDir(), "signals", d+".txt")
}

func exitsFilepath(t time.Time) string {
	d := t.In(ist).Format("2006-01-02")
	return filepath.Join(logDir(), "exits", d+".txt")
}

// AppendSignal journals an emitted signal to today's file.
func AppendSignal(e SignalEntry) error {
	now := time.Now().In(ist)
	e.Time = now.Format("2006-01-02 15:04:05")
	return appendLine(signalsFilepath(now), e)
}

// AppendExit journals a closed trade to today's file.
func AppendExit(e ExitEntry) error {
	now := time.Now().In(ist)
	e.Time = now.Format("2006-01-02 15:04:05")
	return appendLine(exitsFilepath(now), e)
}

func appendLine(path string, v any) error {
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// CompressOlder gzips journal files older than the given number of days.
func CompressOlder(days int) error {
	if days <= 0 {
		return nil
	}
	cutoff := time.Now().In(ist).AddDate(0, 0, -days)

	for _, sub := range []string{"signals", "exits"} {
		dir := filepath.Join(logDir(), sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		for _, entry := range entries {
			name := entry.Name()
			if filepath.Ext(name) != ".txt" {
				continue
			}
			day, err := time.ParseInLocation("2006-01-02", name[:len(name)-len(".txt")], ist)
			if err != nil || !day.Before(cutoff) {
				continue
			}
			if err := gzipFile(filepath.Join(dir, name)); err != nil {
				return err
			}
		}
	}
	return nil
}

func gzipFile(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer out.Close()

	zw := gzip.NewWriter(out)
	if _, err := io.Copy(zw, in); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}
