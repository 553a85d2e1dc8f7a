package marketdata

import (
	"sync"
	"testing"
	"time"

	"intraday-scanner/internal/types"
)

func TestUpdateTickOverwrites(t *testing.T) {
	store := NewStore()

	first := types.Tick{Symbol: "RELIANCE", LastPrice: 2500.0, Timestamp: time.Now()}
	second := types.Tick{Symbol: "RELIANCE", LastPrice: 2510.5, Timestamp: time.Now()}

	store.UpdateTick("RELIANCE", first)
	store.UpdateTick("RELIANCE", second)

	got, ok := store.GetTick("RELIANCE")
	if !ok {
		t.Fatal("Expected tick to be present")
	}
	if got.LastPrice != 2510.5 {
		t.Errorf("Expected last write to win with price 2510.5, got %f", got.LastPrice)
	}
}

func TestGetTickMissing(t *testing.T) {
	store := NewStore()
	if _, ok := store.GetTick("TCS"); ok {
		t.Error("Expected no tick for unknown symbol")
	}
}

func TestAccumulateVolumeSumsDeltas(t *testing.T) {
	store := NewStore()

	deltas := []int64{100, 250, 0, 4000}
	var want int64
	for _, d := range deltas {
		store.AccumulateVolume("INFY", d)
		want += d
	}

	if got := store.GetAccumulatedVolume("INFY"); got != want {
		t.Errorf("Expected accumulated volume %d, got %d", want, got)
	}
}

func TestAccumulateVolumeConcurrent(t *testing.T) {
	store := NewStore()

	const writers = 8
	const perWriter = 500

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				store.AccumulateVolume("SBIN", 1)
			}
		}()
	}
	wg.Wait()

	if got := store.GetAccumulatedVolume("SBIN"); got != writers*perWriter {
		t.Errorf("Expected %d after concurrent accumulation, got %d", writers*perWriter, got)
	}
}

func TestClearResetsVolume(t *testing.T) {
	store := NewStore()
	store.AccumulateVolume("ITC", 5000)
	store.Clear()

	if got := store.GetAccumulatedVolume("ITC"); got != 0 {
		t.Errorf("Expected volume 0 after clear, got %d", got)
	}

	store.AccumulateVolume("ITC", 42)
	if got := store.GetAccumulatedVolume("ITC"); got != 42 {
		t.Errorf("Expected volume 42 after clear and accumulate, got %d", got)
	}
}

func TestGetAllTicksIsIndependentCopy(t *testing.T) {
	store := NewStore()
	store.UpdateTick("HDFCBANK", types.Tick{Symbol: "HDFCBANK", LastPrice: 1600})

	ticks := store.GetAllTicks()
	ticks["HDFCBANK"] = types.Tick{Symbol: "HDFCBANK", LastPrice: 1}
	delete(ticks, "HDFCBANK")

	got, ok := store.GetTick("HDFCBANK")
	if !ok {
		t.Fatal("Expected store to still hold the tick")
	}
	if got.LastPrice != 1600 {
		t.Errorf("Expected store tick unchanged at 1600, got %f", got.LastPrice)
	}
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	store := NewStore()
	store.UpdateTick("TITAN", types.Tick{Symbol: "TITAN", LastPrice: 3400})
	store.SetHistorical("TITAN", types.HistoricalReference{Symbol: "TITAN", PrevClose: 3300, PrevHigh: 3350, AvgDailyVolume: 900000})
	store.AccumulateVolume("TITAN", 1000)

	snap := store.Snapshot()
	snap.Ticks["TITAN"] = types.Tick{Symbol: "TITAN", LastPrice: 0}
	snap.References["TITAN"] = types.HistoricalReference{}
	snap.Volumes["TITAN"] = -1

	if tick, _ := store.GetTick("TITAN"); tick.LastPrice != 3400 {
		t.Errorf("Expected tick unchanged, got %f", tick.LastPrice)
	}
	if ref, _ := store.GetHistorical("TITAN"); ref.PrevClose != 3300 {
		t.Errorf("Expected reference unchanged, got %f", ref.PrevClose)
	}
	if vol := store.GetAccumulatedVolume("TITAN"); vol != 1000 {
		t.Errorf("Expected volume unchanged, got %d", vol)
	}
}
