package broker

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"factorlab/internal/domain"
)

// fixture returns four days with a long signal on day 0 and 1, short on
// day 2, flat on day 3, and a size of 10 throughout.
func fixture() ([]domain.SignalRow, []domain.Bar) {
	day := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	closes := []float64{100, 110, 105, 120}
	signals := []domain.Signal{domain.SignalLong, domain.SignalLong, domain.SignalShort, domain.SignalFlat}

	rows := make([]domain.SignalRow, len(closes))
	bars := make([]domain.Bar, len(closes))
	for i := range closes {
		ts := day.AddDate(0, 0, i)
		bars[i] = domain.Bar{Symbol: "TEST", Timestamp: ts, Open: closes[i], High: closes[i], Low: closes[i], Close: closes[i]}
		rows[i] = domain.SignalRow{Timestamp: ts, Price: closes[i], Signal: signals[i], PositionSize: 10}
	}
	return rows, bars
}

func TestBrokerNames(t *testing.T) {
	if got := NewSimulatorBroker(1, 0).Name(); got != "daily-debit" {
		t.Errorf("SimulatorBroker.Name() = %q, want %q", got, "daily-debit")
	}
	if got := NewMarkToMarketBroker(1, 0).Name(); got != "trade-only" {
		t.Errorf("MarkToMarketBroker.Name() = %q, want %q", got, "trade-only")
	}
}

func TestNew(t *testing.T) {
	for mode, want := range map[string]string{
		"":             ModeDailyDebit,
		ModeDailyDebit: ModeDailyDebit,
		ModeTradeOnly:  ModeTradeOnly,
	} {
		b, err := New(mode, 1000, 0)
		if err != nil {
			t.Fatalf("New(%q) returned error: %v", mode, err)
		}
		if b.Name() != want {
			t.Errorf("New(%q).Name() = %q, want %q", mode, b.Name(), want)
		}
	}
	if _, err := New("fifo", 1000, 0); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("New(fifo) error = %v, want ErrUnknownMode", err)
	}
}

func TestSimulatorBrokerDailyDebit(t *testing.T) {
	rows, bars := fixture()
	out, err := NewSimulatorBroker(10000, 0).Settle(context.Background(), rows, bars)
	if err != nil {
		t.Fatalf("Settle returned error: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("Settle returned %d rows, want 4", len(out))
	}

	// Day 0: flat, no lagged signal yet.
	// Day 1: long 10 @110, debit 1100.
	// Day 2: long 10 @105, debit 1050 again (held day counts as a trade).
	// Day 3: short 10 @120, credit 1200.
	want := []struct {
		pos      domain.Signal
		holdings float64
		cash     float64
	}{
		{domain.SignalFlat, 0, 10000},
		{domain.SignalLong, 1100, 8900},
		{domain.SignalLong, 1050, 7850},
		{domain.SignalShort, -1200, 9050},
	}
	for i, w := range want {
		r := out[i]
		if r.Position != w.pos {
			t.Errorf("row %d Position = %v, want %v", i, r.Position, w.pos)
		}
		if r.Holdings != w.holdings {
			t.Errorf("row %d Holdings = %v, want %v", i, r.Holdings, w.holdings)
		}
		if r.Cash != w.cash {
			t.Errorf("row %d Cash = %v, want %v", i, r.Cash, w.cash)
		}
		if r.Total != r.Cash+r.Holdings {
			t.Errorf("row %d Total = %v, want Cash+Holdings = %v", i, r.Total, r.Cash+r.Holdings)
		}
	}

	if out[0].PositionSize != 0 || out[1].PositionSize != 10 {
		t.Errorf("PositionSize lag = %d/%d, want 0/10", out[0].PositionSize, out[1].PositionSize)
	}
	if out[0].Returns != 0 {
		t.Errorf("Returns[0] = %v, want 0", out[0].Returns)
	}
	// total: 10000, 10000, 8900, 7850
	prev, cur := out[1].Total, out[2].Total
	if want := cur/prev - 1; out[2].Returns != want || cur != 8900 {
		t.Errorf("Returns[2] = %v, want %v", out[2].Returns, want)
	}
}

func TestMarkToMarketBrokerTradeOnly(t *testing.T) {
	rows, bars := fixture()
	out, err := NewMarkToMarketBroker(10000, 0).Settle(context.Background(), rows, bars)
	if err != nil {
		t.Fatalf("Settle returned error: %v", err)
	}

	// Day 1: buy 10 @110 -> cash 8900, holdings 1100.
	// Day 2: hold -> cash 8900, holdings 1050.
	// Day 3: flip to -10: sell 20 @120 -> cash 11300, holdings -1200.
	wantCash := []float64{10000, 8900, 8900, 11300}
	wantTotal := []float64{10000, 10000, 9950, 10100}
	for i := range out {
		if out[i].Cash != wantCash[i] {
			t.Errorf("row %d Cash = %v, want %v", i, out[i].Cash, wantCash[i])
		}
		if out[i].Total != wantTotal[i] {
			t.Errorf("row %d Total = %v, want %v", i, out[i].Total, wantTotal[i])
		}
		if out[i].Total != out[i].Cash+out[i].Holdings {
			t.Errorf("row %d accounting identity broken", i)
		}
	}
}

func TestTransactionCostsApplied(t *testing.T) {
	rows, bars := fixture()
	const rate = 0.001

	daily, err := NewSimulatorBroker(10000, rate).Settle(context.Background(), rows, bars)
	if err != nil {
		t.Fatalf("Settle returned error: %v", err)
	}
	// Costs: 1100, 1050 and 1200 notional are booked.
	wantCost := rate * (1100 + 1050 + 1200)
	if got := 9050 - daily[3].Cash; math.Abs(got-wantCost) > 1e-9 {
		t.Errorf("daily-debit cost = %v, want %v", got, wantCost)
	}

	trade, err := NewMarkToMarketBroker(10000, rate).Settle(context.Background(), rows, bars)
	if err != nil {
		t.Fatalf("Settle returned error: %v", err)
	}
	// Costs: buy 1100 notional, then sell 2400 notional.
	wantCost = rate * (1100 + 2400)
	if got := 11300 - trade[3].Cash; math.Abs(got-wantCost) > 1e-9 {
		t.Errorf("trade-only cost = %v, want %v", got, wantCost)
	}
	// A flat day books no cost.
	if trade[0].Cash != 10000 || daily[0].Cash != 10000 {
		t.Errorf("flat day charged cost: %v / %v", trade[0].Cash, daily[0].Cash)
	}
}

func TestSettleZeroTotalReturnsZero(t *testing.T) {
	rows, bars := fixture()
	// With zero capital the first two totals are zero; the percent change
	// after a zero total is guarded to 0.
	rows[1].Signal = domain.SignalFlat
	out, err := NewMarkToMarketBroker(0, 0).Settle(context.Background(), rows, bars)
	if err != nil {
		t.Fatalf("Settle returned error: %v", err)
	}
	for i, r := range out {
		if math.IsNaN(r.Returns) || math.IsInf(r.Returns, 0) {
			t.Errorf("row %d Returns = %v, want finite", i, r.Returns)
		}
	}
	if out[1].Returns != 0 {
		t.Errorf("Returns after zero total = %v, want 0", out[1].Returns)
	}
}

func TestSettleLengthMismatch(t *testing.T) {
	rows, bars := fixture()
	for _, b := range []Broker{NewSimulatorBroker(1, 0), NewMarkToMarketBroker(1, 0)} {
		if _, err := b.Settle(context.Background(), rows[:2], bars); !errors.Is(err, ErrLengthMismatch) {
			t.Errorf("%s: Settle error = %v, want ErrLengthMismatch", b.Name(), err)
		}
	}
}

func TestSettleEmpty(t *testing.T) {
	out, err := NewSimulatorBroker(1000, 0).Settle(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Settle returned error: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("Settle returned %d rows, want 0", len(out))
	}
}

func TestSettleRuinClampsReturns(t *testing.T) {
	rows, bars := fixture()
	// Totals: 1000, 1000, -100, -1150. The fall below zero is a total
	// loss and the negative base after it has no percent change.
	out, err := NewSimulatorBroker(1000, 0).Settle(context.Background(), rows, bars)
	if err != nil {
		t.Fatalf("Settle returned error: %v", err)
	}
	wantTotal := []float64{1000, 1000, -100, -1150}
	wantReturns := []float64{0, 0, -1, 0}
	for i := range out {
		if out[i].Total != wantTotal[i] {
			t.Errorf("row %d Total = %v, want %v", i, out[i].Total, wantTotal[i])
		}
		if out[i].Returns != wantReturns[i] {
			t.Errorf("row %d Returns = %v, want %v", i, out[i].Returns, wantReturns[i])
		}
	}
}
