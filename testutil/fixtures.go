package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Aidin1998/amlwatch/internal/compliance/aml"
	"github.com/shopspring/decimal"
)

// Now is the fixed instant most tests scan at
var Now = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

// Clock returns a time source frozen at t
func Clock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// MutableClock is a time source tests can move forward
type MutableClock struct {
	mu sync.Mutex
	t  time.Time
}

func NewMutableClock(t time.Time) *MutableClock { return &MutableClock{t: t} }

func (c *MutableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *MutableClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// TradeFixture describes a ledger row
type TradeFixture struct {
	ID     string
	UserID string
	Side   string
	Value  decimal.Decimal
	Status string
	At     time.Time
}

// Buy builds a settled BUY fixture of value USD, age before Now
func Buy(id, userID string, value float64, age time.Duration) TradeFixture {
	return TradeFixture{ID: id, UserID: userID, Side: "BUY", Value: decimal.NewFromFloat(value), At: Now.Add(-age)}
}

// Sell builds a settled SELL fixture of value USD, age before Now
func Sell(id, userID string, value float64, age time.Duration) TradeFixture {
	return TradeFixture{ID: id, UserID: userID, Side: "SELL", Value: decimal.NewFromFloat(value), At: Now.Add(-age)}
}

// Trade converts the fixture to the domain type
func (f TradeFixture) Trade() aml.Trade {
	status := f.Status
	if status == "" {
		status = aml.TradeStatusSettled
	}
	return aml.Trade{
		ID:            f.ID,
		UserID:        f.UserID,
		Side:          aml.TradeSide(f.Side),
		TotalValueUSD: f.Value,
		Status:        status,
		CreatedAt:     f.At,
	}
}

// Trades converts fixtures and sorts them ascending by time
func Trades(fs ...TradeFixture) []aml.Trade {
	out := make([]aml.Trade, len(fs))
	for i, f := range fs {
		out[i] = f.Trade()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// StubTradeReader is an in-memory aml.TradeReader that counts calls
type StubTradeReader struct {
	mu         sync.Mutex
	trades     map[string][]aml.Trade
	Err        error
	WindowHits int
	PriorHits  int
}

func NewStubTradeReader(fs ...TradeFixture) *StubTradeReader {
	r := &StubTradeReader{trades: make(map[string][]aml.Trade)}
	for _, t := range Trades(fs...) {
		r.trades[t.UserID] = append(r.trades[t.UserID], t)
	}
	return r
}

func (r *StubTradeReader) FindSettledTrades(_ context.Context, userID string, since time.Time) ([]aml.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.WindowHits++
	if r.Err != nil {
		return nil, r.Err
	}
	var out []aml.Trade
	for _, t := range r.trades[userID] {
		if t.Status == aml.TradeStatusSettled && !t.CreatedAt.Before(since) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *StubTradeReader) FindLastSettledTradeBefore(_ context.Context, userID string, before time.Time) (*aml.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.PriorHits++
	if r.Err != nil {
		return nil, r.Err
	}
	var last *aml.Trade
	for i := range r.trades[userID] {
		t := r.trades[userID][i]
		if t.Status == aml.TradeStatusSettled && t.CreatedAt.Before(before) {
			last = &t
		}
	}
	return last, nil
}

// RecordingPublisher captures published events
type RecordingPublisher struct {
	mu     sync.Mutex
	events []aml.Event
	Err    error
}

func (p *RecordingPublisher) Publish(_ context.Context, ev aml.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, ev)
	return nil
}

// Events returns a copy of everything published so far
func (p *RecordingPublisher) Events() []aml.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]aml.Event, len(p.events))
	copy(out, p.events)
	return out
}

// OfType filters recorded events by type
func (p *RecordingPublisher) OfType(t aml.EventType) []aml.Event {
	var out []aml.Event
	for _, ev := range p.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// Seq returns n ids prefixed with prefix: prefix-01, prefix-02...
func Seq(prefix string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s-%02d", prefix, i+1)
	}
	return ids
}
