// Package cost tracks cloud token usage and spend against a monthly budget.
package cost

import (
	"sync"
	"time"
)

// DefaultRatePerMillion is the assumed price per 1M tokens when a provider
// has no configured rate.
const DefaultRatePerMillion = 0.50

// Tracker monitors cloud usage. On-device work is free and never recorded.
type Tracker struct {
	mu sync.Mutex

	rates         map[string]float64 // Cost per 1M tokens by provider
	monthlyBudget float64
	daily         *DailyStats
	monthly       *MonthlyStats
	now           func() time.Time
}

// DailyStats tracks cost for a single day.
type DailyStats struct {
	Date        string         `json:"date"`
	CloudTokens int            `json:"cloud_tokens"`
	CloudCost   float64        `json:"cloud_cost"`
	Requests    int            `json:"requests"`
	ByProvider  map[string]int `json:"by_provider"`
}

// MonthlyStats tracks cost for a month.
type MonthlyStats struct {
	Month       string  `json:"month"`
	CloudTokens int     `json:"cloud_tokens"`
	CloudCost   float64 `json:"cloud_cost"`
	Requests    int     `json:"requests"`
	Budget      float64 `json:"budget"`
}

// NewTracker creates a cost tracker. A budget of zero disables the limit.
func NewTracker(monthlyBudget float64) *Tracker {
	t := &Tracker{
		rates:         make(map[string]float64),
		monthlyBudget: monthlyBudget,
		now:           time.Now,
	}
	t.resetDaily()
	t.resetMonthly()
	return t
}

// SetRate sets the price per 1M tokens for a provider.
func (t *Tracker) SetRate(provider string, perMillion float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rates[provider] = perMillion
}

// Record records a cloud inference request and returns its estimated cost.
func (t *Tracker) Record(provider string, tokens int) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover()

	rate, ok := t.rates[provider]
	if !ok {
		rate = DefaultRatePerMillion
	}
	cost := float64(tokens) / 1_000_000 * rate

	t.daily.CloudTokens += tokens
	t.daily.CloudCost += cost
	t.daily.Requests++
	t.daily.ByProvider[provider] += tokens

	t.monthly.CloudTokens += tokens
	t.monthly.CloudCost += cost
	t.monthly.Requests++

	return cost
}

// OverBudget reports whether this month's spend reached the budget.
func (t *Tracker) OverBudget() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	return t.monthlyBudget > 0 && t.monthly.CloudCost >= t.monthlyBudget
}

// GetDailyStats returns a copy of the current daily statistics.
func (t *Tracker) GetDailyStats() DailyStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()

	out := *t.daily
	out.ByProvider = make(map[string]int, len(t.daily.ByProvider))
	for k, v := range t.daily.ByProvider {
		out.ByProvider[k] = v
	}
	return out
}

// GetMonthlyStats returns a copy of the current monthly statistics.
func (t *Tracker) GetMonthlyStats() MonthlyStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	return *t.monthly
}

// rollover starts new periods when the date changes. Caller holds mu.
func (t *Tracker) rollover() {
	now := t.now()
	if t.daily.Date != now.Format("2006-01-02") {
		t.resetDaily()
	}
	if t.monthly.Month != now.Format("2006-01") {
		t.resetMonthly()
	}
}

func (t *Tracker) resetDaily() {
	t.daily = &DailyStats{Date: t.now().Format("2006-01-02"), ByProvider: make(map[string]int)}
}

func (t *Tracker) resetMonthly() {
	t.monthly = &MonthlyStats{Month: t.now().Format("2006-01"), Budget: t.monthlyBudget}
}
