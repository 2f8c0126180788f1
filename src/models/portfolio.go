package models

import "time"

// PortfolioRow is one cleaned entry of the portfolio sheet, either a security
// holding or a cash position. Numeric fields the source sheet may leave blank
// are pointers; nil means the value did not parse and was not backfilled.
// CapitalInput and CurrentValue are always present: rows where either failed
// to parse are dropped during cleaning.
type PortfolioRow struct {
	Account string `json:"account"`
	Ticker  string `json:"ticker"`
	Tag     string `json:"tag"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Action  string `json:"action"`

	Shares       *float64 `json:"shares"`
	CostOfShares *float64 `json:"cost_of_shares"`
	CurrentPrice *float64 `json:"current_price_of_shares"`
	CapitalInput float64  `json:"capital_input"`
	CurrentValue float64  `json:"current_value"`
	PctChange    *float64 `json:"pct_change"`
	ProfitLoss   *float64 `json:"profit_loss"`
}

// Session holds the single-session dashboard state. It is replaced wholesale
// on each successful load and never partially updated. A failed load keeps the
// previous rows but clears Loaded, so the frontend stops rendering stale data.
type Session struct {
	Rows      []PortfolioRow `json:"rows"`
	Loaded    bool           `json:"loaded"`
	SourceURL string         `json:"source_url"`
	LoadedAt  time.Time      `json:"loaded_at"`
}

// DashboardFilters lists the distinct filterable values of the loaded table.
type DashboardFilters struct {
	Accounts []string `json:"accounts"`
	Types    []string `json:"types"`
}

// KPIFormats carries the display strings for the scalar metrics: currency with
// two decimals and thousands separators, percentage with two decimals.
type KPIFormats struct {
	TotalValue        string `json:"total_value"`
	TotalPL           string `json:"total_pl"`
	TotalCapitalInput string `json:"total_capital_input"`
	OverallPctChange  string `json:"overall_pct_change"`
}

// KPISet holds the scalar summary metrics computed over a filtered view.
// InvestedCapital sums capital input over non-cash rows only and is the
// denominator of OverallPctChange; when it is zero or negative the percentage
// is reported as exactly 0.
type KPISet struct {
	TotalValue        float64    `json:"total_value"`
	TotalPL           float64    `json:"total_pl"`
	TotalCapitalInput float64    `json:"total_capital_input"`
	InvestedCapital   float64    `json:"invested_capital"`
	OverallPctChange  float64    `json:"overall_pct_change"`
	Formatted         KPIFormats `json:"formatted"`
}

// TickerValue is one bar of the value-by-ticker chart, sorted by descending
// value for display.
type TickerValue struct {
	Ticker string  `json:"ticker"`
	Value  float64 `json:"value"`
}

// TypeValue is one slice of the distribution-by-type chart. Cash rows are
// excluded from this series.
type TypeValue struct {
	Type  string  `json:"type"`
	Value float64 `json:"value"`
}

// CompositionNode is one leaf of the type/name composition treemap: current
// value as size, profit/loss as the color dimension. Cash rows are excluded.
type CompositionNode struct {
	Type       string  `json:"type"`
	Name       string  `json:"name"`
	Value      float64 `json:"value"`
	ProfitLoss float64 `json:"profit_loss"`
}

// DashboardSummary is the full payload handed to the presentation layer for
// one filter selection: the filtered rows, the KPIs, and the three chart
// series.
type DashboardSummary struct {
	Rows             []PortfolioRow    `json:"rows"`
	KPIs             KPISet            `json:"kpis"`
	ValueByTicker    []TickerValue     `json:"value_by_ticker"`
	TypeDistribution []TypeValue       `json:"type_distribution"`
	Composition      []CompositionNode `json:"composition"`
}
