package services

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/foliodash/backend/src/logger"
	"github.com/username/foliodash/backend/src/models"
	"github.com/username/foliodash/backend/src/parsers/sheet"
	"github.com/username/foliodash/backend/src/utils"
)

const ckCleanedTable = "cleaned_table_%s"

type dashboardServiceImpl struct {
	fetcher   SheetFetcher
	parser    *sheet.SheetParser
	loadCache *cache.Cache

	mu      sync.RWMutex
	session models.Session
}

// NewDashboardService creates the service owning the session state. loadCache
// memoizes fetch-and-clean results keyed by source URL, so repeated loads of
// the same sheet skip the network round trip until an explicit reload.
func NewDashboardService(fetcher SheetFetcher, parser *sheet.SheetParser, loadCache *cache.Cache) DashboardService {
	return &dashboardServiceImpl{
		fetcher:   fetcher,
		parser:    parser,
		loadCache: loadCache,
	}
}

// Load fetches, cleans and installs the sheet at url as the new session table.
// The session is replaced wholesale on success. On any failure the previous
// rows are kept but the loaded flag is cleared, so the caller stops rendering.
func (s *dashboardServiceImpl) Load(ctx context.Context, url string) (*models.Session, error) {
	cacheKey := fmt.Sprintf(ckCleanedTable, url)
	if cached, found := s.loadCache.Get(cacheKey); found {
		logger.InfoFromContext(ctx, "Serving cleaned table from cache", "url", url)
		return s.install(url, cached.([]models.PortfolioRow)), nil
	}

	raw, err := s.fetcher.FetchCSV(ctx, url)
	if err != nil {
		s.markLoadFailed(url)
		return nil, err
	}

	rows, err := s.parser.Parse(bytes.NewReader(raw))
	if err != nil {
		s.markLoadFailed(url)
		return nil, err
	}

	s.loadCache.Set(cacheKey, rows, cache.DefaultExpiration)
	logger.InfoFromContext(ctx, "Portfolio sheet loaded", "url", url, "rows", len(rows))
	return s.install(url, rows), nil
}

// Reload invalidates the memoized table for the current session URL and loads
// it again from the source.
func (s *dashboardServiceImpl) Reload(ctx context.Context) (*models.Session, error) {
	s.mu.RLock()
	url := s.session.SourceURL
	s.mu.RUnlock()

	if url == "" {
		return nil, ErrNoDataLoaded
	}
	s.loadCache.Delete(fmt.Sprintf(ckCleanedTable, url))
	return s.Load(ctx, url)
}

func (s *dashboardServiceImpl) install(url string, rows []models.PortfolioRow) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = models.Session{
		Rows:      rows,
		Loaded:    true,
		SourceURL: url,
		LoadedAt:  time.Now(),
	}
	snapshot := s.session
	return &snapshot
}

func (s *dashboardServiceImpl) markLoadFailed(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Prior rows are intentionally kept; only the flag is cleared.
	s.session.Loaded = false
	s.session.SourceURL = url
}

// Filters returns the distinct Account and Type values of the base table, in
// order of first appearance.
func (s *dashboardServiceImpl) Filters() (*models.DashboardFilters, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.session.Loaded {
		return nil, ErrNoDataLoaded
	}

	return &models.DashboardFilters{
		Accounts: distinct(s.session.Rows, func(r models.PortfolioRow) string { return r.Account }),
		Types:    distinct(s.session.Rows, func(r models.PortfolioRow) string { return r.Type }),
	}, nil
}

// Table returns the filtered detail rows. An empty result is not an error
// here; only the summary computation treats it as one.
func (s *dashboardServiceImpl) Table(sel Selection) ([]models.PortfolioRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.session.Loaded {
		return nil, ErrNoDataLoaded
	}
	view := filterRows(s.session.Rows, sel)
	if view == nil {
		view = []models.PortfolioRow{}
	}
	return view, nil
}

// Summary computes the KPIs and chart series over the filtered view. The base
// table is never mutated; filtering produces a derived view only.
func (s *dashboardServiceImpl) Summary(sel Selection) (*models.DashboardSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.session.Loaded {
		return nil, ErrNoDataLoaded
	}

	view := filterRows(s.session.Rows, sel)
	if len(view) == 0 {
		return nil, ErrNoMatchingRows
	}

	kpis := computeKPIs(view)
	return &models.DashboardSummary{
		Rows:             view,
		KPIs:             kpis,
		ValueByTicker:    valueByTicker(view),
		TypeDistribution: typeDistribution(view),
		Composition:      composition(view),
	}, nil
}

// filterRows keeps rows whose Account and Type are both in the respective
// selections. A nil selection slice means no filtering on that dimension.
func filterRows(rows []models.PortfolioRow, sel Selection) []models.PortfolioRow {
	accountSet := toSet(sel.Accounts)
	typeSet := toSet(sel.Types)

	var view []models.PortfolioRow
	for _, row := range rows {
		if accountSet != nil && !accountSet[row.Account] {
			continue
		}
		if typeSet != nil && !typeSet[row.Type] {
			continue
		}
		view = append(view, row)
	}
	return view
}

func toSet(values []string) map[string]bool {
	if values == nil {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func isCash(row models.PortfolioRow) bool {
	return strings.ToUpper(row.Type) == "CASH"
}

func computeKPIs(view []models.PortfolioRow) models.KPISet {
	var totalValue, totalPL, totalCapitalInput, investedCapital float64
	for _, row := range view {
		totalValue += row.CurrentValue
		totalCapitalInput += row.CapitalInput
		if row.ProfitLoss != nil {
			totalPL += *row.ProfitLoss
		}
		if !isCash(row) {
			investedCapital += row.CapitalInput
		}
	}

	// A zero or negative invested capital yields exactly 0, never a division
	// error or a nonsense negative percentage.
	var overallPctChange float64
	if investedCapital > 0 {
		overallPctChange = (totalPL / investedCapital) * 100
	}

	return models.KPISet{
		TotalValue:        totalValue,
		TotalPL:           totalPL,
		TotalCapitalInput: totalCapitalInput,
		InvestedCapital:   investedCapital,
		OverallPctChange:  overallPctChange,
		Formatted: models.KPIFormats{
			TotalValue:        utils.FormatCurrency(totalValue),
			TotalPL:           utils.FormatCurrency(totalPL),
			TotalCapitalInput: utils.FormatCurrency(totalCapitalInput),
			OverallPctChange:  utils.FormatPercent(overallPctChange),
		},
	}
}

// valueByTicker sums current value per ticker, descending by value. Cash rows
// are included; an uninvested balance is still part of the portfolio.
func valueByTicker(view []models.PortfolioRow) []models.TickerValue {
	sums := make(map[string]float64)
	for _, row := range view {
		sums[row.Ticker] += row.CurrentValue
	}
	series := make([]models.TickerValue, 0, len(sums))
	for ticker, value := range sums {
		series = append(series, models.TickerValue{Ticker: ticker, Value: value})
	}
	sort.Slice(series, func(i, j int) bool {
		if series[i].Value != series[j].Value {
			return series[i].Value > series[j].Value
		}
		return series[i].Ticker < series[j].Ticker
	})
	return series
}

// typeDistribution sums current value per type, excluding cash. All-cash views
// produce an empty series.
func typeDistribution(view []models.PortfolioRow) []models.TypeValue {
	sums := make(map[string]float64)
	for _, row := range view {
		if isCash(row) {
			continue
		}
		sums[row.Type] += row.CurrentValue
	}
	series := make([]models.TypeValue, 0, len(sums))
	for typ, value := range sums {
		series = append(series, models.TypeValue{Type: typ, Value: value})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Type < series[j].Type })
	return series
}

// composition groups non-cash rows by type then name, current value as size
// and summed profit/loss as the color dimension.
func composition(view []models.PortfolioRow) []models.CompositionNode {
	type key struct{ typ, name string }
	values := make(map[key]float64)
	profits := make(map[key]float64)
	for _, row := range view {
		if isCash(row) {
			continue
		}
		k := key{row.Type, row.Name}
		values[k] += row.CurrentValue
		if row.ProfitLoss != nil {
			profits[k] += *row.ProfitLoss
		}
	}
	nodes := make([]models.CompositionNode, 0, len(values))
	for k, value := range values {
		nodes = append(nodes, models.CompositionNode{
			Type:       k.typ,
			Name:       k.name,
			Value:      value,
			ProfitLoss: profits[k],
		})
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Type != nodes[j].Type {
			return nodes[i].Type < nodes[j].Type
		}
		return nodes[i].Name < nodes[j].Name
	})
	return nodes
}

func distinct(rows []models.PortfolioRow, get func(models.PortfolioRow) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, row := range rows {
		v := get(row)
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
