package services

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/foliodash/backend/src/logger"
	"github.com/username/foliodash/backend/src/parsers/sheet"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

const testHeader = "Account,Ticker,Tag,Name,Type,Action,Shares,Cost of Shares,Current Price of Shares,Capital Input,Current Value,% change,P/L"

const testSheet = testHeader + "\n" +
	"Broker A,AAPL,Tech,Apple,Stock,Hold,5,$100,$130,$500,$650,30%,$150\n" +
	"Broker A,VWCE,Core,Vanguard All-World,ETF,Hold,10,$100,$105,\"$1,000\",\"$1,050\",5%,$50\n" +
	"Broker B,MSFT,Tech,Microsoft,Stock,Hold,2,$200,$175,$400,$350,-12.5%,-$50\n" +
	"Broker B,EUR,,Euro Balance,Cash,,,,,-$100,-$100,,"

type mockFetcher struct {
	payload []byte
	err     error
	calls   int
}

func (m *mockFetcher) FetchCSV(ctx context.Context, url string) ([]byte, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.payload, nil
}

func newTestService(fetcher SheetFetcher) DashboardService {
	loadCache := cache.New(5*time.Minute, 10*time.Minute)
	return NewDashboardService(fetcher, sheet.NewParser(), loadCache)
}

func loadTestSheet(t *testing.T) (DashboardService, *mockFetcher) {
	t.Helper()
	fetcher := &mockFetcher{payload: []byte(testSheet)}
	svc := newTestService(fetcher)
	_, err := svc.Load(context.Background(), "https://example.com/sheet.csv")
	require.NoError(t, err)
	return svc, fetcher
}

func TestLoad_ReplacesSession(t *testing.T) {
	fetcher := &mockFetcher{payload: []byte(testSheet)}
	svc := newTestService(fetcher)

	session, err := svc.Load(context.Background(), "https://example.com/sheet.csv")
	require.NoError(t, err)
	assert.True(t, session.Loaded)
	assert.Equal(t, "https://example.com/sheet.csv", session.SourceURL)
	assert.Len(t, session.Rows, 4)
}

func TestLoad_MemoizesByURL(t *testing.T) {
	svc, fetcher := loadTestSheet(t)

	_, err := svc.Load(context.Background(), "https://example.com/sheet.csv")
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.calls, "second load of the same URL should hit the cache")
}

func TestReload_InvalidatesCache(t *testing.T) {
	svc, fetcher := loadTestSheet(t)

	_, err := svc.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.calls, "reload must bypass the memoized table")
}

func TestReload_WithoutPriorLoad(t *testing.T) {
	svc := newTestService(&mockFetcher{payload: []byte(testSheet)})
	_, err := svc.Reload(context.Background())
	assert.ErrorIs(t, err, ErrNoDataLoaded)
}

func TestLoad_FetchFailureClearsLoadedFlag(t *testing.T) {
	fetcher := &mockFetcher{payload: []byte(testSheet)}
	svc := newTestService(fetcher)
	_, err := svc.Load(context.Background(), "https://example.com/sheet.csv")
	require.NoError(t, err)

	fetcher.err = &FetchError{URL: "https://example.com/other.csv", Status: 500}
	_, err = svc.Load(context.Background(), "https://example.com/other.csv")
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)

	_, err = svc.Summary(Selection{})
	assert.ErrorIs(t, err, ErrNoDataLoaded)
}

func TestSummary_KPIs(t *testing.T) {
	svc, _ := loadTestSheet(t)

	summary, err := svc.Summary(Selection{})
	require.NoError(t, err)

	kpis := summary.KPIs
	// 650 + 1050 + 350 - 100 (negative cash included)
	assert.InDelta(t, 1950.0, kpis.TotalValue, 1e-9)
	assert.InDelta(t, 150.0, kpis.TotalPL, 1e-9)
	// 500 + 1000 + 400 - 100
	assert.InDelta(t, 1800.0, kpis.TotalCapitalInput, 1e-9)
	// Cash excluded from the denominator.
	assert.InDelta(t, 1900.0, kpis.InvestedCapital, 1e-9)
	assert.InDelta(t, 150.0/1900.0*100, kpis.OverallPctChange, 1e-9)

	assert.Equal(t, "$1,950.00", kpis.Formatted.TotalValue)
	assert.Equal(t, "$150.00", kpis.Formatted.TotalPL)
	assert.Equal(t, "$1,800.00", kpis.Formatted.TotalCapitalInput)
	assert.Equal(t, "7.89%", kpis.Formatted.OverallPctChange)
}

func TestSummary_ZeroInvestedCapital(t *testing.T) {
	csvText := testHeader + "\n" +
		"Broker A,EUR,,Euro Balance,Cash,,,,,$500,$500,,\n" +
		"Broker B,USD,,Dollar Balance,Cash,,,,,$250,$250,,"
	fetcher := &mockFetcher{payload: []byte(csvText)}
	svc := newTestService(fetcher)
	_, err := svc.Load(context.Background(), "https://example.com/cash.csv")
	require.NoError(t, err)

	summary, err := svc.Summary(Selection{})
	require.NoError(t, err)
	assert.Zero(t, summary.KPIs.InvestedCapital)
	assert.Equal(t, 0.0, summary.KPIs.OverallPctChange)
	assert.Empty(t, summary.TypeDistribution)
	assert.Empty(t, summary.Composition)
	// Value-by-ticker still includes the cash positions.
	assert.Len(t, summary.ValueByTicker, 2)
}

func TestSummary_NegativeInvestedCapital(t *testing.T) {
	csvText := testHeader + "\n" +
		"Broker A,XYZ,,Closed Out,Stock,Sold,0,$0,$0,-$100,$10,,$10"
	fetcher := &mockFetcher{payload: []byte(csvText)}
	svc := newTestService(fetcher)
	_, err := svc.Load(context.Background(), "https://example.com/neg.csv")
	require.NoError(t, err)

	summary, err := svc.Summary(Selection{})
	require.NoError(t, err)
	assert.InDelta(t, -100.0, summary.KPIs.InvestedCapital, 1e-9)
	assert.Equal(t, 0.0, summary.KPIs.OverallPctChange)
}

func TestSummary_FilterByAccount(t *testing.T) {
	svc, _ := loadTestSheet(t)

	summary, err := svc.Summary(Selection{Accounts: []string{"Broker A"}})
	require.NoError(t, err)
	assert.Len(t, summary.Rows, 2)
	assert.InDelta(t, 1700.0, summary.KPIs.TotalValue, 1e-9)
}

func TestSummary_FilterByType(t *testing.T) {
	svc, _ := loadTestSheet(t)

	summary, err := svc.Summary(Selection{Types: []string{"Stock"}})
	require.NoError(t, err)
	assert.Len(t, summary.Rows, 2)
	assert.InDelta(t, 1000.0, summary.KPIs.TotalValue, 1e-9)
}

func TestSummary_EmptySelection(t *testing.T) {
	svc, _ := loadTestSheet(t)

	_, err := svc.Summary(Selection{Accounts: []string{}})
	assert.ErrorIs(t, err, ErrNoMatchingRows)

	// The base table is left intact.
	summary, err := svc.Summary(Selection{})
	require.NoError(t, err)
	assert.Len(t, summary.Rows, 4)
}

func TestSummary_ValueByTickerSortedDescending(t *testing.T) {
	svc, _ := loadTestSheet(t)

	summary, err := svc.Summary(Selection{})
	require.NoError(t, err)
	require.Len(t, summary.ValueByTicker, 4)
	for i := 1; i < len(summary.ValueByTicker); i++ {
		assert.GreaterOrEqual(t, summary.ValueByTicker[i-1].Value, summary.ValueByTicker[i].Value)
	}
	assert.Equal(t, "VWCE", summary.ValueByTicker[0].Ticker)
}

func TestSummary_SeriesExcludeCash(t *testing.T) {
	svc, _ := loadTestSheet(t)

	summary, err := svc.Summary(Selection{})
	require.NoError(t, err)

	for _, tv := range summary.TypeDistribution {
		assert.NotEqual(t, "Cash", tv.Type)
	}
	for _, node := range summary.Composition {
		assert.NotEqual(t, "Cash", node.Type)
	}
	// Stocks grouped: Apple 650 + Microsoft 350, ETF 1050.
	require.Len(t, summary.TypeDistribution, 2)
	assert.Equal(t, "ETF", summary.TypeDistribution[0].Type)
	assert.InDelta(t, 1050.0, summary.TypeDistribution[0].Value, 1e-9)
	assert.Equal(t, "Stock", summary.TypeDistribution[1].Type)
	assert.InDelta(t, 1000.0, summary.TypeDistribution[1].Value, 1e-9)
}

func TestSummary_CompositionCarriesProfitLoss(t *testing.T) {
	svc, _ := loadTestSheet(t)

	summary, err := svc.Summary(Selection{})
	require.NoError(t, err)
	require.Len(t, summary.Composition, 3)

	byName := make(map[string]float64)
	for _, node := range summary.Composition {
		byName[node.Name] = node.ProfitLoss
	}
	assert.InDelta(t, 150.0, byName["Apple"], 1e-9)
	assert.InDelta(t, -50.0, byName["Microsoft"], 1e-9)
}

func TestFilters_DistinctValues(t *testing.T) {
	svc, _ := loadTestSheet(t)

	filters, err := svc.Filters()
	require.NoError(t, err)
	assert.Equal(t, []string{"Broker A", "Broker B"}, filters.Accounts)
	assert.Equal(t, []string{"Stock", "ETF", "Cash"}, filters.Types)
}

func TestFilters_BeforeLoad(t *testing.T) {
	svc := newTestService(&mockFetcher{payload: []byte(testSheet)})
	_, err := svc.Filters()
	assert.ErrorIs(t, err, ErrNoDataLoaded)
}

func TestTable_EmptySelectionReturnsEmptySlice(t *testing.T) {
	svc, _ := loadTestSheet(t)

	rows, err := svc.Table(Selection{Types: []string{}})
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestLoad_ParseFailurePropagates(t *testing.T) {
	fetcher := &mockFetcher{payload: []byte("")}
	svc := newTestService(fetcher)
	_, err := svc.Load(context.Background(), "https://example.com/empty.csv")
	assert.True(t, errors.Is(err, sheet.ErrEmptySource))
}
