package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/username/foliodash/backend/src/models"
)

// Define common service errors
var (
	// ErrNoDataLoaded is returned by read operations before any successful load.
	ErrNoDataLoaded = errors.New("no portfolio data loaded")
	// ErrNoMatchingRows is returned when a filter selection leaves the view
	// empty; the base table is left untouched.
	ErrNoMatchingRows = errors.New("no rows match the current filter selection")
)

// FetchError carries the detail of a failed sheet download. The underlying
// cause is preserved for errors.Is/As and surfaced verbatim to the caller.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("failed to fetch sheet %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("failed to fetch sheet %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SheetFetcher downloads the raw CSV text of a published sheet.
type SheetFetcher interface {
	FetchCSV(ctx context.Context, url string) ([]byte, error)
}

// Selection is one filter choice over the loaded table. A nil slice means "all
// values" (no filtering on that dimension); an empty non-nil slice is an
// explicit empty selection that matches nothing.
type Selection struct {
	Accounts []string
	Types    []string
}

// DashboardService owns the single-session dashboard state: loading and
// replacing the cleaned table, and deriving filtered views, KPIs and chart
// series from it.
type DashboardService interface {
	Load(ctx context.Context, url string) (*models.Session, error)
	Reload(ctx context.Context) (*models.Session, error)
	Filters() (*models.DashboardFilters, error)
	Summary(sel Selection) (*models.DashboardSummary, error)
	Table(sel Selection) ([]models.PortfolioRow, error)
}
