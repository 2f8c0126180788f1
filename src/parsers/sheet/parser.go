package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/username/foliodash/backend/src/models"
	"github.com/username/foliodash/backend/src/security/validation"
)

// ErrEmptySource is returned when the parsed sheet has no data rows at all.
var ErrEmptySource = errors.New("sheet is empty or contains no data rows")

// MissingColumnsError reports which required columns are absent from the sheet
// header. It names every missing column, not just the first.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return "required columns missing from sheet: " + strings.Join(e.Columns, ", ")
}

// Required column names, in the order they are reported when missing.
var requiredColumns = []string{
	"Account", "Ticker", "Tag", "Name", "Type", "Action",
	"Shares", "Cost of Shares", "Current Price of Shares",
	"Capital Input", "Current Value", "% change", "P/L",
}

// Currency and percentage columns carry $, thousands-comma and % symbols that
// must be stripped before numeric coercion. Shares is plain numeric and is
// deliberately not in this set.
var symbolColumns = map[string]bool{
	"Cost of Shares":          true,
	"Current Price of Shares": true,
	"Capital Input":           true,
	"Current Value":           true,
	"P/L":                     true,
	"% change":                true,
}

var currencySymbolRe = regexp.MustCompile(`[$,%]`)

// SheetParser converts a published portfolio sheet export (CSV) into cleaned
// portfolio rows. Parsing is a pure function of the input text, so results are
// safe to memoize by source.
type SheetParser struct{}

// NewParser creates a new instance of the SheetParser.
func NewParser() *SheetParser {
	return &SheetParser{}
}

// Parse reads CSV-formatted portfolio data and returns the cleaned table.
//
// Individual malformed lines are skipped rather than aborting the parse.
// Cleaning order: strip currency symbols, coerce numerics (failures become
// nil), zero-fill the irrelevant numeric fields of CASH rows, backfill
// Account/Type with "Unknown", then drop every row whose Current Value or
// Capital Input is still unresolvable.
func (p *SheetParser) Parse(file io.Reader) ([]models.PortfolioRow, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // Allow variable number of fields per record
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptySource
	}
	if err != nil {
		return nil, fmt.Errorf("sheet parser: failed to read CSV header: %w", err)
	}

	columnIndex := make(map[string]int, len(header))
	for i, name := range header {
		columnIndex[strings.TrimSpace(name)] = i
	}

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Publish-to-web exports often carry stray notes below the table.
			log.Printf("Sheet Parser: Skipping malformed CSV line: %v", err)
			continue
		}
		if len(record) != len(header) {
			log.Printf("Sheet Parser: Skipping line with %d fields, expected %d", len(record), len(header))
			continue
		}
		records = append(records, record)
	}

	if len(records) == 0 {
		return nil, ErrEmptySource
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := columnIndex[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}

	field := func(record []string, col string) string {
		return record[columnIndex[col]]
	}

	var rows []models.PortfolioRow
	for _, record := range records {
		row := models.PortfolioRow{
			Account: validation.CleanField(field(record, "Account")),
			Ticker:  validation.CleanField(field(record, "Ticker")),
			Tag:     validation.CleanField(field(record, "Tag")),
			Name:    validation.CleanField(field(record, "Name")),
			Type:    validation.CleanField(field(record, "Type")),
			Action:  validation.CleanField(field(record, "Action")),
		}

		row.Shares = parseNumeric(field(record, "Shares"), "Shares")
		row.CostOfShares = parseNumeric(field(record, "Cost of Shares"), "Cost of Shares")
		row.CurrentPrice = parseNumeric(field(record, "Current Price of Shares"), "Current Price of Shares")
		capitalInput := parseNumeric(field(record, "Capital Input"), "Capital Input")
		currentValue := parseNumeric(field(record, "Current Value"), "Current Value")
		row.PctChange = parseNumeric(field(record, "% change"), "% change")
		row.ProfitLoss = parseNumeric(field(record, "P/L"), "P/L")

		// Cash positions legitimately leave the share-level fields blank;
		// zero-fill them so the row survives the drop below. Capital Input and
		// Current Value are never zero-filled, they must parse on their own.
		if strings.ToUpper(row.Type) == "CASH" {
			zeroFill(&row.Shares)
			zeroFill(&row.CostOfShares)
			zeroFill(&row.CurrentPrice)
			zeroFill(&row.PctChange)
			zeroFill(&row.ProfitLoss)
		}

		if row.Account == "" {
			row.Account = "Unknown"
		}
		if row.Type == "" {
			row.Type = "Unknown"
		}

		if currentValue == nil || capitalInput == nil {
			log.Printf("Sheet Parser: Dropping row for ticker %q: Current Value or Capital Input not numeric", row.Ticker)
			continue
		}
		row.CurrentValue = *currentValue
		row.CapitalInput = *capitalInput

		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, ErrEmptySource
	}

	return rows, nil
}

// parseNumeric coerces one cell to a float. Currency/percentage columns get
// their $ , % symbols stripped first. Unparseable values become nil, never a
// hard failure.
func parseNumeric(raw, column string) *float64 {
	cleaned := strings.TrimSpace(raw)
	if symbolColumns[column] {
		cleaned = currencySymbolRe.ReplaceAllString(cleaned, "")
	}
	if cleaned == "" {
		return nil
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	// ParseFloat accepts the literals NaN and Inf; neither is a usable amount.
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func zeroFill(v **float64) {
	if *v == nil {
		zero := 0.0
		*v = &zero
	}
}
