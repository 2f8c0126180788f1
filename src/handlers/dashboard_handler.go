package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/username/foliodash/backend/src/config"
	"github.com/username/foliodash/backend/src/logger"
	"github.com/username/foliodash/backend/src/parsers/sheet"
	"github.com/username/foliodash/backend/src/services"
	"github.com/username/foliodash/backend/src/utils"
)

type DashboardHandler struct {
	dashboardService services.DashboardService
}

func NewDashboardHandler(service services.DashboardService) *DashboardHandler {
	return &DashboardHandler{
		dashboardService: service,
	}
}

type loadRequest struct {
	URL string `json:"url"`
}

type loadResponse struct {
	Status    string `json:"status"`
	SourceURL string `json:"source_url"`
	Rows      int    `json:"rows"`
	LoadedAt  string `json:"loaded_at"`
}

// HandleLoad fetches, cleans and installs the sheet named in the request body.
// An omitted URL falls back to the configured default sheet.
func (h *DashboardHandler) HandleLoad(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	var req loadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctxLogger.Warn("Invalid load request body", "error", err)
		utils.SendJSONError(w, "Invalid request body; expected JSON with a 'url' field.", http.StatusBadRequest)
		return
	}

	url := strings.TrimSpace(req.URL)
	if url == "" {
		url = config.Cfg.DefaultSheetURL
	}
	if url == "" {
		utils.SendJSONError(w, "Sheet URL is required and no default is configured.", http.StatusBadRequest)
		return
	}

	ctxLogger.Info("Processing load request", "url", url)
	session, err := h.dashboardService.Load(r.Context(), url)
	if err != nil {
		h.sendLoadError(w, r, err)
		return
	}

	writeJSON(w, r, loadResponse{
		Status:    "loaded",
		SourceURL: session.SourceURL,
		Rows:      len(session.Rows),
		LoadedAt:  session.LoadedAt.Format(time.RFC3339),
	})
}

// HandleReload clears the memoized table for the current session URL and loads
// it again from the source.
func (h *DashboardHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	session, err := h.dashboardService.Reload(r.Context())
	if err != nil {
		if errors.Is(err, services.ErrNoDataLoaded) {
			utils.SendJSONError(w, "No sheet has been loaded yet; nothing to reload.", http.StatusConflict)
			return
		}
		h.sendLoadError(w, r, err)
		return
	}

	ctxLogger.Info("Sheet reloaded", "url", session.SourceURL, "rows", len(session.Rows))
	writeJSON(w, r, loadResponse{
		Status:    "loaded",
		SourceURL: session.SourceURL,
		Rows:      len(session.Rows),
		LoadedAt:  session.LoadedAt.Format(time.RFC3339),
	})
}

// HandleGetFilters returns the distinct account and type values of the base table.
func (h *DashboardHandler) HandleGetFilters(w http.ResponseWriter, r *http.Request) {
	filters, err := h.dashboardService.Filters()
	if err != nil {
		if errors.Is(err, services.ErrNoDataLoaded) {
			utils.SendJSONError(w, "No portfolio data loaded. Load a sheet first.", http.StatusConflict)
			return
		}
		utils.SendJSONError(w, fmt.Sprintf("Error retrieving filters: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, filters)
}

// HandleGetSummary returns the filtered table, KPIs and chart series for the
// selection in the query string. The response carries an ETag so unchanged
// dashboards are not re-sent.
func (h *DashboardHandler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	summary, err := h.dashboardService.Summary(parseSelection(r))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNoDataLoaded):
			utils.SendJSONError(w, "No portfolio data loaded. Load a sheet first.", http.StatusConflict)
		case errors.Is(err, services.ErrNoMatchingRows):
			utils.SendJSONError(w, "No data matches the current filter settings. Please adjust the filters.", http.StatusConflict)
		default:
			ctxLogger.Error("Failed to compute dashboard summary", "error", err)
			utils.SendJSONError(w, "Failed to compute dashboard summary", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Cache-Control", "no-cache, private")

	currentETag, etagErr := utils.GenerateETag(summary)
	if etagErr == nil && currentETag != "" {
		quotedETag := fmt.Sprintf("\"%s\"", currentETag)
		w.Header().Set("ETag", quotedETag)
		for _, cETag := range strings.Split(r.Header.Get("If-None-Match"), ",") {
			if strings.TrimSpace(cETag) == quotedETag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
	} else {
		ctxLogger.Warn("Proceeding without ETag check", "error", etagErr)
	}

	writeJSON(w, r, summary)
}

// HandleGetTable returns only the filtered detail rows.
func (h *DashboardHandler) HandleGetTable(w http.ResponseWriter, r *http.Request) {
	rows, err := h.dashboardService.Table(parseSelection(r))
	if err != nil {
		if errors.Is(err, services.ErrNoDataLoaded) {
			utils.SendJSONError(w, "No portfolio data loaded. Load a sheet first.", http.StatusConflict)
			return
		}
		utils.SendJSONError(w, fmt.Sprintf("Error retrieving table: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, rows)
}

// sendLoadError maps the load failure taxonomy onto HTTP statuses. Fetch
// failures include the full underlying error detail.
func (h *DashboardHandler) sendLoadError(w http.ResponseWriter, r *http.Request, err error) {
	ctxLogger := logger.FromContext(r.Context())

	var fetchErr *services.FetchError
	var missingErr *sheet.MissingColumnsError
	switch {
	case errors.As(err, &fetchErr):
		ctxLogger.Warn("Sheet fetch failed", "url", fetchErr.URL, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("An error occurred while loading the data: %v", err), http.StatusBadGateway)
	case errors.Is(err, sheet.ErrEmptySource):
		utils.SendJSONError(w, "The sheet is empty or could not be read. Please verify the URL and sheet content.", http.StatusUnprocessableEntity)
	case errors.As(err, &missingErr):
		utils.SendJSONError(w, fmt.Sprintf("The following required columns are missing from your sheet: %s", strings.Join(missingErr.Columns, ", ")), http.StatusUnprocessableEntity)
	default:
		ctxLogger.Error("Unexpected load failure", "error", err)
		utils.SendJSONError(w, fmt.Sprintf("An error occurred while loading the data: %v", err), http.StatusInternalServerError)
	}
}

// parseSelection reads the accounts/types filter params. An absent param means
// "all values"; a present but empty param is an explicit empty selection.
func parseSelection(r *http.Request) services.Selection {
	q := r.URL.Query()
	sel := services.Selection{}
	if q.Has("accounts") {
		sel.Accounts = splitCSVParam(q.Get("accounts"))
	}
	if q.Has("types") {
		sel.Types = splitCSVParam(q.Get("types"))
	}
	return sel
}

func splitCSVParam(raw string) []string {
	if raw == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

func writeJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.FromContext(r.Context()).Error("Error encoding JSON response", "path", r.URL.Path, "error", err)
	}
}
