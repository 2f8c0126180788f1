package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/username/foliodash/backend/src/logger"
	"golang.org/x/net/publicsuffix"
)

const fetchUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

type sheetFetcherImpl struct {
	httpClient http.Client
	maxBytes   int64
}

// NewSheetFetcher creates a fetcher for published CSV exports. Google's
// publish-to-web endpoints redirect through hosts that set cookies, so the
// client carries a cookie jar. maxBytes caps the response body size.
func NewSheetFetcher(timeout time.Duration, maxBytes int64) SheetFetcher {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar", "error", err)
	}

	return &sheetFetcherImpl{
		httpClient: http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		maxBytes: maxBytes,
	}
}

// FetchCSV downloads the raw CSV text of the sheet at url. Any transport or
// HTTP-level failure is reported as a *FetchError; there are no retries.
func (s *sheetFetcherImpl) FetchCSV(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	req.Header.Set("Accept", "text/csv,text/plain,*/*")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &FetchError{URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	if int64(len(body)) > s.maxBytes {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("sheet exceeds %d byte limit", s.maxBytes)}
	}

	logger.L.Debug("Sheet fetched", "url", url, "bytes", len(body))
	return body, nil
}
