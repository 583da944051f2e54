package report

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/batplan/batplan/pkg/common"
	"github.com/batplan/batplan/pkg/storage"
	"github.com/batplan/batplan/pkg/types"
)

// Client fetches benchmark results from a report server, for CI jobs that
// gate on the latest run.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the report server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: common.HTTPClient(15 * time.Second),
	}
}

// LatestReport fetches the most recent benchmark report.
func (c *Client) LatestReport(ctx context.Context) (types.BenchReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/report/latest", nil)
	if err != nil {
		return types.BenchReport{}, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.BenchReport{}, fmt.Errorf("failed to fetch latest report: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return types.BenchReport{}, storage.ErrReportNotFound
	default:
		return types.BenchReport{}, fmt.Errorf("unexpected status %d fetching latest report", resp.StatusCode)
	}

	var r types.BenchReport
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return types.BenchReport{}, fmt.Errorf("failed to decode report: %w", err)
	}
	return r, nil
}
