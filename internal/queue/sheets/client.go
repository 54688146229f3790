// Package sheets implements queue.Table on top of a Google Sheets worksheet
// using the Sheets v4 values API.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"

	"github.com/kiranshivaraju/gridrunner/internal/queue"
	"github.com/kiranshivaraju/gridrunner/pkg/models"
)

const (
	DefaultBaseURL = "https://sheets.googleapis.com"
	Scope          = "https://www.googleapis.com/auth/spreadsheets"

	defaultTimeout = 30 * time.Second
	maxErrorBody   = 4 << 10
)

// Options configures a Client.
type Options struct {
	SpreadsheetID     string
	Worksheet         string
	RequestsPerMinute int
	// BaseURL overrides DefaultBaseURL. Tests point it at an httptest server.
	BaseURL    string
	HTTPClient *http.Client
}

// Client talks to a single worksheet. The first sheet row is the header; data
// row N lives on sheet row N+1.
type Client struct {
	baseURL       string
	spreadsheetID string
	worksheet     string
	client        *http.Client
	limiter       *rate.Limiter
}

// New creates a Client. The HTTP client in opts must already carry
// credentials; see NewFromKeyFile.
func New(opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	rpm := opts.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}

	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		spreadsheetID: opts.SpreadsheetID,
		worksheet:     opts.Worksheet,
		client:        httpClient,
		limiter:       rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 5),
	}
}

// NewFromKeyFile builds a Client authenticated with a service-account JSON key.
func NewFromKeyFile(ctx context.Context, keyFile string, opts Options) (*Client, error) {
	data, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: reading api key %s: %v", queue.ErrQueueUnavailable, keyFile, err)
	}

	jwtCfg, err := google.JWTConfigFromJSON(data, Scope)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing api key %s: %v", queue.ErrQueueUnavailable, keyFile, err)
	}

	httpClient := jwtCfg.Client(ctx)
	httpClient.Timeout = defaultTimeout
	opts.HTTPClient = httpClient

	return New(opts), nil
}

func (c *Client) ListRows(ctx context.Context) ([]models.Task, error) {
	last := columnLetter(queue.ColWorker)
	vr, err := c.get(ctx, fmt.Sprintf("A1:%s", last))
	if err != nil {
		return nil, err
	}

	if len(vr.Values) == 0 {
		return nil, fmt.Errorf("%w: worksheet %q has no header row", queue.ErrQueueSchema, c.worksheet)
	}
	if err := checkHeader(vr.Values[0]); err != nil {
		return nil, fmt.Errorf("%w: worksheet %q: %v", queue.ErrQueueSchema, c.worksheet, err)
	}

	tasks := make([]models.Task, 0, len(vr.Values)-1)
	for i, cells := range vr.Values[1:] {
		task := models.Task{Row: i + 1}
		for j, col := range queue.Columns {
			if j < len(cells) {
				queue.SetCell(&task, col, cells[j])
			}
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (c *Client) ReadCell(ctx context.Context, row int, col queue.Column) (string, error) {
	a1, err := cellRef(row, col)
	if err != nil {
		return "", err
	}

	vr, err := c.get(ctx, a1)
	if err != nil {
		return "", err
	}
	if len(vr.Values) == 0 || len(vr.Values[0]) == 0 {
		return "", nil
	}
	return vr.Values[0][0], nil
}

func (c *Client) WriteCell(ctx context.Context, row int, col queue.Column, value string) error {
	a1, err := cellRef(row, col)
	if err != nil {
		return err
	}

	body, err := json.Marshal(valueRange{
		Range:          c.rangeRef(a1),
		MajorDimension: "ROWS",
		Values:         [][]string{{value}},
	})
	if err != nil {
		return fmt.Errorf("encoding cell update: %w", err)
	}

	u := c.valuesURL(a1) + "?" + url.Values{"valueInputOption": {"RAW"}}.Encode()
	resp, err := c.do(ctx, http.MethodPut, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) get(ctx context.Context, a1 string) (*valueRange, error) {
	resp, err := c.do(ctx, http.MethodGet, c.valuesURL(a1), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var vr valueRange
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("%w: decoding sheets response: %v", queue.ErrQueueUnavailable, err)
	}
	return &vr, nil
}

// do sends one request and returns the response only when it is a 200.
func (c *Client) do(ctx context.Context, method, u string, body io.Reader) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", queue.ErrRateLimited, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyError(ctx, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, classifyStatus(resp)
	}
	return resp, nil
}

func (c *Client) rangeRef(a1 string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(c.worksheet, "'", "''"), a1)
}

func (c *Client) valuesURL(a1 string) string {
	return fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s",
		c.baseURL, url.PathEscape(c.spreadsheetID), url.PathEscape(c.rangeRef(a1)))
}

// namedColumns are located by their header. Timestamp and Worker are written
// by position, so their header text is free.
var namedColumns = []queue.Column{queue.ColDescription, queue.ColParams, queue.ColStatus}

func checkHeader(header []string) error {
	for i, col := range namedColumns {
		got := ""
		if i < len(header) {
			got = strings.TrimSpace(header[i])
		}
		if !strings.EqualFold(got, queue.Header[col]) {
			return fmt.Errorf("column %s: expected header %q, got %q", columnLetter(col), queue.Header[col], got)
		}
	}
	return nil
}

func cellRef(row int, col queue.Column) (string, error) {
	if row < 1 {
		return "", fmt.Errorf("%w: row %d out of range", queue.ErrQueueSchema, row)
	}
	if !col.Valid() {
		return "", fmt.Errorf("%w: unknown column %s", queue.ErrQueueSchema, col)
	}
	return fmt.Sprintf("%s%d", columnLetter(col), row+1), nil
}

func columnLetter(col queue.Column) string {
	return string(rune('A' + int(col) - 1))
}

// classifyError maps transport-level errors to queue errors. A cancelled
// context is passed through untouched so callers can tell a shutdown apart
// from an outage.
func classifyError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: request timed out: %v", queue.ErrQueueUnavailable, err)
	}
	return fmt.Errorf("%w: %v", queue.ErrQueueUnavailable, err)
}

// classifyStatus maps a non-200 Sheets response to a queue error.
func classifyStatus(resp *http.Response) error {
	msg := errorMessage(resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusServiceUnavailable:
		return fmt.Errorf("%w: status %d: %s", queue.ErrRateLimited, resp.StatusCode, msg)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: credentials rejected (status %d): %s", queue.ErrQueueUnavailable, resp.StatusCode, msg)
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: status %d: %s", queue.ErrQueueSchema, resp.StatusCode, msg)
	default:
		return fmt.Errorf("%w: status %d: %s", queue.ErrQueueUnavailable, resp.StatusCode, msg)
	}
}

func errorMessage(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
		return apiErr.Error.Message
	}
	return strings.TrimSpace(string(data))
}

// --- Sheets API types ---

type valueRange struct {
	Range          string     `json:"range,omitempty"`
	MajorDimension string     `json:"majorDimension,omitempty"`
	Values         [][]string `json:"values,omitempty"`
}

var _ queue.Table = (*Client)(nil)
