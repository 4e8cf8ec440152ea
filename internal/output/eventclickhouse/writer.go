package eventclickhouse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"memtrace/pkg/models"
)

// Config configures the ClickHouse HTTP writer.
type Config struct {
	URL      string
	Database string
	Table    string
	Username string
	Password string
	Timeout  time.Duration
	Headers  map[string]string
}

// Writer sends deallocation events to ClickHouse via HTTP JSONEachRow.
type Writer struct {
	endpoint string
	headers  map[string]string
	client   *http.Client
}

// row is the ClickHouse column layout. DateTime64 columns accept the
// "2006-01-02 15:04:05.000" form in JSONEachRow.
type row struct {
	TS            string   `json:"ts"`
	Source        string   `json:"source"`
	StepID        int64    `json:"step_id"`
	Operation     string   `json:"operation"`
	AllocationID  int64    `json:"allocation_id"`
	AllocatorName string   `json:"allocator_name"`
	Deferred      uint8    `json:"deferred"`
	SizeBytes     int      `json:"size_bytes"`
	RuleIDs       []string `json:"rule_ids"`
}

// NewWriter creates a ClickHouse HTTP writer.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("clickhouse URL is empty")
	}
	if cfg.Database == "" {
		cfg.Database = "default"
	}
	if cfg.Table == "" {
		cfg.Table = "deallocations"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	q := fmt.Sprintf("INSERT INTO %s.%s FORMAT JSONEachRow", quoteIdent(cfg.Database), quoteIdent(cfg.Table))
	endpoint := strings.TrimRight(cfg.URL, "/") + "/?query=" + url.QueryEscape(q)

	headers := make(map[string]string, len(cfg.Headers)+2)
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	if cfg.Username != "" {
		headers["X-ClickHouse-User"] = cfg.Username
	}
	if cfg.Password != "" {
		headers["X-ClickHouse-Key"] = cfg.Password
	}

	return &Writer{
		endpoint: endpoint,
		headers:  headers,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// WriteEvents inserts a batch of events.
func (w *Writer) WriteEvents(ctx context.Context, events []*models.DeallocationEvent) error {
	if len(events) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, event := range events {
		if event == nil {
			continue
		}
		if err := enc.Encode(toRow(event)); err != nil {
			return fmt.Errorf("failed to marshal deallocation event: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("clickhouse request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("clickhouse request failed with status %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	return nil
}

// Close releases resources.
func (w *Writer) Close() error {
	w.client.CloseIdleConnections()
	return nil
}

func toRow(event *models.DeallocationEvent) row {
	r := row{
		TS:            event.Timestamp.UTC().Format("2006-01-02 15:04:05.000"),
		Source:        event.Source,
		StepID:        event.StepID,
		Operation:     event.Operation,
		AllocationID:  event.AllocationID,
		AllocatorName: event.AllocatorName,
		SizeBytes:     event.SizeBytes,
		RuleIDs:       make([]string, 0, len(event.Tags)),
	}
	if event.Deferred {
		r.Deferred = 1
	}
	for _, tag := range event.Tags {
		if tag.ID != "" {
			r.RuleIDs = append(r.RuleIDs, tag.ID)
		}
	}
	return r
}

func quoteIdent(v string) string {
	if v == "" {
		return ""
	}
	v = strings.ReplaceAll(v, "`", "")
	return "`" + v + "`"
}
