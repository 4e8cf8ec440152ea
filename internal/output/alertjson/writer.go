package alertjson

import (
	"context"

	"memtrace/internal/logger"
	"memtrace/internal/output/jsonlfile"
	"memtrace/pkg/models"
)

// Writer outputs alerts to a JSON lines file.
type Writer struct {
	file *jsonlfile.File
}

// NewWriter creates a JSONL writer for alerts.
func NewWriter(path string) (*Writer, error) {
	f, err := jsonlfile.Create(path)
	if err != nil {
		return nil, err
	}
	logger.Infof("Alert JSON writer initialized: %s", path)
	return &Writer{file: f}, nil
}

// WriteAlerts writes a batch of alerts.
func (w *Writer) WriteAlerts(_ context.Context, alerts []*models.Alert) error {
	return w.file.WriteBatch(len(alerts), func(i int) any { return alerts[i] })
}

// Close closes the output file.
func (w *Writer) Close() error {
	return w.file.Close()
}
