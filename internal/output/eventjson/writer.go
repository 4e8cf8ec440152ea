package eventjson

import (
	"context"

	"memtrace/internal/logger"
	"memtrace/internal/output/jsonlfile"
	"memtrace/pkg/models"
)

// Writer outputs decoded deallocation events to a JSON lines file.
type Writer struct {
	file *jsonlfile.File
}

// NewWriter creates a JSONL writer for deallocation events.
func NewWriter(path string) (*Writer, error) {
	f, err := jsonlfile.Create(path)
	if err != nil {
		return nil, err
	}
	logger.Infof("Event JSON writer initialized: %s", path)
	return &Writer{file: f}, nil
}

// WriteEvents writes a batch of events.
func (w *Writer) WriteEvents(_ context.Context, events []*models.DeallocationEvent) error {
	return w.file.WriteBatch(len(events), func(i int) any { return events[i] })
}

// Close closes the output file.
func (w *Writer) Close() error {
	return w.file.Close()
}
