package eventclickhouse

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"memtrace/pkg/models"
)

func TestWriteEventsPostsJSONEachRow(t *testing.T) {
	var (
		query string
		user  string
		key   string
		rows  []map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("query")
		user = r.Header.Get("X-ClickHouse-User")
		key = r.Header.Get("X-ClickHouse-Key")
		sc := bufio.NewScanner(r.Body)
		for sc.Scan() {
			var m map[string]any
			if err := json.Unmarshal(sc.Bytes(), &m); err == nil {
				rows = append(rows, m)
			}
		}
	}))
	defer srv.Close()

	w, err := NewWriter(Config{URL: srv.URL + "/", Database: "memtrace", Username: "u", Password: "p"})
	require.NoError(t, err)
	defer w.Close()

	events := []*models.DeallocationEvent{{
		Timestamp:     time.Date(2026, 3, 1, 12, 0, 0, 500e6, time.UTC),
		StepID:        42,
		Operation:     "MatMulGrad",
		AllocationID:  1001,
		AllocatorName: "gpu_bfc",
		Deferred:      true,
		Tags:          []models.RuleTag{{ID: "r1"}},
	}}
	require.NoError(t, w.WriteEvents(context.Background(), events))

	require.Equal(t, "INSERT INTO `memtrace`.`deallocations` FORMAT JSONEachRow", query)
	require.Equal(t, "u", user)
	require.Equal(t, "p", key)
	require.Len(t, rows, 1)
	require.Equal(t, "2026-03-01 12:00:00.500", rows[0]["ts"])
	require.EqualValues(t, 1, rows[0]["deferred"])
	require.EqualValues(t, 42, rows[0]["step_id"])
	require.Equal(t, []any{"r1"}, rows[0]["rule_ids"])
}

func TestWriteEventsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Code: 60. Table does not exist", http.StatusNotFound)
	}))
	defer srv.Close()

	w, err := NewWriter(Config{URL: srv.URL})
	require.NoError(t, err)

	err = w.WriteEvents(context.Background(), []*models.DeallocationEvent{{StepID: 1}})
	require.ErrorContains(t, err, "Table does not exist")
}

func TestNewWriterRequiresURL(t *testing.T) {
	_, err := NewWriter(Config{})
	require.Error(t, err)
}
