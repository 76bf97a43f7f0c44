package reportstore_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codereport/pkg/reportstore"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func openStore(t *testing.T, c *clock) *reportstore.Store {
	t.Helper()

	store, err := reportstore.Open(filepath.Join(t.TempDir(), "reports"),
		reportstore.WithTTL(time.Hour), reportstore.WithClock(c.Now))
	require.NoError(t, err)

	return store
}

func TestPutGetRoundTrip(t *testing.T) {
	t.Parallel()

	c := &clock{now: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
	store := openStore(t, c)

	body := bytes.Repeat([]byte("%PDF-1.3 repeated content "), 200)

	meta, err := store.Put(context.Background(), reportstore.Document{
		Name:        "../code_quality_report_20261019_120000.pdf",
		ContentType: "application/pdf",
		Body:        body,
	})
	require.NoError(t, err)

	assert.Equal(t, "code_quality_report_20261019_120000.pdf", meta.Name)
	assert.Equal(t, int64(len(body)), meta.Size)
	assert.Less(t, meta.StoredSize, meta.Size)
	assert.Equal(t, c.now, meta.CreatedAt)

	doc, got, err := store.Get(context.Background(), meta.ID)
	require.NoError(t, err)
	assert.Equal(t, body, doc.Body)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.Equal(t, meta, got)

	_, err = os.Stat(filepath.Join(store.Dir(), meta.ID+".lz4"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(store.Dir(), meta.ID+".json"))
	require.NoError(t, err)
}

func TestPutRequiresName(t *testing.T) {
	t.Parallel()

	store := openStore(t, &clock{now: time.Now()})

	_, err := store.Put(context.Background(), reportstore.Document{Body: []byte("x")})
	require.ErrorIs(t, err, reportstore.ErrEmptyName)
}

func TestGetRejectsInvalidID(t *testing.T) {
	t.Parallel()

	store := openStore(t, &clock{now: time.Now()})

	_, _, err := store.Get(context.Background(), "../../etc/passwd")
	require.ErrorIs(t, err, reportstore.ErrInvalidID)
}

func TestGetUnknownID(t *testing.T) {
	t.Parallel()

	store := openStore(t, &clock{now: time.Now()})

	_, _, err := store.Get(context.Background(), "2f1c7f64-9a1e-4c1b-a3c4-6f0d3f0e9b11")
	require.ErrorIs(t, err, reportstore.ErrNotFound)
}

func TestExpiredEntries(t *testing.T) {
	t.Parallel()

	c := &clock{now: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
	store := openStore(t, c)

	old, err := store.Put(context.Background(), reportstore.Document{Name: "old.pdf", Body: []byte("old")})
	require.NoError(t, err)

	c.now = c.now.Add(50 * time.Minute)

	fresh, err := store.Put(context.Background(), reportstore.Document{Name: "fresh.pdf", Body: []byte("fresh")})
	require.NoError(t, err)

	c.now = c.now.Add(20 * time.Minute)

	_, _, err = store.Get(context.Background(), old.ID)
	require.ErrorIs(t, err, reportstore.ErrNotFound)

	removed, err := store.Sweep(c.now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, _, err = store.Get(context.Background(), fresh.ID)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(store.Dir(), old.ID+".lz4"))
	assert.True(t, os.IsNotExist(err))
}

func TestSweepRemovesOrphanBodies(t *testing.T) {
	t.Parallel()

	c := &clock{now: time.Now()}
	store := openStore(t, c)

	meta, err := store.Put(context.Background(), reportstore.Document{Name: "a.pdf", Body: []byte("a")})
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(store.Dir(), meta.ID+".json")))

	removed, err := store.Sweep(c.now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)

	for _, entry := range entries {
		assert.False(t, strings.HasPrefix(entry.Name(), meta.ID), entry.Name())
	}
}

func TestReady(t *testing.T) {
	t.Parallel()

	store := openStore(t, &clock{now: time.Now()})
	require.NoError(t, store.Ready(context.Background()))

	require.NoError(t, os.RemoveAll(store.Dir()))
	require.Error(t, store.Ready(context.Background()))
}

func TestRunStopsWithContext(t *testing.T) {
	t.Parallel()

	store := openStore(t, &clock{now: time.Now()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		store.Run(ctx, time.Millisecond)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestOpenRequiresDir(t *testing.T) {
	t.Parallel()

	_, err := reportstore.Open("")
	require.Error(t, err)
}
