package client

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"navdir/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCache_LoadMissing(t *testing.T) {
	entry, err := NewFileCache(filepath.Join(t.TempDir(), "nope.json")).Load()
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestFileCache_StoreLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cache := NewFileCache(path)
	tag := `W/"abc"`
	want := Entry{JSON: string(testutil.NewNavConfig()), ETag: &tag}

	require.NoError(t, cache.Store(want))

	got, err := cache.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)

	// No temp files left behind.
	files, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestFileCache_IgnoresInvalidContents(t *testing.T) {
	for name, content := range map[string]string{
		"not_json":         `{`,
		"wrong_entry_type": `{"json":1}`,
		"invalid_document": `{"json":"{\"site\":{}}","etag":null}`,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

			entry, err := NewFileCache(path).Load()
			require.NoError(t, err)
			assert.Nil(t, entry)
		})
	}
}

func TestFileCache_WatchSeesOtherWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	reader := NewFileCache(path)
	writer := NewFileCache(path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seen := make(chan Entry, 8)
	done := make(chan error, 1)
	go func() {
		done <- reader.Watch(ctx, func(e Entry) { seen <- e })
	}()

	doc := string(testutil.NewNavConfig(testutil.WithTitle("from another process")))
	// The watcher may not be registered yet; keep writing until it reports.
	require.Eventually(t, func() bool {
		if err := writer.Store(Entry{JSON: doc}); err != nil {
			return false
		}
		select {
		case e := <-seen:
			return e.JSON == doc
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestSyncer_FollowAdoptsSharedCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s, err := NewSyncer(&fakeAPI{}, NewFileCache(path), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Follow(ctx) }()

	tag := `W/"other"`
	entry := Entry{JSON: string(testutil.NewNavConfig(testutil.WithTitle("other"))), ETag: &tag}
	writer := NewFileCache(path)
	require.Eventually(t, func() bool {
		_ = writer.Store(entry)
		return etagOf(s.Entry()) == tag
	}, 5*time.Second, 20*time.Millisecond)
}
