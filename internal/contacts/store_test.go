package contacts

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "contacts.json"), zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestStoreMissingFileIsEmpty(t *testing.T) {
	s := newTestStore(t)
	assert.Empty(t, s.List())
}

func TestStoreAddAndList(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Add("Dew"))
	require.NoError(t, s.Add("Alice"))

	assert.Equal(t, []string{"Dew", "Alice"}, s.List())
}

func TestStoreAddDuplicateCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Add("Dew"))

	err := s.Add("dew")
	assert.ErrorIs(t, err, ErrExists)
	assert.Len(t, s.List(), 1)
}

func TestStoreAddEmpty(t *testing.T) {
	s := newTestStore(t)
	assert.ErrorIs(t, s.Add("   "), ErrEmptyNickname)
}

func TestStoreRemoveCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Add("Dew"))

	require.NoError(t, s.Remove("DEW"))
	assert.Empty(t, s.List())
}

func TestStoreRemoveMissing(t *testing.T) {
	s := newTestStore(t)
	assert.ErrorIs(t, s.Remove("ghost"), ErrNotFound)
}

func TestStorePersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.json")
	s, err := NewStore(path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Add("Dew"))

	reopened, err := NewStore(path, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"Dew"}, reopened.List())

	// The on-disk shape matches the {"contacts": [...]} format.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var ff struct {
		Contacts []string `json:"contacts"`
	}
	require.NoError(t, json.Unmarshal(data, &ff))
	assert.Equal(t, []string{"Dew"}, ff.Contacts)
}

func TestStoreInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o644))

	_, err := NewStore(path, zap.NewNop())
	assert.Error(t, err)
}

func TestStoreWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"contacts":["Dew"]}`), 0o644))

	s, err := NewStore(path, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Watch(ctx))

	require.NoError(t, os.WriteFile(path, []byte(`{"contacts":["Dew","Alice"]}`), 0o644))

	assert.Eventually(t, func() bool {
		return len(s.List()) == 2
	}, 3*time.Second, 20*time.Millisecond)
}
