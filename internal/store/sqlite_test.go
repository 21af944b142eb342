package store

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUpsertCollectionIsStable(t *testing.T) {
	store := newTestStore(t)

	first, err := store.UpsertCollection("alice", "Wiki Space")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := store.UpsertCollection("alice", "Wiki Space")
	require.NoError(t, err)
	assert.Equal(t, first, second, "repeated upsert must return the same id")

	other, err := store.UpsertCollection("bob", "Wiki Space")
	require.NoError(t, err)
	assert.NotEqual(t, first, other, "same name under another tenant is a distinct collection")
}

func TestUpsertCollectionConcurrentCreators(t *testing.T) {
	// A file-backed store so every goroutine shares one database; with
	// :memory: each pooled connection would see its own.
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	defer store.Close()

	const workers = 16
	ids := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = store.UpsertCollection("alice", "Wiki Space")
		}(i)
	}
	wg.Wait()

	// Racing creators must all resolve to the winner's id, never an error.
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i], "worker %d", i)
		assert.Equal(t, ids[0], ids[i], "worker %d", i)
	}

	collections, err := store.ListCollections("alice")
	require.NoError(t, err)
	require.Len(t, collections, 1)
}

func TestListCollectionsIncludesShared(t *testing.T) {
	store := newTestStore(t)

	sharedID, err := store.UpsertCollection(SharedTenant, "Company Handbook")
	require.NoError(t, err)
	ownID, err := store.UpsertCollection("alice", "Wiki Space")
	require.NoError(t, err)

	collections, err := store.ListCollections("alice")
	require.NoError(t, err)
	require.Len(t, collections, 2)

	ids := []string{collections[0].ID, collections[1].ID}
	assert.Contains(t, ids, sharedID)
	assert.Contains(t, ids, ownID)

	// Another tenant sees only the shared entry.
	collections, err = store.ListCollections("bob")
	require.NoError(t, err)
	require.Len(t, collections, 1)
	assert.Equal(t, sharedID, collections[0].ID)
}

func TestListCollectionsOwnEntryWinsCollision(t *testing.T) {
	store := newTestStore(t)

	_, err := store.UpsertCollection(SharedTenant, "Wiki Space")
	require.NoError(t, err)
	ownID, err := store.UpsertCollection("alice", "Wiki Space")
	require.NoError(t, err)

	collections, err := store.ListCollections("alice")
	require.NoError(t, err)
	require.Len(t, collections, 2)

	// Shared rows sort first so a name-keyed map ends up holding the
	// tenant's own id.
	mapping := make(map[string]string)
	for _, c := range collections {
		mapping[c.Name] = c.ID
	}
	assert.Equal(t, ownID, mapping["Wiki Space"])
}

func TestInsertChunkIgnoresDuplicates(t *testing.T) {
	store := newTestStore(t)

	collectionID, err := store.UpsertCollection("alice", "PDF Document")
	require.NoError(t, err)

	chunk := ChunkRecord{
		ID:           "chunk-1",
		CollectionID: collectionID,
		Content:      "the first chunk",
		Embedding:    []float32{0.1, 0.2},
	}
	require.NoError(t, store.InsertChunk(&chunk))
	require.NoError(t, store.InsertChunk(&chunk))

	chunks, err := store.GetChunksByCollection(collectionID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "the first chunk", chunks[0].Content)
	assert.Equal(t, []float32{0.1, 0.2}, chunks[0].Embedding)
}

func TestGetChunkTextsVisibility(t *testing.T) {
	store := newTestStore(t)

	collectionID, err := store.UpsertCollection("alice", "Wiki Space")
	require.NoError(t, err)
	require.NoError(t, store.InsertChunk(&ChunkRecord{
		ID: "c1", CollectionID: collectionID, Content: "alice's chunk",
	}))

	texts, err := store.GetChunkTexts("alice", collectionID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice's chunk"}, texts)

	// Not visible to another tenant; reads as empty rather than erroring.
	texts, err = store.GetChunkTexts("bob", collectionID)
	require.NoError(t, err)
	assert.Empty(t, texts)

	// Absent collection also reads as empty.
	texts, err = store.GetChunkTexts("alice", "no-such-collection")
	require.NoError(t, err)
	assert.Empty(t, texts)
}

func TestDeleteCollectionRemovesChunks(t *testing.T) {
	store := newTestStore(t)

	collectionID, err := store.UpsertCollection("alice", "Wiki Space")
	require.NoError(t, err)
	require.NoError(t, store.InsertChunk(&ChunkRecord{
		ID: "c1", CollectionID: collectionID, Content: "some text",
	}))

	require.NoError(t, store.DeleteCollection(collectionID))

	chunks, err := store.GetChunksByCollection(collectionID)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	collections, err := store.ListCollections("alice")
	require.NoError(t, err)
	assert.Empty(t, collections)

	// Deleting again is not an error.
	assert.NoError(t, store.DeleteCollection(collectionID))
}

func TestGetLastNMessagesChronological(t *testing.T) {
	store := newTestStore(t)

	for _, content := range []string{"one", "two", "three", "four"} {
		require.NoError(t, store.AppendMessage(&Message{
			Tenant: "alice", SessionName: "Default Chat", Content: content, IsUser: true,
		}))
	}

	messages, err := store.GetLastNMessages("alice", "Default Chat", 2)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "three", messages[0].Content)
	assert.Equal(t, "four", messages[1].Content)
}

func TestRenameSession(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.AppendMessage(&Message{
		Tenant: "alice", SessionName: "Default Chat", Content: "hello", IsUser: true,
	}))

	require.NoError(t, store.RenameSession("alice", "Default Chat", "Sprint Planning"))

	messages, err := store.GetLastNMessages("alice", "Sprint Planning", 10)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	err = store.RenameSession("alice", "No Such Session", "Anything")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteSessionKeepsLastOne(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.AppendMessage(&Message{
		Tenant: "alice", SessionName: "Default Chat", Content: "hello", IsUser: true,
	}))

	err := store.DeleteSession("alice", "Default Chat")
	assert.ErrorIs(t, err, ErrLastSession)

	require.NoError(t, store.AppendMessage(&Message{
		Tenant: "alice", SessionName: "Second Chat", Content: "hi again", IsUser: true,
	}))
	require.NoError(t, store.DeleteSession("alice", "Default Chat"))

	count, err := store.CountSessions("alice")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestResetSessionsSeedsWelcome(t *testing.T) {
	store := newTestStore(t)

	for _, session := range []string{"Default Chat", "Second Chat"} {
		require.NoError(t, store.AppendMessage(&Message{
			Tenant: "alice", SessionName: session, Content: "hello", IsUser: true,
		}))
	}

	require.NoError(t, store.ResetSessions("alice", "Default Chat", "Welcome to your new chat!"))

	messages, err := store.GetMessagesByTenant("alice")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "Default Chat", messages[0].SessionName)
	assert.Equal(t, "Welcome to your new chat!", messages[0].Content)
	assert.False(t, messages[0].IsUser)
}

func TestUserLifecycle(t *testing.T) {
	store := newTestStore(t)

	missing, err := store.GetUserByUsername("alice")
	require.NoError(t, err)
	assert.Nil(t, missing)

	user := User{Username: "alice", PasswordHash: "hash", Email: "alice@example.com"}
	require.NoError(t, store.CreateUser(&user))
	assert.NotZero(t, user.ID)

	require.NoError(t, store.UpdateUserProfile("alice", "Alice", "Smith", "alice@example.com"))

	loaded, err := store.GetUserByUsername("alice")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "Alice", loaded.FirstName)
	assert.Equal(t, "Smith", loaded.LastName)

	err = store.UpdateUserProfile("nobody", "X", "Y", "z")
	assert.ErrorIs(t, err, ErrNotFound)
}
