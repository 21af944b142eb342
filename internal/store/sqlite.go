package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		logger: slog.Default().With("component", "sqlite-store"),
	}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        username TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        first_name TEXT NOT NULL DEFAULT '',
        last_name TEXT NOT NULL DEFAULT '',
        email TEXT NOT NULL DEFAULT '',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS collections (
        id TEXT PRIMARY KEY, -- UUID
        tenant TEXT NOT NULL,
        name TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        UNIQUE (tenant, name)
    );

    CREATE TABLE IF NOT EXISTS chunks (
        id TEXT PRIMARY KEY, -- content-derived UUID
        collection_id TEXT NOT NULL,
        content TEXT NOT NULL,
        embedding_json TEXT, -- JSON string of []float32
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (collection_id) REFERENCES collections (id)
    );

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY, -- UUID
        tenant TEXT NOT NULL,
        session_name TEXT NOT NULL,
        content TEXT NOT NULL,
        is_user BOOLEAN NOT NULL,
        timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE INDEX IF NOT EXISTS idx_chunks_collection ON chunks (collection_id);
    CREATE INDEX IF NOT EXISTS idx_messages_tenant_session ON messages (tenant, session_name, timestamp);
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods

func (s *SQLiteStore) GetUserByUsername(username string) (*User, error) {
	var user User
	err := s.db.QueryRow(
		"SELECT id, username, password_hash, first_name, last_name, email, created_at FROM users WHERE username = ?",
		username,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.FirstName, &user.LastName, &user.Email, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) CreateUser(user *User) error {
	res, err := s.db.Exec(
		"INSERT INTO users (username, password_hash, first_name, last_name, email) VALUES (?, ?, ?, ?, ?)",
		user.Username, user.PasswordHash, user.FirstName, user.LastName, user.Email,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	user.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) UpdateUserProfile(username, firstName, lastName, email string) error {
	res, err := s.db.Exec(
		"UPDATE users SET first_name = ?, last_name = ?, email = ? WHERE username = ?",
		firstName, lastName, email, username,
	)
	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Collection methods

// UpsertCollection returns the id of the (tenant, name) collection, creating
// it when absent. The insert is a single atomic statement; when concurrent
// callers race to create the same collection, whoever wins, the follow-up
// read returns the surviving id.
func (s *SQLiteStore) UpsertCollection(tenant, name string) (string, error) {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO collections (id, tenant, name) VALUES (?, ?, ?)",
		uuid.NewString(), tenant, name,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert collection: %w", err)
	}

	var id string
	if err := s.db.QueryRow("SELECT id FROM collections WHERE tenant = ? AND name = ?", tenant, name).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to query collection: %w", err)
	}
	return id, nil
}

// ListCollections returns the tenant's collections unioned with the shared
// tenant's; on a name collision the tenant's own entry wins.
func (s *SQLiteStore) ListCollections(tenant string) ([]Collection, error) {
	// Shared rows first so a later own row overwrites them in the caller's map.
	rows, err := s.db.Query(
		"SELECT id, tenant, name, created_at FROM collections WHERE tenant = ? OR tenant = ? ORDER BY tenant = ? ASC, created_at ASC",
		tenant, SharedTenant, tenant,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query collections: %w", err)
	}
	defer rows.Close()

	var collections []Collection
	for rows.Next() {
		var c Collection
		if err := rows.Scan(&c.ID, &c.Tenant, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan collection row: %w", err)
		}
		collections = append(collections, c)
	}
	return collections, rows.Err()
}

// DeleteCollection removes a collection and its chunks. Deleting an absent
// collection is not an error.
func (s *SQLiteStore) DeleteCollection(collectionID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM chunks WHERE collection_id = ?", collectionID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM collections WHERE id = ?", collectionID); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return tx.Commit()
}

// Chunk methods

// InsertChunk stores one embedded chunk. A conflict on the content-derived
// id means the chunk is already present and the insert is silently skipped.
func (s *SQLiteStore) InsertChunk(chunk *ChunkRecord) error {
	embeddingBytes, err := json.Marshal(chunk.Embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	_, err = s.db.Exec(
		"INSERT OR IGNORE INTO chunks (id, collection_id, content, embedding_json) VALUES (?, ?, ?, ?)",
		chunk.ID, chunk.CollectionID, chunk.Content, string(embeddingBytes),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	return nil
}

// GetChunksByCollection loads a collection's chunks with their embeddings,
// ordered by insertion time.
func (s *SQLiteStore) GetChunksByCollection(collectionID string) ([]ChunkRecord, error) {
	rows, err := s.db.Query(
		"SELECT id, collection_id, content, embedding_json FROM chunks WHERE collection_id = ? ORDER BY created_at ASC",
		collectionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []ChunkRecord
	for rows.Next() {
		var chunk ChunkRecord
		var embeddingJSON sql.NullString
		if err := rows.Scan(&chunk.ID, &chunk.CollectionID, &chunk.Content, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		if embeddingJSON.Valid && embeddingJSON.String != "" {
			if err := json.Unmarshal([]byte(embeddingJSON.String), &chunk.Embedding); err != nil {
				s.logger.Warn("failed to unmarshal chunk embedding, skipping vector",
					"chunk_id", chunk.ID, "err", err)
				chunk.Embedding = nil
			}
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// GetChunkTexts returns a collection's raw chunk texts, visible to the given
// tenant under the same rule as ListCollections. An absent or non-visible
// collection yields an empty result, not an error.
func (s *SQLiteStore) GetChunkTexts(tenant, collectionID string) ([]string, error) {
	rows, err := s.db.Query(`
        SELECT ch.content
        FROM chunks ch
        JOIN collections c ON c.id = ch.collection_id
        WHERE c.id = ? AND (c.tenant = ? OR c.tenant = ?)
        ORDER BY ch.created_at ASC`,
		collectionID, tenant, SharedTenant,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk texts: %w", err)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("failed to scan chunk text: %w", err)
		}
		texts = append(texts, text)
	}
	return texts, rows.Err()
}

// Message methods

func (s *SQLiteStore) AppendMessage(msg *Message) error {
	msg.ID = uuid.NewString()
	msg.Timestamp = time.Now()

	_, err := s.db.Exec(
		"INSERT INTO messages (id, tenant, session_name, content, is_user, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
		msg.ID, msg.Tenant, msg.SessionName, msg.Content, msg.IsUser, msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// GetMessagesByTenant returns the tenant's full transcript ordered by
// session name, then timestamp.
func (s *SQLiteStore) GetMessagesByTenant(tenant string) ([]Message, error) {
	rows, err := s.db.Query(
		"SELECT id, tenant, session_name, content, is_user, timestamp FROM messages WHERE tenant = ? ORDER BY session_name ASC, timestamp ASC",
		tenant,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// GetLastNMessages returns the session's most recent n messages in
// chronological order.
func (s *SQLiteStore) GetLastNMessages(tenant, sessionName string, n int) ([]Message, error) {
	rows, err := s.db.Query(`
        SELECT id, tenant, session_name, content, is_user, timestamp
        FROM messages
        WHERE tenant = ? AND session_name = ?
        ORDER BY timestamp DESC
        LIMIT ?`,
		tenant, sessionName, n,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	// Flip newest-first into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.Tenant, &msg.SessionName, &msg.Content, &msg.IsUser, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) CountSessions(tenant string) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(DISTINCT session_name) FROM messages WHERE tenant = ?", tenant).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

// RenameSession moves a session's transcript to a new name.
func (s *SQLiteStore) RenameSession(tenant, oldName, newName string) error {
	res, err := s.db.Exec(
		"UPDATE messages SET session_name = ? WHERE tenant = ? AND session_name = ?",
		newName, tenant, oldName,
	)
	if err != nil {
		return fmt.Errorf("failed to rename session: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSession removes all messages under a session name. The check that
// another session remains and the delete share one transaction.
func (s *SQLiteStore) DeleteSession(tenant, sessionName string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRow("SELECT COUNT(DISTINCT session_name) FROM messages WHERE tenant = ?", tenant).Scan(&count); err != nil {
		return fmt.Errorf("failed to count sessions: %w", err)
	}
	if count <= 1 {
		return ErrLastSession
	}

	if _, err := tx.Exec("DELETE FROM messages WHERE tenant = ? AND session_name = ?", tenant, sessionName); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return tx.Commit()
}

// ResetSessions wipes the tenant's transcript and seeds a single fresh
// session with one assistant message, atomically.
func (s *SQLiteStore) ResetSessions(tenant, sessionName, welcomeText string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM messages WHERE tenant = ?", tenant); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	_, err = tx.Exec(
		"INSERT INTO messages (id, tenant, session_name, content, is_user, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
		uuid.NewString(), tenant, sessionName, welcomeText, false, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert welcome message: %w", err)
	}
	return tx.Commit()
}
