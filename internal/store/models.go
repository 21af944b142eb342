package store

import "time"

// SharedTenant owns collections that are visible, read-only, to every tenant.
const SharedTenant = "admin"

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Do not expose this in JSON responses
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"created_at"`
}

// Collection is a named, tenant-scoped bucket of embedded chunks. The id is
// a UUID that stays stable across re-ingestions of the same (tenant, name).
type Collection struct {
	ID        string    `json:"id"`
	Tenant    string    `json:"tenant"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ChunkRecord is one embedded slice of source text. The id is derived from
// (collection id, content), so re-ingesting identical content is a no-op.
type ChunkRecord struct {
	ID           string    `json:"id"`
	CollectionID string    `json:"collection_id"`
	Content      string    `json:"content"`
	Embedding    []float32 `json:"-"` // Internal, not marshaled in responses
}

type Message struct {
	ID          string    `json:"id"` // UUID
	Tenant      string    `json:"-"`
	SessionName string    `json:"session_name"`
	Content     string    `json:"text"`
	IsUser      bool      `json:"isUser"`
	Timestamp   time.Time `json:"timestamp"`
}
