package devserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row does not exist or belongs to someone else.
var ErrNotFound = errors.New("not found")

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// qsq is the SQLite statement builder with question placeholders.
var qsq = sq.StatementBuilder.PlaceholderFormat(sq.Question)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id          TEXT PRIMARY KEY,
	verified_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS subscriptions (
	user_id            TEXT PRIMARY KEY,
	is_subscribed      INTEGER NOT NULL DEFAULT 0,
	plan               TEXT,
	current_period_end INTEGER
);
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	topic      TEXT NOT NULL,
	title      TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS conversations_user ON conversations(user_id, updated_at);
CREATE TABLE IF NOT EXISTS messages (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	id              TEXT NOT NULL UNIQUE,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	created_at      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	name        TEXT NOT NULL,
	size        INTEGER NOT NULL,
	uploaded_at INTEGER NOT NULL
);
`

// Subscription is the stored entitlement of one user.
type Subscription struct {
	UserID           string
	IsSubscribed     bool
	Plan             string
	CurrentPeriodEnd *time.Time
}

// Conversation is a stored conversation header.
type Conversation struct {
	ID        string
	UserID    string
	Topic     string
	Title     string
	Preview   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one stored turn.
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	CreatedAt      time.Time
}

// Document is stored upload metadata. Contents are not kept.
type Document struct {
	ID         string
	UserID     string
	Name       string
	Size       int64
	UploadedAt time.Time
}

// Store persists dev server state in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and applies the schema.
// MemoryPath gives a private in-memory database.
func Open(path string) (*Store, error) {
	var dsn string
	if path == MemoryPath {
		dsn = "file::memory:?_pragma=foreign_keys(ON)"
	} else {
		// ensure parent directory exists to avoid SQLITE_CANTOPEN errors
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One connection keeps an in-memory database alive and serialises writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// TouchUser records a verification for uid.
func (s *Store) TouchUser(ctx context.Context, uid string) error {
	q, args, err := qsq.Insert("users").
		Columns("id", "verified_at").
		Values(uid, s.now().UnixMilli()).
		Suffix("ON CONFLICT(id) DO UPDATE SET verified_at = excluded.verified_at").
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("touch user: %w", err)
	}
	return nil
}

// Subscription returns the entitlement of uid; unknown users are unsubscribed.
func (s *Store) Subscription(ctx context.Context, uid string) (Subscription, error) {
	q, args, err := qsq.Select("is_subscribed", "plan", "current_period_end").
		From("subscriptions").
		Where(sq.Eq{"user_id": uid}).
		ToSql()
	if err != nil {
		return Subscription{}, err
	}
	var (
		subscribed bool
		plan       sql.NullString
		periodEnd  sql.NullInt64
	)
	err = s.db.QueryRowContext(ctx, q, args...).Scan(&subscribed, &plan, &periodEnd)
	if errors.Is(err, sql.ErrNoRows) {
		return Subscription{UserID: uid}, nil
	}
	if err != nil {
		return Subscription{}, fmt.Errorf("load subscription: %w", err)
	}
	sub := Subscription{UserID: uid, IsSubscribed: subscribed, Plan: plan.String}
	if periodEnd.Valid {
		t := time.UnixMilli(periodEnd.Int64).UTC()
		sub.CurrentPeriodEnd = &t
	}
	return sub, nil
}

// SetSubscription upserts the entitlement of sub.UserID.
func (s *Store) SetSubscription(ctx context.Context, sub Subscription) error {
	var plan, periodEnd any
	if sub.Plan != "" {
		plan = sub.Plan
	}
	if sub.CurrentPeriodEnd != nil {
		periodEnd = sub.CurrentPeriodEnd.UnixMilli()
	}
	q, args, err := qsq.Insert("subscriptions").
		Columns("user_id", "is_subscribed", "plan", "current_period_end").
		Values(sub.UserID, sub.IsSubscribed, plan, periodEnd).
		Suffix("ON CONFLICT(user_id) DO UPDATE SET is_subscribed = excluded.is_subscribed, plan = excluded.plan, current_period_end = excluded.current_period_end").
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

// CreateConversation starts a conversation for uid.
func (s *Store) CreateConversation(ctx context.Context, uid, topic, title string) (Conversation, error) {
	now := s.now()
	c := Conversation{
		ID:        uuid.NewString(),
		UserID:    uid,
		Topic:     topic,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	q, args, err := qsq.Insert("conversations").
		Columns("id", "user_id", "topic", "title", "created_at", "updated_at").
		Values(c.ID, uid, topic, title, now.UnixMilli(), now.UnixMilli()).
		ToSql()
	if err != nil {
		return Conversation{}, err
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

// Conversation returns conversation id if it belongs to uid.
func (s *Store) Conversation(ctx context.Context, uid, id string) (Conversation, error) {
	q, args, err := qsq.Select("id", "user_id", "topic", "title", "created_at", "updated_at").
		From("conversations").
		Where(sq.Eq{"id": id, "user_id": uid}).
		ToSql()
	if err != nil {
		return Conversation{}, err
	}
	var (
		c                    Conversation
		createdAt, updatedAt int64
	)
	err = s.db.QueryRowContext(ctx, q, args...).Scan(&c.ID, &c.UserID, &c.Topic, &c.Title, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("load conversation: %w", err)
	}
	c.CreatedAt = time.UnixMilli(createdAt).UTC()
	c.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return c, nil
}

// ListConversations returns uid's conversations, most recently updated
// first, with the first user message as preview.
func (s *Store) ListConversations(ctx context.Context, uid string) ([]Conversation, error) {
	preview := "(SELECT content FROM messages m WHERE m.conversation_id = c.id AND m.role = 'user' ORDER BY m.seq LIMIT 1)"
	q, args, err := qsq.Select("c.id", "c.user_id", "c.topic", "c.title", "c.created_at", "c.updated_at", "COALESCE("+preview+", '')").
		From("conversations c").
		Where(sq.Eq{"c.user_id": uid}).
		OrderBy("c.updated_at DESC", "c.created_at DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []Conversation{}
	for rows.Next() {
		var (
			c                    Conversation
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.Topic, &c.Title, &createdAt, &updatedAt, &c.Preview); err != nil {
			return nil, err
		}
		c.CreatedAt = time.UnixMilli(createdAt).UTC()
		c.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// AppendMessage stores one turn and bumps the conversation's updated_at.
func (s *Store) AppendMessage(ctx context.Context, conversationID, role, content string) (Message, error) {
	now := s.now()
	m := Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      now,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, err
	}
	defer func() { _ = tx.Rollback() }()

	q, args, err := qsq.Insert("messages").
		Columns("id", "conversation_id", "role", "content", "created_at").
		Values(m.ID, conversationID, role, content, now.UnixMilli()).
		ToSql()
	if err != nil {
		return Message{}, err
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}
	q, args, err = qsq.Update("conversations").
		Set("updated_at", now.UnixMilli()).
		Where(sq.Eq{"id": conversationID}).
		ToSql()
	if err != nil {
		return Message{}, err
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return Message{}, fmt.Errorf("touch conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Messages returns the turns of a conversation in insertion order.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	q, args, err := qsq.Select("id", "conversation_id", "role", "content", "created_at").
		From("messages").
		Where(sq.Eq{"conversation_id": conversationID}).
		OrderBy("seq").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []Message{}
	for rows.Next() {
		var (
			m         Message
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

// AddDocument records upload metadata for uid.
func (s *Store) AddDocument(ctx context.Context, uid, name string, size int64) (Document, error) {
	now := s.now()
	d := Document{ID: uuid.NewString(), UserID: uid, Name: name, Size: size, UploadedAt: now}
	q, args, err := qsq.Insert("documents").
		Columns("id", "user_id", "name", "size", "uploaded_at").
		Values(d.ID, uid, name, size, now.UnixMilli()).
		ToSql()
	if err != nil {
		return Document{}, err
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return Document{}, fmt.Errorf("add document: %w", err)
	}
	return d, nil
}

// ListDocuments returns uid's documents, newest first.
func (s *Store) ListDocuments(ctx context.Context, uid string) ([]Document, error) {
	q, args, err := qsq.Select("id", "user_id", "name", "size", "uploaded_at").
		From("documents").
		Where(sq.Eq{"user_id": uid}).
		OrderBy("uploaded_at DESC", "rowid DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []Document{}
	for rows.Next() {
		var (
			d          Document
			uploadedAt int64
		)
		if err := rows.Scan(&d.ID, &d.UserID, &d.Name, &d.Size, &uploadedAt); err != nil {
			return nil, err
		}
		d.UploadedAt = time.UnixMilli(uploadedAt).UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}
