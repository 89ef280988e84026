package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/formsync/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/ports/driven"
)

// Store is a unified SQLite-based storage that provides access to the
// document and membership stores through wrapper types.
type Store struct {
	db   *sql.DB
	path string

	// writeMu serialises read-modify-write batches so two PATCHes on the
	// same document never lose each other's fields.
	writeMu sync.Mutex
	now     func() time.Time
}

// NewStore opens the database at path. If path is empty, defaults to
// ~/.formsync/data/formsync.db.
func NewStore(path string) (*Store, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, ".formsync", "data", "formsync.db")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// WAL mode for concurrent readers during a write
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: path, now: time.Now}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DocumentStore returns a DocumentStore interface backed by this store.
func (s *Store) DocumentStore() driven.DocumentStore {
	return &documentStore{store: s}
}

// MembershipStore returns a MembershipStore interface backed by this store.
func (s *Store) MembershipStore() driven.MembershipStore {
	return &membershipStore{store: s}
}

// migrate runs all pending up migrations in version order.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if err := s.apply(version, string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) apply(version int, content string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(content); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return err
	}
	return tx.Commit()
}

// ==================== Document Store ====================

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

// Create inserts a new document at version 0.
func (s *documentStore) Create(ctx context.Context, doc *domain.Document) error {
	fieldsJSON, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("marshalling fields: %w", err)
	}

	res, err := s.store.db.ExecContext(ctx, `
		INSERT INTO documents (id, form_id, kind, fields, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, doc.ID, doc.FormID, string(doc.Kind), string(fieldsJSON), doc.CreatedAt.UTC(), doc.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("creating document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// Get retrieves a document by ID.
func (s *documentStore) Get(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, form_id, kind, fields, version, created_at, updated_at
		FROM documents WHERE id = ?
	`, id)
	return scanDocument(row)
}

// List returns the documents with the given IDs, in the given order.
func (s *documentStore) List(ctx context.Context, ids []string) ([]domain.Document, error) {
	docs := make([]domain.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := s.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}

// ApplyChanges merges changes into the stored fields and bumps the version
// in one transaction.
func (s *documentStore) ApplyChanges(ctx context.Context, id string, changes map[string]any) (int64, error) {
	s.store.writeMu.Lock()
	defer s.store.writeMu.Unlock()

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var fieldsJSON string
	var version int64
	err = tx.QueryRowContext(ctx, "SELECT fields, version FROM documents WHERE id = ?", id).Scan(&fieldsJSON, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("reading document: %w", err)
	}

	fields, err := decodeFields(fieldsJSON)
	if err != nil {
		return 0, err
	}
	for name, value := range changes {
		fields[name] = domain.NormalizeValue(value)
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return 0, fmt.Errorf("marshalling fields: %w", err)
	}

	version++
	if _, err := tx.ExecContext(ctx,
		"UPDATE documents SET fields = ?, version = ?, updated_at = ? WHERE id = ?",
		string(merged), version, s.store.now().UTC(), id,
	); err != nil {
		return 0, fmt.Errorf("updating document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return version, nil
}

// scanner abstracts sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*domain.Document, error) {
	var doc domain.Document
	var kind, fieldsJSON string
	err := row.Scan(&doc.ID, &doc.FormID, &kind, &fieldsJSON, &doc.Version, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	doc.Kind = domain.DocumentKind(kind)
	if doc.Fields, err = decodeFields(fieldsJSON); err != nil {
		return nil, err
	}
	return &doc, nil
}

func decodeFields(data string) (map[string]any, error) {
	fields := make(map[string]any)
	if data == "" {
		return fields, nil
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("unmarshalling fields: %w", err)
	}
	for k, v := range raw {
		fields[k] = domain.NormalizeValue(v)
	}
	return fields, nil
}

// ==================== Membership Store ====================

// membershipStore implements driven.MembershipStore.
type membershipStore struct {
	store *Store
}

var _ driven.MembershipStore = (*membershipStore)(nil)

// GetTier returns a user's tier on a document.
func (s *membershipStore) GetTier(ctx context.Context, documentID, userID string) (domain.PermissionTier, error) {
	var tier string
	err := s.store.db.QueryRowContext(ctx,
		"SELECT tier FROM memberships WHERE document_id = ? AND user_id = ?",
		documentID, userID,
	).Scan(&tier)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading membership: %w", err)
	}
	return domain.PermissionTier(tier), nil
}

// SetTier creates or replaces a membership.
func (s *membershipStore) SetTier(ctx context.Context, m domain.Membership) error {
	if !m.Tier.IsValid() {
		return domain.ErrInvalidInput
	}
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO memberships (document_id, user_id, tier)
		VALUES (?, ?, ?)
		ON CONFLICT(document_id, user_id) DO UPDATE SET tier = excluded.tier
	`, m.DocumentID, m.UserID, m.Tier.String())
	if err != nil {
		return fmt.Errorf("saving membership: %w", err)
	}
	return nil
}

// ListForUser returns every membership a user holds, by document ID.
func (s *membershipStore) ListForUser(ctx context.Context, userID string) ([]domain.Membership, error) {
	return s.list(ctx, `
		SELECT document_id, user_id, tier FROM memberships
		WHERE user_id = ? ORDER BY document_id
	`, userID)
}

// ListForDocument returns every membership on a document, by user ID.
func (s *membershipStore) ListForDocument(ctx context.Context, documentID string) ([]domain.Membership, error) {
	return s.list(ctx, `
		SELECT document_id, user_id, tier FROM memberships
		WHERE document_id = ? ORDER BY user_id
	`, documentID)
}

func (s *membershipStore) list(ctx context.Context, query string, arg string) ([]domain.Membership, error) {
	rows, err := s.store.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("querying memberships: %w", err)
	}
	defer rows.Close()

	var out []domain.Membership //nolint:prealloc // size unknown from query
	for rows.Next() {
		var m domain.Membership
		var tier string
		if err := rows.Scan(&m.DocumentID, &m.UserID, &tier); err != nil {
			return nil, fmt.Errorf("scanning membership: %w", err)
		}
		m.Tier = domain.PermissionTier(tier)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating memberships: %w", err)
	}
	return out, nil
}
