// Package postgres provides a PostgreSQL implementation of the relay
// server's document and membership stores using pgx.
//
// Fields are a JSONB column. ApplyChanges merges with the jsonb || operator
// and bumps the version in a single UPDATE, so concurrent batches on one
// document serialise on the row lock and several relay instances can share
// one database.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/custodia-labs/formsync/internal/adapters/driven/storage/postgres/migrations"
	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/ports/driven"
)

// foreignKeyViolation is the SQLSTATE for a missing referenced row.
const foreignKeyViolation = "23503"

// Store holds a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewStore connects to dsn and runs pending migrations.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres requires a DSN", domain.ErrInvalidInput)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	s := &Store{pool: pool, now: time.Now}
	if err := s.migrate(ctx, migrations.FS); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// DocumentStore returns a DocumentStore interface backed by this store.
func (s *Store) DocumentStore() driven.DocumentStore {
	return &documentStore{store: s}
}

// MembershipStore returns a MembershipStore interface backed by this store.
func (s *Store) MembershipStore() driven.MembershipStore {
	return &membershipStore{store: s}
}

func (s *Store) migrate(ctx context.Context, fsys fs.FS) error {
	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.pool.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	names, err := upMigrations(fsys)
	if err != nil {
		return err
	}
	for _, name := range names {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(content)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version)
			return err
		})
		if err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}
	return nil
}

// upMigrations lists *.up.sql files in version order.
func upMigrations(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ==================== Document Store ====================

type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

func (s *documentStore) Create(ctx context.Context, doc *domain.Document) error {
	fieldsJSON, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("marshalling fields: %w", err)
	}
	tag, err := s.store.pool.Exec(ctx, `
		INSERT INTO documents (id, form_id, kind, fields, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, doc.ID, doc.FormID, string(doc.Kind), fieldsJSON, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (s *documentStore) Get(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.pool.QueryRow(ctx, `
		SELECT id, form_id, kind, fields, version, created_at, updated_at
		FROM documents WHERE id = $1
	`, id)
	return scanDocument(row)
}

func (s *documentStore) List(ctx context.Context, ids []string) ([]domain.Document, error) {
	if len(ids) == 0 {
		return []domain.Document{}, nil
	}
	rows, err := s.store.pool.Query(ctx, `
		SELECT id, form_id, kind, fields, version, created_at, updated_at
		FROM documents WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]domain.Document, len(ids))
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		byID[doc.ID] = *doc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	docs := make([]domain.Document, 0, len(byID))
	for _, id := range ids {
		if d, ok := byID[id]; ok {
			docs = append(docs, d)
		}
	}
	return docs, nil
}

func (s *documentStore) ApplyChanges(ctx context.Context, id string, changes map[string]any) (int64, error) {
	normalised := make(map[string]any, len(changes))
	for k, v := range changes {
		normalised[k] = domain.NormalizeValue(v)
	}
	patch, err := json.Marshal(normalised)
	if err != nil {
		return 0, fmt.Errorf("marshalling changes: %w", err)
	}

	var version int64
	err = s.store.pool.QueryRow(ctx, `
		UPDATE documents
		SET fields = fields || $2::jsonb, version = version + 1, updated_at = $3
		WHERE id = $1
		RETURNING version
	`, id, patch, s.store.now()).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("updating document: %w", err)
	}
	return version, nil
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var doc domain.Document
	var kind string
	var fieldsJSON []byte
	err := row.Scan(&doc.ID, &doc.FormID, &kind, &fieldsJSON, &doc.Version, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
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

func decodeFields(data []byte) (map[string]any, error) {
	fields := make(map[string]any)
	if len(data) == 0 {
		return fields, nil
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshalling fields: %w", err)
	}
	for k, v := range raw {
		fields[k] = domain.NormalizeValue(v)
	}
	return fields, nil
}

// ==================== Membership Store ====================

type membershipStore struct {
	store *Store
}

var _ driven.MembershipStore = (*membershipStore)(nil)

func (s *membershipStore) GetTier(ctx context.Context, documentID, userID string) (domain.PermissionTier, error) {
	var tier string
	err := s.store.pool.QueryRow(ctx,
		"SELECT tier FROM memberships WHERE document_id = $1 AND user_id = $2",
		documentID, userID,
	).Scan(&tier)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading membership: %w", err)
	}
	return domain.PermissionTier(tier), nil
}

func (s *membershipStore) SetTier(ctx context.Context, m domain.Membership) error {
	if !m.Tier.IsValid() {
		return domain.ErrInvalidInput
	}
	_, err := s.store.pool.Exec(ctx, `
		INSERT INTO memberships (document_id, user_id, tier)
		VALUES ($1, $2, $3)
		ON CONFLICT (document_id, user_id) DO UPDATE SET tier = EXCLUDED.tier
	`, m.DocumentID, m.UserID, m.Tier.String())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("saving membership: %w", err)
	}
	return nil
}

func (s *membershipStore) ListForUser(ctx context.Context, userID string) ([]domain.Membership, error) {
	return s.list(ctx, `
		SELECT document_id, user_id, tier FROM memberships
		WHERE user_id = $1 ORDER BY document_id
	`, userID)
}

func (s *membershipStore) ListForDocument(ctx context.Context, documentID string) ([]domain.Membership, error) {
	return s.list(ctx, `
		SELECT document_id, user_id, tier FROM memberships
		WHERE document_id = $1 ORDER BY user_id
	`, documentID)
}

func (s *membershipStore) list(ctx context.Context, query, arg string) ([]domain.Membership, error) {
	rows, err := s.store.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("querying memberships: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Membership, error) {
		var m domain.Membership
		var tier string
		err := row.Scan(&m.DocumentID, &m.UserID, &tier)
		m.Tier = domain.PermissionTier(tier)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning memberships: %w", err)
	}
	return out, nil
}
