package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// SQLiteQuerier implements Querier over a migrated SQLite database
// (see the db package for schema management).
type SQLiteQuerier struct {
	db *sql.DB
}

var _ Querier = (*SQLiteQuerier)(nil)

// NewSQLiteQuerier wraps an open database handle.
func NewSQLiteQuerier(sqlDB *sql.DB) *SQLiteQuerier {
	return &SQLiteQuerier{db: sqlDB}
}

// UpsertDocument inserts or overwrites a document row by id.
func (q *SQLiteQuerier) UpsertDocument(ctx context.Context, arg UpsertDocumentParams) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO knowledge_documents (id, title, body, category, tags, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			body = excluded.body,
			category = excluded.category,
			tags = excluded.tags,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at`,
		arg.ID, arg.Title, arg.Body, arg.Category, string(arg.TagsJSON), arg.Embedding, arg.UpdatedAt)
	return err
}

// GetDocument returns a row or ErrNotFound.
func (q *SQLiteQuerier) GetDocument(ctx context.Context, id string) (DocumentRow, error) {
	var (
		row  DocumentRow
		tags string
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT id, title, body, category, tags, updated_at
		FROM knowledge_documents WHERE id = ?`, id).
		Scan(&row.ID, &row.Title, &row.Body, &row.Category, &tags, &row.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DocumentRow{}, ErrNotFound
		}
		return DocumentRow{}, err
	}
	row.TagsJSON = []byte(tags)
	return row, nil
}

// DeleteDocument removes a row; absent ids are a no-op.
func (q *SQLiteQuerier) DeleteDocument(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM knowledge_documents WHERE id = ?", id)
	return err
}

// ListDocuments returns rows matching the filter, newest first.
func (q *SQLiteQuerier) ListDocuments(ctx context.Context, arg ListDocumentsParams) ([]DocumentRow, error) {
	var (
		conds []string
		args  []any
	)
	if arg.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, arg.Category)
	}
	if arg.Tag != "" {
		conds = append(conds, "EXISTS (SELECT 1 FROM json_each(knowledge_documents.tags) WHERE json_each.value = ?)")
		args = append(args, arg.Tag)
	}

	query := "SELECT id, title, body, category, tags, updated_at FROM knowledge_documents"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY updated_at DESC, id LIMIT ?"
	args = append(args, arg.Limit)

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		var (
			row  DocumentRow
			tags string
		)
		if err := rows.Scan(&row.ID, &row.Title, &row.Body, &row.Category, &tags, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		row.TagsJSON = []byte(tags)
		out = append(out, row)
	}
	return out, rows.Err()
}

// CountDocuments counts all documents.
func (q *SQLiteQuerier) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM knowledge_documents").Scan(&count)
	return count, err
}

// ListEmbeddings returns every (id, embedding) pair.
func (q *SQLiteQuerier) ListEmbeddings(ctx context.Context) ([]EmbeddingRow, error) {
	rows, err := q.db.QueryContext(ctx, "SELECT id, embedding FROM knowledge_documents")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EmbeddingRow
	for rows.Next() {
		var row EmbeddingRow
		if err := rows.Scan(&row.ID, &row.Embedding); err != nil {
			return nil, fmt.Errorf("scanning embedding row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
