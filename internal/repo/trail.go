package repo

import (
	"context"
	"database/sql"
	"fmt"

	"reviewline/internal/domain"
)

func (r Repo) GetTrailHead(ctx context.Context, tx *sql.Tx, id string) (domain.TrailHead, error) {
	var h domain.TrailHead
	var head, tail sql.NullString
	err := r.q(tx).QueryRowContext(ctx, `SELECT id,head,tail,node_count,created_at,last_modified FROM trail_heads WHERE id=?`, id).
		Scan(&h.ID, &head, &tail, &h.NodeCount, &h.CreatedAt, &h.LastModified)
	if err == sql.ErrNoRows {
		return h, fmt.Errorf("trail head '%s': %w", id, ErrNotFound)
	}
	if err != nil {
		return h, err
	}
	h.Head = optional(head)
	h.Tail = optional(tail)
	return h, nil
}

// UpsertTrailHead inserts h or overwrites the stored head with the same id.
func (r Repo) UpsertTrailHead(ctx context.Context, tx *sql.Tx, h domain.TrailHead) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO trail_heads(id,head,tail,node_count,created_at,last_modified) VALUES (?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET head=excluded.head, tail=excluded.tail, node_count=excluded.node_count, last_modified=excluded.last_modified`,
		h.ID, nullableStringPtr(h.Head), nullableStringPtr(h.Tail), h.NodeCount, h.CreatedAt, h.LastModified)
	return err
}

func (r Repo) GetTrailNode(ctx context.Context, tx *sql.Tx, id string) (domain.TrailNode, error) {
	var n domain.TrailNode
	var next, desc sql.NullString
	err := r.q(tx).QueryRowContext(ctx, `SELECT id,system_code,review_document_id,version_label,next,timestamp,change_description FROM trail_nodes WHERE id=?`, id).
		Scan(&n.ID, &n.SystemCode, &n.ReviewDocumentID, &n.VersionLabel, &next, &n.Timestamp, &desc)
	if err == sql.ErrNoRows {
		return n, fmt.Errorf("trail node '%s': %w", id, ErrNotFound)
	}
	if err != nil {
		return n, err
	}
	n.Next = optional(next)
	n.ChangeDescription = desc.String
	return n, nil
}

func (r Repo) InsertTrailNode(ctx context.Context, tx *sql.Tx, n domain.TrailNode) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO trail_nodes(id,system_code,review_document_id,version_label,next,timestamp,change_description) VALUES (?,?,?,?,?,?,?)`,
		n.ID, n.SystemCode, n.ReviewDocumentID, n.VersionLabel, nullableStringPtr(n.Next), n.Timestamp, nullable(n.ChangeDescription))
	return err
}

func (r Repo) DeleteTrailNode(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM trail_nodes WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("trail node '%s': %w", id, ErrNotFound)
	}
	return nil
}

// CountTrailNodes returns the number of stored nodes for a system.
func (r Repo) CountTrailNodes(ctx context.Context, tx *sql.Tx, systemCode string) (int, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM trail_nodes WHERE system_code=?`, systemCode).Scan(&n)
	return n, err
}

func (r Repo) SetTrailNodeDescription(ctx context.Context, tx *sql.Tx, id, description string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE trail_nodes SET change_description=? WHERE id=?`, nullable(description), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("trail node '%s': %w", id, ErrNotFound)
	}
	return nil
}
