package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"reviewline/internal/domain"
)

const documentColumns = `id,system_code,state,version_label,revision,payload_json,created_by,created_at,last_modified_by,last_modified_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (domain.ReviewDocument, error) {
	var d domain.ReviewDocument
	var versionLabel, payload, createdBy, modifiedBy sql.NullString
	var state string
	err := row.Scan(&d.ID, &d.SystemCode, &state, &versionLabel, &d.Revision, &payload, &createdBy, &d.CreatedAt, &modifiedBy, &d.LastModifiedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	d.State = domain.DocumentState(state)
	d.Version = versionLabel.String
	d.CreatedBy = createdBy.String
	d.LastModifiedBy = modifiedBy.String
	if payload.Valid && payload.String != "" {
		d.Payload = json.RawMessage(payload.String)
	}
	return d, nil
}

func payloadArg(p json.RawMessage) any {
	if len(p) == 0 {
		return nil
	}
	return string(p)
}

// InsertDocument stores a new document. The id must be unused.
func (r Repo) InsertDocument(ctx context.Context, tx *sql.Tx, d domain.ReviewDocument) error {
	if d.Revision == 0 {
		d.Revision = 1
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO review_documents(`+documentColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.SystemCode, string(d.State), nullable(d.Version), d.Revision, payloadArg(d.Payload),
		nullable(d.CreatedBy), d.CreatedAt, nullable(d.LastModifiedBy), d.LastModifiedAt)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "unique") {
		return fmt.Errorf("%w: document %s already exists", ErrConflict, d.ID)
	}
	return err
}

func (r Repo) GetDocument(ctx context.Context, tx *sql.Tx, id string) (domain.ReviewDocument, error) {
	d, err := scanDocument(r.q(tx).QueryRowContext(ctx, `SELECT `+documentColumns+` FROM review_documents WHERE id=?`, id))
	if err == ErrNotFound {
		return d, fmt.Errorf("review document '%s': %w", id, ErrNotFound)
	}
	return d, err
}

// SaveDocument replaces the stored document if its revision still matches
// d.Revision, then bumps d.Revision. A stale revision yields ErrConflict.
func (r Repo) SaveDocument(ctx context.Context, tx *sql.Tx, d *domain.ReviewDocument) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE review_documents SET system_code=?, state=?, version_label=?, revision=revision+1, payload_json=?, last_modified_by=?, last_modified_at=? WHERE id=? AND revision=?`,
		d.SystemCode, string(d.State), nullable(d.Version), payloadArg(d.Payload), nullable(d.LastModifiedBy), d.LastModifiedAt, d.ID, d.Revision)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetDocument(ctx, tx, d.ID); err != nil {
			return err
		}
		return fmt.Errorf("%w: review document %s changed since revision %d", ErrConflict, d.ID, d.Revision)
	}
	d.Revision++
	return nil
}

func (r Repo) DeleteDocument(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM review_documents WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FindBySystemAndStates returns the documents of a system whose state is in states.
func (r Repo) FindBySystemAndStates(ctx context.Context, tx *sql.Tx, systemCode string, states []domain.DocumentState) ([]domain.ReviewDocument, error) {
	if len(states) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(states))
	args := []any{systemCode}
	for i, s := range states {
		placeholders[i] = "?"
		args = append(args, string(s))
	}
	query := `SELECT ` + documentColumns + ` FROM review_documents WHERE system_code=? AND state IN (` + strings.Join(placeholders, ",") + `) ORDER BY created_at, id`
	return r.listDocuments(ctx, tx, query, args...)
}

// FindBySystem returns every document of a system, most recently modified first.
func (r Repo) FindBySystem(ctx context.Context, tx *sql.Tx, systemCode string) ([]domain.ReviewDocument, error) {
	return r.listDocuments(ctx, tx, `SELECT `+documentColumns+` FROM review_documents WHERE system_code=? ORDER BY last_modified_at DESC, id DESC`, systemCode)
}

func (r Repo) listDocuments(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]domain.ReviewDocument, error) {
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ReviewDocument
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}
