package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"reviewline/internal/config"
	"reviewline/internal/domain"
	"reviewline/internal/events"
	"reviewline/internal/lifecycle"
	"reviewline/internal/metrics"
	"reviewline/internal/repo"
	"reviewline/internal/trail"
)

// Engine is the lifecycle orchestrator. It is the only component that writes
// review documents or the audit trail.
type Engine struct {
	DB          *sql.DB
	Repo        repo.Repo
	Trail       trail.Trail
	Guard       Guard
	Events      events.Writer
	Log         zerolog.Logger
	Metrics     *metrics.Metrics
	LockTimeout time.Duration
	Now         func() time.Time

	locks *systemLocks
}

// New builds an Engine over db. cfg may be nil to use no lock timeout.
func New(db *sql.DB, cfg *config.Config, log zerolog.Logger, m *metrics.Metrics) Engine {
	r := repo.Repo{DB: db}
	e := Engine{
		DB:      db,
		Repo:    r,
		Trail:   trail.Trail{Repo: r},
		Guard:   Guard{Repo: r},
		Events:  events.Writer{},
		Log:     log.With().Str("component", "lifecycle").Logger(),
		Metrics: m,
		Now:     time.Now,
		locks:   newSystemLocks(),
	}
	if cfg != nil {
		e.LockTimeout = cfg.LockTimeout()
	}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339Nano)
}

// withSystem runs fn in one transaction while holding the lock for systemCode.
// The transaction commits only if fn returns nil.
func (e Engine) withSystem(ctx context.Context, systemCode string, fn func(tx *sql.Tx) error) error {
	if e.locks != nil {
		lockCtx := ctx
		if e.LockTimeout > 0 {
			var cancel context.CancelFunc
			lockCtx, cancel = context.WithTimeout(ctx, e.LockTimeout)
			defer cancel()
		}
		start := time.Now()
		unlock, err := e.locks.acquire(lockCtx, systemCode)
		e.Metrics.RecordLockWait(time.Since(start))
		if err != nil {
			return fmt.Errorf("%w: system %s is busy: %v", domain.ErrConflict, systemCode, err)
		}
		defer unlock()
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Storage("begin", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return domain.Storage("commit", tx.Commit())
}

// CreateOptions are parameters for creating a draft review.
type CreateOptions struct {
	ID         string
	SystemCode string
	Payload    json.RawMessage
	Actor      string
}

// CreateDraft inserts a new DRAFT document. A system may hold only one
// document in DRAFT, SUBMITTED or APPROVED at a time.
func (e Engine) CreateDraft(ctx context.Context, opts CreateOptions) (domain.ReviewDocument, error) {
	opts.SystemCode = strings.TrimSpace(opts.SystemCode)
	if opts.SystemCode == "" {
		return domain.ReviewDocument{}, fmt.Errorf("%w: systemCode is required", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(opts.Actor) == "" {
		return domain.ReviewDocument{}, fmt.Errorf("%w: actor is required", domain.ErrInvalidArgument)
	}
	if len(opts.Payload) > 0 && !json.Valid(opts.Payload) {
		return domain.ReviewDocument{}, fmt.Errorf("%w: payload is not valid JSON", domain.ErrInvalidArgument)
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := e.stamp()
	doc := domain.ReviewDocument{
		ID:             id,
		SystemCode:     opts.SystemCode,
		State:          domain.StateDraft,
		Revision:       1,
		Payload:        opts.Payload,
		CreatedBy:      opts.Actor,
		CreatedAt:      now,
		LastModifiedBy: opts.Actor,
		LastModifiedAt: now,
	}
	err := e.withSystem(ctx, doc.SystemCode, func(tx *sql.Tx) error {
		if err := e.Guard.AssertExclusive(ctx, tx, doc.SystemCode, lifecycle.PreAuthoritative); err != nil {
			return err
		}
		if err := e.Repo.InsertDocument(ctx, tx, doc); err != nil {
			return domain.Storage("insert document", err)
		}
		return domain.Storage("append event", e.Events.Append(ctx, tx, "review.create", doc.SystemCode, "review_document", doc.ID, opts.Actor, events.EventPayload{"state": doc.State}))
	})
	if err != nil {
		e.logRejected("CREATE", doc.ID, opts.Actor, err)
		return domain.ReviewDocument{}, err
	}
	e.Log.Info().Str("document_id", doc.ID).Str("system_code", doc.SystemCode).Str("actor", opts.Actor).Msg("draft created")
	return doc, nil
}

// CreateFromActive starts a new DRAFT whose payload is copied from the
// system's ACTIVE document.
func (e Engine) CreateFromActive(ctx context.Context, systemCode, actor string) (domain.ReviewDocument, error) {
	systemCode = strings.TrimSpace(systemCode)
	if systemCode == "" {
		return domain.ReviewDocument{}, fmt.Errorf("%w: systemCode is required", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(actor) == "" {
		return domain.ReviewDocument{}, fmt.Errorf("%w: actor is required", domain.ErrInvalidArgument)
	}
	var doc domain.ReviewDocument
	err := e.withSystem(ctx, systemCode, func(tx *sql.Tx) error {
		active, err := e.Repo.FindBySystemAndStates(ctx, tx, systemCode, []domain.DocumentState{domain.StateActive})
		if err != nil {
			return domain.Storage("find active", err)
		}
		if len(active) == 0 {
			return fmt.Errorf("no active review for system '%s': %w", systemCode, domain.ErrNotFound)
		}
		if err := e.Guard.AssertExclusive(ctx, tx, systemCode, lifecycle.PreAuthoritative); err != nil {
			return err
		}
		now := e.stamp()
		doc = domain.ReviewDocument{
			ID:             uuid.NewString(),
			SystemCode:     systemCode,
			State:          domain.StateDraft,
			Revision:       1,
			Payload:        active[0].Payload,
			CreatedBy:      actor,
			CreatedAt:      now,
			LastModifiedBy: actor,
			LastModifiedAt: now,
		}
		if err := e.Repo.InsertDocument(ctx, tx, doc); err != nil {
			return domain.Storage("insert document", err)
		}
		return domain.Storage("append event", e.Events.Append(ctx, tx, "review.fork", systemCode, "review_document", doc.ID, actor, events.EventPayload{
			"source_id":      active[0].ID,
			"source_version": active[0].Version,
		}))
	})
	if err != nil {
		e.logRejected("FORK", systemCode, actor, err)
		return domain.ReviewDocument{}, err
	}
	return doc, nil
}

// UpdateDraft replaces the payload of a DRAFT document.
func (e Engine) UpdateDraft(ctx context.Context, id string, payload json.RawMessage, actor string) (domain.ReviewDocument, error) {
	if strings.TrimSpace(actor) == "" {
		return domain.ReviewDocument{}, fmt.Errorf("%w: actor is required", domain.ErrInvalidArgument)
	}
	if len(payload) > 0 && !json.Valid(payload) {
		return domain.ReviewDocument{}, fmt.Errorf("%w: payload is not valid JSON", domain.ErrInvalidArgument)
	}
	doc, err := e.Repo.GetDocument(ctx, nil, id)
	if err != nil {
		return doc, domain.Storage("get document", err)
	}
	err = e.withSystem(ctx, doc.SystemCode, func(tx *sql.Tx) error {
		fresh, err := e.Repo.GetDocument(ctx, tx, id)
		if err != nil {
			return domain.Storage("get document", err)
		}
		doc = fresh
		if doc.State != domain.StateDraft {
			return &domain.InvalidStateError{Reason: fmt.Sprintf("Document '%s' is %s; only DRAFT documents can be modified", doc.ID, doc.State)}
		}
		doc.Payload = payload
		doc.LastModifiedBy = actor
		doc.LastModifiedAt = e.stamp()
		if err := e.Repo.SaveDocument(ctx, tx, &doc); err != nil {
			return domain.Storage("save document", err)
		}
		return domain.Storage("append event", e.Events.Append(ctx, tx, "review.update", doc.SystemCode, "review_document", doc.ID, actor, nil))
	})
	if err != nil {
		e.logRejected("UPDATE", id, actor, err)
		return domain.ReviewDocument{}, err
	}
	return doc, nil
}

// DeleteDraft removes a DRAFT document. Documents that ever left DRAFT are
// part of the review history and cannot be deleted.
func (e Engine) DeleteDraft(ctx context.Context, id, actor string) error {
	if strings.TrimSpace(actor) == "" {
		return fmt.Errorf("%w: actor is required", domain.ErrInvalidArgument)
	}
	doc, err := e.Repo.GetDocument(ctx, nil, id)
	if err != nil {
		return domain.Storage("get document", err)
	}
	err = e.withSystem(ctx, doc.SystemCode, func(tx *sql.Tx) error {
		fresh, err := e.Repo.GetDocument(ctx, tx, id)
		if err != nil {
			return domain.Storage("get document", err)
		}
		doc = fresh
		if doc.State != domain.StateDraft {
			return &domain.InvalidStateError{Reason: fmt.Sprintf("Document '%s' is %s; only DRAFT documents can be deleted", doc.ID, doc.State)}
		}
		if err := e.Repo.DeleteDocument(ctx, tx, id); err != nil {
			return domain.Storage("delete document", err)
		}
		return domain.Storage("append event", e.Events.Append(ctx, tx, "review.delete", doc.SystemCode, "review_document", doc.ID, actor, nil))
	})
	if err != nil {
		e.logRejected("DELETE", id, actor, err)
	}
	return err
}

func (e Engine) GetDocument(ctx context.Context, id string) (domain.ReviewDocument, error) {
	doc, err := e.Repo.GetDocument(ctx, nil, id)
	return doc, domain.Storage("get document", err)
}

func (e Engine) ListBySystem(ctx context.Context, systemCode string) ([]domain.ReviewDocument, error) {
	docs, err := e.Repo.FindBySystem(ctx, nil, systemCode)
	return docs, domain.Storage("list documents", err)
}

// ActiveBySystem returns the system's ACTIVE document or ErrNotFound.
func (e Engine) ActiveBySystem(ctx context.Context, systemCode string) (domain.ReviewDocument, error) {
	docs, err := e.Repo.FindBySystemAndStates(ctx, nil, systemCode, []domain.DocumentState{domain.StateActive})
	if err != nil {
		return domain.ReviewDocument{}, domain.Storage("find active", err)
	}
	if len(docs) == 0 {
		return domain.ReviewDocument{}, fmt.Errorf("no active review for system '%s': %w", systemCode, domain.ErrNotFound)
	}
	return docs[0], nil
}

// TrailHistory returns the system's trail head and its nodes, newest first.
func (e Engine) TrailHistory(ctx context.Context, systemCode string) (domain.TrailHead, []domain.TrailNode, error) {
	h, nodes, err := e.Trail.History(ctx, nil, systemCode)
	return h, nodes, domain.Storage("trail history", err)
}

// AvailableOperations lists what can be executed on the document right now.
func (e Engine) AvailableOperations(ctx context.Context, id string) (domain.ReviewDocument, []lifecycle.Operation, error) {
	doc, err := e.GetDocument(ctx, id)
	if err != nil {
		return doc, nil, err
	}
	return doc, lifecycle.AvailableOperations(doc.State), nil
}

// RecentEvents returns up to n events, newest first, optionally filtered.
func (e Engine) RecentEvents(ctx context.Context, n int, systemCode, evtType string) ([]domain.Event, error) {
	evs, err := e.Repo.LatestEvents(ctx, n, systemCode, evtType)
	return evs, domain.Storage("list events", err)
}

// logRejected records a failed lifecycle request before the error is returned.
func (e Engine) logRejected(operation, documentID, actor string, err error) {
	kind := domain.ErrorKind(err)
	ev := e.Log.Warn()
	var se *domain.StorageError
	var ie *domain.InvalidStateError
	if errors.As(err, &se) || (errors.As(err, &ie) && ie.Corrupt) {
		ev = e.Log.Error()
	}
	ev.Str("document_id", documentID).
		Str("operation", operation).
		Str("actor", actor).
		Str("kind", kind).
		Err(err).
		Msg("lifecycle request rejected")
}

// VerifyTrail checks the stored audit trail of systemCode for consistency.
func (e Engine) VerifyTrail(ctx context.Context, systemCode string) error {
	return domain.Storage("verify trail", e.Trail.Verify(ctx, nil, systemCode))
}
