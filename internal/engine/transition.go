package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"reviewline/internal/domain"
	"reviewline/internal/events"
	"reviewline/internal/lifecycle"
	"reviewline/internal/version"
)

// TransitionRequest asks the engine to run one named operation on a document.
type TransitionRequest struct {
	DocumentID string
	Operation  string
	Actor      string
	Comment    string
}

// TransitionResult describes what a successful transition changed.
type TransitionResult struct {
	Document domain.ReviewDocument
	From     domain.DocumentState
	// Counterpart is the other document touched by ACTIVATE (the displaced
	// predecessor) or UNAPPROVE (the restored predecessor).
	Counterpart *domain.ReviewDocument
	Node        *domain.TrailNode
	Head        *domain.TrailHead
}

// ExecuteTransition validates and applies req. Every record it touches is
// written in a single transaction while the system's lock is held.
func (e Engine) ExecuteTransition(ctx context.Context, req TransitionRequest) (res TransitionResult, err error) {
	start := time.Now()
	opLabel := "UNKNOWN"
	defer func() {
		result := "ok"
		if err != nil {
			result = domain.ErrorKind(err)
			e.logRejected(strings.TrimSpace(req.Operation), req.DocumentID, req.Actor, err)
		}
		e.Metrics.RecordTransition(opLabel, result, time.Since(start))
	}()

	if strings.TrimSpace(req.DocumentID) == "" {
		return res, fmt.Errorf("%w: documentId is required", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(req.Actor) == "" {
		return res, fmt.Errorf("%w: modifiedBy is required", domain.ErrInvalidArgument)
	}
	op, err := lifecycle.ParseOperation(req.Operation)
	if err != nil {
		return res, err
	}
	opLabel = string(op)

	// The system code is needed to pick the lock; the document is read
	// again inside the transaction.
	doc, err := e.Repo.GetDocument(ctx, nil, req.DocumentID)
	if err != nil {
		return res, domain.Storage("get document", err)
	}
	err = e.withSystem(ctx, doc.SystemCode, func(tx *sql.Tx) error {
		doc, err := e.Repo.GetDocument(ctx, tx, req.DocumentID)
		if err != nil {
			return domain.Storage("get document", err)
		}
		if err := lifecycle.Check(doc, op); err != nil {
			return err
		}
		if err := lifecycle.ValidateTransition(doc.State, lifecycle.TargetState(op)); err != nil {
			return err
		}
		switch op {
		case lifecycle.Activate:
			res, err = e.promote(ctx, tx, doc, req)
		case lifecycle.Unapprove:
			res, err = e.revert(ctx, tx, doc, req)
		default:
			res, err = e.apply(ctx, tx, doc, op, req)
		}
		if err != nil {
			return err
		}
		payload := events.EventPayload{"from": res.From, "to": res.Document.State}
		if res.Document.Version != "" {
			payload["version"] = res.Document.Version
		}
		if req.Comment != "" {
			payload["comment"] = req.Comment
		}
		if res.Counterpart != nil {
			payload["counterpart_id"] = res.Counterpart.ID
			payload["counterpart_state"] = res.Counterpart.State
		}
		evt := "review." + strings.ToLower(string(op))
		return domain.Storage("append event", e.Events.Append(ctx, tx, evt, doc.SystemCode, "review_document", doc.ID, req.Actor, payload))
	})
	if err != nil {
		return TransitionResult{}, err
	}
	if res.Head != nil {
		e.Metrics.SetTrailNodes(res.Head.ID, res.Head.NodeCount)
	}
	e.Log.Info().
		Str("document_id", res.Document.ID).
		Str("system_code", res.Document.SystemCode).
		Str("operation", opLabel).
		Str("actor", req.Actor).
		Str("from", string(res.From)).
		Str("to", string(res.Document.State)).
		Msg("transition applied")
	return res, nil
}

func (e Engine) touch(doc *domain.ReviewDocument, actor string) {
	doc.LastModifiedBy = actor
	doc.LastModifiedAt = e.stamp()
}

// apply handles the operations that change only the document itself.
func (e Engine) apply(ctx context.Context, tx *sql.Tx, doc domain.ReviewDocument, op lifecycle.Operation, req TransitionRequest) (TransitionResult, error) {
	res := TransitionResult{From: doc.State}
	target := lifecycle.TargetState(op)
	if class, ok := lifecycle.ClassOf(target); ok {
		if err := e.Guard.AssertExclusive(ctx, tx, doc.SystemCode, class, doc.ID); err != nil {
			return res, err
		}
	}
	doc.State = target
	e.touch(&doc, req.Actor)
	if err := e.Repo.SaveDocument(ctx, tx, &doc); err != nil {
		return res, domain.Storage("save document", err)
	}
	res.Document = doc
	return res, nil
}

// promote makes doc the system's ACTIVE document. The document referenced by
// the current trail head is marked OUTDATED if it is still ACTIVE, doc gets
// the next version label and a new node is pushed onto the trail.
func (e Engine) promote(ctx context.Context, tx *sql.Tx, doc domain.ReviewDocument, req TransitionRequest) (TransitionResult, error) {
	res := TransitionResult{From: doc.State}
	now := e.stamp()
	head, _, err := e.Trail.CreateHead(ctx, tx, doc.SystemCode, now)
	if err != nil {
		return res, domain.Storage("create trail head", err)
	}

	var prevLabel *string
	var prevNode *domain.TrailNode
	var prev *domain.ReviewDocument
	if !head.IsEmpty() {
		n, err := e.Repo.GetTrailNode(ctx, tx, *head.Head)
		if err != nil {
			return res, corruptIfMissing(err, doc.SystemCode, "Audit trail head points at a missing node")
		}
		prevNode = &n
		prevLabel = &n.VersionLabel
		p, err := e.Repo.GetDocument(ctx, tx, n.ReviewDocumentID)
		if err != nil {
			return res, corruptIfMissing(err, doc.SystemCode, "Audit trail head references a missing document")
		}
		prev = &p
	}

	exclude := []string{doc.ID}
	if prev != nil {
		exclude = append(exclude, prev.ID)
	}
	if err := e.Guard.AssertExclusive(ctx, tx, doc.SystemCode, lifecycle.Authoritative, exclude...); err != nil {
		return res, err
	}

	label, err := version.Next(prevLabel)
	if err != nil {
		return res, err
	}

	if prev != nil && prev.State == domain.StateActive {
		prev.State = domain.StateOutdated
		e.touch(prev, req.Actor)
		if err := e.Repo.SaveDocument(ctx, tx, prev); err != nil {
			return res, domain.Storage("outdate predecessor", err)
		}
		desc := fmt.Sprintf("Superseded by %s (%s)", doc.ID, label)
		if err := e.Trail.Describe(ctx, tx, prevNode.ID, desc); err != nil {
			return res, domain.Storage("describe trail node", err)
		}
		res.Counterpart = prev
	}

	doc.State = domain.StateActive
	doc.Version = label
	e.touch(&doc, req.Actor)
	if err := e.Repo.SaveDocument(ctx, tx, &doc); err != nil {
		return res, domain.Storage("save document", err)
	}

	desc := req.Comment
	if desc == "" {
		desc = fmt.Sprintf("Activated by %s", req.Actor)
	}
	node, err := e.Trail.Push(ctx, tx, &head, doc.ID, label, desc, now)
	if err != nil {
		return res, domain.Storage("push trail node", err)
	}
	res.Document = doc
	res.Node = &node
	res.Head = &head
	return res, nil
}

// revert undoes the most recent promotion: doc drops back to APPROVED, the
// trail head advances to the previous node and that node's document becomes
// ACTIVE again.
func (e Engine) revert(ctx context.Context, tx *sql.Tx, doc domain.ReviewDocument, req TransitionRequest) (TransitionResult, error) {
	res := TransitionResult{From: doc.State}
	head, err := e.Trail.Head(ctx, tx, doc.SystemCode)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return res, &domain.InvalidStateError{SystemCode: doc.SystemCode, Reason: "No audit trail found"}
		}
		return res, domain.Storage("get trail head", err)
	}
	if head.IsEmpty() {
		return res, &domain.InvalidStateError{SystemCode: doc.SystemCode, Reason: "No audit trail head found"}
	}
	popped, restored, err := e.Trail.Pop(ctx, tx, &head, e.stamp())
	if err != nil {
		return res, domain.Storage("pop trail node", err)
	}
	if popped.ReviewDocumentID != doc.ID {
		return res, &domain.InvalidStateError{
			SystemCode: doc.SystemCode,
			Reason:     fmt.Sprintf("Audit trail head references document '%s', not '%s'", popped.ReviewDocumentID, doc.ID),
			Corrupt:    true,
		}
	}
	prev, err := e.Repo.GetDocument(ctx, tx, restored.ReviewDocumentID)
	if err != nil {
		return res, corruptIfMissing(err, doc.SystemCode, "Previous audit trail node references a missing document")
	}
	target := lifecycle.TargetState(lifecycle.Unapprove)
	if err := e.Guard.AssertExclusive(ctx, tx, doc.SystemCode, lifecycle.PreAuthoritative, doc.ID); err != nil {
		return res, err
	}
	if err := e.Guard.AssertExclusive(ctx, tx, doc.SystemCode, lifecycle.Authoritative, doc.ID, prev.ID); err != nil {
		return res, err
	}

	doc.State = target
	doc.Version = ""
	e.touch(&doc, req.Actor)
	if err := e.Repo.SaveDocument(ctx, tx, &doc); err != nil {
		return res, domain.Storage("save document", err)
	}

	prev.State = domain.StateActive
	prev.Version = restored.VersionLabel
	e.touch(&prev, req.Actor)
	if err := e.Repo.SaveDocument(ctx, tx, &prev); err != nil {
		return res, domain.Storage("restore predecessor", err)
	}
	desc := fmt.Sprintf("Restored after revert of %s", doc.ID)
	if req.Comment != "" {
		desc += ": " + req.Comment
	}
	if err := e.Trail.Describe(ctx, tx, restored.ID, desc); err != nil {
		return res, domain.Storage("describe trail node", err)
	}
	restored.ChangeDescription = desc

	res.Document = doc
	res.Counterpart = &prev
	res.Node = &restored
	res.Head = &head
	return res, nil
}

func corruptIfMissing(err error, systemCode, reason string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.InvalidStateError{SystemCode: systemCode, Reason: reason, Corrupt: true}
	}
	return domain.Storage("load trail", err)
}
