// Package trail keeps the per-system audit trail: a TrailHead keyed by
// systemCode and a singly linked chain of TrailNodes from newest to oldest.
// All functions run inside the caller's transaction.
package trail

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"reviewline/internal/domain"
	"reviewline/internal/repo"
	"reviewline/internal/version"
)

// Trail reads and mutates audit trails through Repo. NewID defaults to uuid.
type Trail struct {
	Repo  repo.Repo
	NewID func() string
}

func (t Trail) newID() string {
	if t.NewID != nil {
		return t.NewID()
	}
	return uuid.NewString()
}

// Head returns the TrailHead for systemCode or domain.ErrNotFound.
func (t Trail) Head(ctx context.Context, tx *sql.Tx, systemCode string) (domain.TrailHead, error) {
	return t.Repo.GetTrailHead(ctx, tx, systemCode)
}

// CreateHead returns the existing head for systemCode, creating an empty one
// when none is stored yet.
func (t Trail) CreateHead(ctx context.Context, tx *sql.Tx, systemCode, now string) (domain.TrailHead, bool, error) {
	h, err := t.Repo.GetTrailHead(ctx, tx, systemCode)
	if err == nil {
		return h, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return h, false, err
	}
	h = domain.TrailHead{ID: systemCode, CreatedAt: now, LastModified: now}
	if err := t.Repo.UpsertTrailHead(ctx, tx, h); err != nil {
		return h, false, err
	}
	return h, true, nil
}

// Push prepends a node for documentID and advances the head to it.
func (t Trail) Push(ctx context.Context, tx *sql.Tx, h *domain.TrailHead, documentID, label, description, now string) (domain.TrailNode, error) {
	node := domain.TrailNode{
		ID:                t.newID(),
		SystemCode:        h.ID,
		ReviewDocumentID:  documentID,
		VersionLabel:      label,
		Timestamp:         now,
		ChangeDescription: description,
	}
	if h.Head != nil {
		prev := *h.Head
		node.Next = &prev
	}
	if err := t.Repo.InsertTrailNode(ctx, tx, node); err != nil {
		return node, err
	}
	h.PushHead(node, now)
	if err := t.Repo.UpsertTrailHead(ctx, tx, *h); err != nil {
		return node, err
	}
	return node, nil
}

// Pop removes the head node and returns it together with the node that is
// now the head. The popped node is deleted; it is never the tail.
func (t Trail) Pop(ctx context.Context, tx *sql.Tx, h *domain.TrailHead, now string) (popped, restored domain.TrailNode, err error) {
	if h.IsEmpty() {
		return popped, restored, &domain.InvalidStateError{SystemCode: h.ID, Reason: "No audit trail head found"}
	}
	popped, err = t.Repo.GetTrailNode(ctx, tx, *h.Head)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return popped, restored, &domain.InvalidStateError{SystemCode: h.ID, Reason: "Audit trail head points at a missing node", Corrupt: true}
		}
		return popped, restored, err
	}
	if popped.IsTail() || h.HasOnlyOneVersion() {
		return popped, restored, &domain.InvalidStateError{SystemCode: h.ID, Reason: "No previous version to revert to"}
	}
	restored, err = t.Repo.GetTrailNode(ctx, tx, *popped.Next)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return popped, restored, &domain.InvalidStateError{SystemCode: h.ID, Reason: "Previous audit trail node is missing", Corrupt: true}
		}
		return popped, restored, err
	}
	h.PopHead(restored.ID, now)
	if err := t.Repo.UpsertTrailHead(ctx, tx, *h); err != nil {
		return popped, restored, err
	}
	if err := t.Repo.DeleteTrailNode(ctx, tx, popped.ID); err != nil {
		return popped, restored, err
	}
	return popped, restored, nil
}

// Describe rewrites the change description of a node in place.
func (t Trail) Describe(ctx context.Context, tx *sql.Tx, nodeID, description string) error {
	return t.Repo.SetTrailNodeDescription(ctx, tx, nodeID, description)
}

// History walks the chain from head to tail. The walk stops with an
// InvalidStateError if it visits more nodes than the head claims, which
// guards against cycles in corrupted data.
func (t Trail) History(ctx context.Context, tx *sql.Tx, systemCode string) (domain.TrailHead, []domain.TrailNode, error) {
	h, err := t.Repo.GetTrailHead(ctx, tx, systemCode)
	if err != nil {
		return h, nil, err
	}
	var nodes []domain.TrailNode
	next := h.Head
	for next != nil {
		if len(nodes) >= h.NodeCount {
			return h, nodes, &domain.InvalidStateError{SystemCode: systemCode, Reason: fmt.Sprintf("Audit trail longer than node count %d", h.NodeCount), Corrupt: true}
		}
		n, err := t.Repo.GetTrailNode(ctx, tx, *next)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return h, nodes, &domain.InvalidStateError{SystemCode: systemCode, Reason: "Audit trail references a missing node", Corrupt: true}
			}
			return h, nodes, err
		}
		nodes = append(nodes, n)
		next = n.Next
	}
	return h, nodes, nil
}

// Verify checks that the stored chain matches its head: the walk reaches
// exactly NodeCount nodes, ends at Tail, version labels strictly decrease from
// head to tail, and no node of the system is orphaned.
func (t Trail) Verify(ctx context.Context, tx *sql.Tx, systemCode string) error {
	h, nodes, err := t.History(ctx, tx, systemCode)
	if err != nil {
		return err
	}
	corrupt := func(format string, args ...any) error {
		return &domain.InvalidStateError{SystemCode: systemCode, Reason: fmt.Sprintf(format, args...), Corrupt: true}
	}
	if len(nodes) != h.NodeCount {
		return corrupt("Audit trail has %d reachable nodes but node count %d", len(nodes), h.NodeCount)
	}
	if len(nodes) > 0 && (h.Tail == nil || *h.Tail != nodes[len(nodes)-1].ID) {
		return corrupt("Audit trail tail does not match the oldest node")
	}
	for i := 1; i < len(nodes); i++ {
		newer, older := nodes[i-1], nodes[i]
		c, err := version.Compare(newer.VersionLabel, older.VersionLabel)
		if err != nil {
			return corrupt("Audit trail node %s has an invalid version label: %v", newer.ID, err)
		}
		if c <= 0 {
			return corrupt("Audit trail node %s (%s) is not newer than %s (%s)", newer.ID, newer.VersionLabel, older.ID, older.VersionLabel)
		}
	}
	stored, err := t.Repo.CountTrailNodes(ctx, tx, systemCode)
	if err != nil {
		return err
	}
	if stored != h.NodeCount {
		return corrupt("Audit trail stores %d nodes but node count is %d", stored, h.NodeCount)
	}
	return nil
}
