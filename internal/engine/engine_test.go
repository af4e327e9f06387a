package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviewline/internal/config"
	"reviewline/internal/db"
	"reviewline/internal/domain"
	"reviewline/internal/engine"
	"reviewline/internal/metrics"
	"reviewline/internal/migrate"
)

type testEnv struct {
	Engine    engine.Engine
	Ctx       context.Context
	Workspace string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	return openTestEnv(t, dir)
}

func openTestEnv(t *testing.T, dir string) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default(), zerolog.Nop(), metrics.New())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: ctx, Workspace: dir}
}

func (env testEnv) draft(t *testing.T, id, systemCode string) domain.ReviewDocument {
	t.Helper()
	doc, err := env.Engine.CreateDraft(env.Ctx, engine.CreateOptions{
		ID:         id,
		SystemCode: systemCode,
		Payload:    json.RawMessage(`{"title":"` + id + `"}`),
		Actor:      "alice",
	})
	require.NoError(t, err)
	return doc
}

func (env testEnv) run(t *testing.T, id, op string) engine.TransitionResult {
	t.Helper()
	res, err := env.Engine.ExecuteTransition(env.Ctx, engine.TransitionRequest{DocumentID: id, Operation: op, Actor: "bob"})
	require.NoError(t, err, "%s on %s", op, id)
	return res
}

// activate drives a new document from DRAFT to ACTIVE.
func (env testEnv) activate(t *testing.T, id, systemCode string) engine.TransitionResult {
	t.Helper()
	env.draft(t, id, systemCode)
	env.run(t, id, "SUBMIT")
	env.run(t, id, "APPROVE")
	return env.run(t, id, "ACTIVATE")
}

func (env testEnv) doc(t *testing.T, id string) domain.ReviewDocument {
	t.Helper()
	d, err := env.Engine.GetDocument(env.Ctx, id)
	require.NoError(t, err)
	return d
}

func (env testEnv) nodeCount(t *testing.T, systemCode string) int {
	t.Helper()
	h, nodes, err := env.Engine.TrailHistory(env.Ctx, systemCode)
	require.NoError(t, err)
	require.Len(t, nodes, h.NodeCount)
	return h.NodeCount
}

func TestLifecycleScenarios(t *testing.T) {
	env := newTestEnv(t)

	// A: DRAFT -> SUBMITTED
	env.draft(t, "d1", "SYS-1")
	res := env.run(t, "d1", "SUBMIT")
	assert.Equal(t, domain.StateDraft, res.From)
	assert.Equal(t, domain.StateSubmitted, env.doc(t, "d1").State)

	// B: first activation creates the trail
	_, _, err := env.Engine.TrailHistory(env.Ctx, "SYS-1")
	require.ErrorIs(t, err, domain.ErrNotFound)
	env.run(t, "d1", "APPROVE")
	res = env.run(t, "d1", "ACTIVATE")
	assert.Nil(t, res.Counterpart)
	d1 := env.doc(t, "d1")
	assert.Equal(t, domain.StateActive, d1.State)
	assert.Equal(t, "v1.0.0", d1.Version)
	assert.Equal(t, 1, env.nodeCount(t, "SYS-1"))

	// C: a second activation supersedes the first
	res = env.activate(t, "d2", "SYS-1")
	require.NotNil(t, res.Counterpart)
	assert.Equal(t, "d1", res.Counterpart.ID)
	assert.Equal(t, domain.StateOutdated, env.doc(t, "d1").State)
	d2 := env.doc(t, "d2")
	assert.Equal(t, domain.StateActive, d2.State)
	assert.Equal(t, "v1.0.1", d2.Version)
	assert.Equal(t, 2, env.nodeCount(t, "SYS-1"))

	// D: revert restores the predecessor
	res = env.run(t, "d2", "UNAPPROVE")
	require.NotNil(t, res.Counterpart)
	assert.Equal(t, "d1", res.Counterpart.ID)
	d2 = env.doc(t, "d2")
	assert.Equal(t, domain.StateApproved, d2.State)
	assert.Empty(t, d2.Version)
	d1 = env.doc(t, "d1")
	assert.Equal(t, domain.StateActive, d1.State)
	assert.Equal(t, "v1.0.0", d1.Version)
	assert.Equal(t, 1, env.nodeCount(t, "SYS-1"))

	// E: nothing left to revert to
	_, err = env.Engine.ExecuteTransition(env.Ctx, engine.TransitionRequest{DocumentID: "d1", Operation: "UNAPPROVE", Actor: "bob"})
	var ise *domain.InvalidStateError
	require.ErrorAs(t, err, &ise)
	assert.False(t, ise.Corrupt)
	assert.Contains(t, err.Error(), "No previous version to revert to")
	assert.Equal(t, domain.StateActive, env.doc(t, "d1").State)
	assert.Equal(t, 1, env.nodeCount(t, "SYS-1"))
}

func TestActivateUnapproveRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t, "d1", "SYS-1")
	before := env.nodeCount(t, "SYS-1")
	d1Before := env.doc(t, "d1")

	env.draft(t, "d2", "SYS-1")
	env.run(t, "d2", "SUBMIT")
	env.run(t, "d2", "APPROVE")
	env.run(t, "d2", "ACTIVATE")
	env.run(t, "d2", "UNAPPROVE")

	assert.Equal(t, before, env.nodeCount(t, "SYS-1"))
	d1 := env.doc(t, "d1")
	assert.Equal(t, domain.StateActive, d1.State)
	assert.Equal(t, d1Before.Version, d1.Version)

	// activating again reuses the same label
	res := env.run(t, "d2", "ACTIVATE")
	assert.Equal(t, "v1.0.1", res.Document.Version)
	assert.Equal(t, 2, env.nodeCount(t, "SYS-1"))
}

func TestInvalidTransitionLeavesDocumentUnchanged(t *testing.T) {
	env := newTestEnv(t)
	env.draft(t, "d1", "SYS-1")
	env.run(t, "d1", "SUBMIT")
	before := env.doc(t, "d1")

	_, err := env.Engine.ExecuteTransition(env.Ctx, engine.TransitionRequest{DocumentID: "d1", Operation: "SUBMIT", Actor: "bob"})
	var te *domain.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, domain.StateSubmitted, te.Current)
	assert.Equal(t, domain.StateDraft, te.Required)
	assert.Equal(t, []string{"REMOVE_SUBMISSION", "APPROVE"}, te.Available)

	assert.Equal(t, before, env.doc(t, "d1"))
	_, _, err = env.Engine.TrailHistory(env.Ctx, "SYS-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGenericTransitions(t *testing.T) {
	env := newTestEnv(t)
	env.draft(t, "d1", "SYS-1")
	env.run(t, "d1", "submit")
	res := env.run(t, "d1", " remove_submission ")
	assert.Equal(t, domain.StateDraft, res.Document.State)
	assert.Equal(t, "bob", res.Document.LastModifiedBy)
	assert.Equal(t, "alice", res.Document.CreatedBy)
	assert.EqualValues(t, 3, res.Document.Revision)

	env.run(t, "d1", "SUBMIT")
	env.run(t, "d1", "APPROVE")
	env.run(t, "d1", "ACTIVATE")
	res = env.run(t, "d1", "MARK_OUTDATED")
	assert.Equal(t, domain.StateOutdated, res.Document.State)
	assert.Nil(t, res.Head)

	// the next activation must not touch the already outdated head document
	res = env.activate(t, "d2", "SYS-1")
	assert.Nil(t, res.Counterpart)
	assert.Equal(t, "v1.0.1", res.Document.Version)
	assert.Equal(t, domain.StateOutdated, env.doc(t, "d1").State)
}

func TestTransitionRequestValidation(t *testing.T) {
	env := newTestEnv(t)
	env.draft(t, "d1", "SYS-1")

	cases := []struct {
		name string
		req  engine.TransitionRequest
		want error
	}{
		{"unknown operation", engine.TransitionRequest{DocumentID: "d1", Operation: "PUBLISH", Actor: "bob"}, domain.ErrInvalidArgument},
		{"blank operation", engine.TransitionRequest{DocumentID: "d1", Operation: " ", Actor: "bob"}, domain.ErrInvalidArgument},
		{"blank document", engine.TransitionRequest{Operation: "SUBMIT", Actor: "bob"}, domain.ErrInvalidArgument},
		{"blank actor", engine.TransitionRequest{DocumentID: "d1", Operation: "SUBMIT"}, domain.ErrInvalidArgument},
		{"missing document", engine.TransitionRequest{DocumentID: "nope", Operation: "SUBMIT", Actor: "bob"}, domain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.Engine.ExecuteTransition(env.Ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Equal(t, domain.StateDraft, env.doc(t, "d1").State)
}

func TestCreateDraftExclusivity(t *testing.T) {
	env := newTestEnv(t)
	env.draft(t, "d1", "SYS-1")

	_, err := env.Engine.CreateDraft(env.Ctx, engine.CreateOptions{ID: "d2", SystemCode: "SYS-1", Actor: "alice"})
	var ee *domain.ExclusivityError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, []string{"d1"}, ee.ConflictingIDs)
	assert.Equal(t, []domain.DocumentState{domain.StateDraft}, ee.States)

	// other systems are unaffected
	env.draft(t, "x1", "SYS-2")

	_, err = env.Engine.CreateDraft(env.Ctx, engine.CreateOptions{SystemCode: " ", Actor: "alice"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = env.Engine.CreateDraft(env.Ctx, engine.CreateOptions{SystemCode: "SYS-3", Actor: "alice", Payload: json.RawMessage(`{`)})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestApproveRejectsSecondPreAuthoritativeDocument(t *testing.T) {
	env := newTestEnv(t)
	env.draft(t, "d1", "SYS-1")
	env.run(t, "d1", "SUBMIT")
	// bypass the engine to seed an inconsistent store
	require.NoError(t, env.Engine.Repo.InsertDocument(env.Ctx, nil, domain.ReviewDocument{
		ID: "stray", SystemCode: "SYS-1", State: domain.StateDraft, CreatedAt: "2024-01-01T00:00:00Z", LastModifiedAt: "2024-01-01T00:00:00Z",
	}))

	_, err := env.Engine.ExecuteTransition(env.Ctx, engine.TransitionRequest{DocumentID: "d1", Operation: "APPROVE", Actor: "bob"})
	var ee *domain.ExclusivityError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, []string{"stray"}, ee.ConflictingIDs)
	assert.Equal(t, domain.StateSubmitted, env.doc(t, "d1").State)
}

func TestActivateRejectsUntrackedActiveDocument(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.Engine.Repo.InsertDocument(env.Ctx, nil, domain.ReviewDocument{
		ID: "legacy", SystemCode: "SYS-1", State: domain.StateActive, Version: "v3.0.0", CreatedAt: "2024-01-01T00:00:00Z", LastModifiedAt: "2024-01-01T00:00:00Z",
	}))
	env.draft(t, "d1", "SYS-1")
	env.run(t, "d1", "SUBMIT")
	env.run(t, "d1", "APPROVE")

	_, err := env.Engine.ExecuteTransition(env.Ctx, engine.TransitionRequest{DocumentID: "d1", Operation: "ACTIVATE", Actor: "bob"})
	var ee *domain.ExclusivityError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, []domain.DocumentState{domain.StateActive}, ee.States)

	assert.Equal(t, domain.StateApproved, env.doc(t, "d1").State)
	_, _, err = env.Engine.TrailHistory(env.Ctx, "SYS-1")
	assert.ErrorIs(t, err, domain.ErrNotFound, "rolled back transaction must not leave a trail head")
}

func TestUnapproveWithoutTrail(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.Engine.Repo.InsertDocument(env.Ctx, nil, domain.ReviewDocument{
		ID: "legacy", SystemCode: "SYS-1", State: domain.StateActive, CreatedAt: "2024-01-01T00:00:00Z", LastModifiedAt: "2024-01-01T00:00:00Z",
	}))
	_, err := env.Engine.ExecuteTransition(env.Ctx, engine.TransitionRequest{DocumentID: "legacy", Operation: "UNAPPROVE", Actor: "bob"})
	var ise *domain.InvalidStateError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "No audit trail found for systemCode: SYS-1", err.Error())
}

func TestUnapproveOfNonHeadDocumentIsCorrupt(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t, "d1", "SYS-1")
	env.activate(t, "d2", "SYS-1")
	// force d1 back to ACTIVE behind the trail's back
	d1 := env.doc(t, "d1")
	d1.State = domain.StateActive
	require.NoError(t, env.Engine.Repo.SaveDocument(env.Ctx, nil, &d1))

	_, err := env.Engine.ExecuteTransition(env.Ctx, engine.TransitionRequest{DocumentID: "d1", Operation: "UNAPPROVE", Actor: "bob"})
	var ise *domain.InvalidStateError
	require.ErrorAs(t, err, &ise)
	assert.True(t, ise.Corrupt)
	assert.Equal(t, 2, env.nodeCount(t, "SYS-1"))
}

func TestTrailHistoryNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t, "d1", "SYS-1")
	env.activate(t, "d2", "SYS-1")
	env.activate(t, "d3", "SYS-1")

	h, nodes, err := env.Engine.TrailHistory(env.Ctx, "SYS-1")
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, nodes[0].ID, *h.Head)
	assert.Equal(t, nodes[2].ID, *h.Tail)
	assert.True(t, nodes[2].IsTail())

	var labels, docs []string
	for _, n := range nodes {
		labels = append(labels, n.VersionLabel)
		docs = append(docs, n.ReviewDocumentID)
	}
	assert.Equal(t, []string{"v1.0.2", "v1.0.1", "v1.0.0"}, labels)
	assert.Equal(t, []string{"d3", "d2", "d1"}, docs)
	assert.Equal(t, "Superseded by d3 (v1.0.2)", nodes[1].ChangeDescription)
	assert.Equal(t, "Activated by bob", nodes[0].ChangeDescription)

	active, err := env.Engine.ActiveBySystem(env.Ctx, "SYS-1")
	require.NoError(t, err)
	assert.Equal(t, "d3", active.ID)
	all, err := env.Engine.ListBySystem(env.Ctx, "SYS-1")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCreateFromActive(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateFromActive(env.Ctx, "SYS-1", "alice")
	require.ErrorIs(t, err, domain.ErrNotFound)

	env.activate(t, "d1", "SYS-1")
	fork, err := env.Engine.CreateFromActive(env.Ctx, "SYS-1", "carol")
	require.NoError(t, err)
	assert.Equal(t, domain.StateDraft, fork.State)
	assert.JSONEq(t, `{"title":"d1"}`, string(fork.Payload))
	assert.Equal(t, "carol", fork.CreatedBy)

	_, err = env.Engine.CreateFromActive(env.Ctx, "SYS-1", "carol")
	var ee *domain.ExclusivityError
	assert.ErrorAs(t, err, &ee)
}

func TestUpdateAndDeleteDraft(t *testing.T) {
	env := newTestEnv(t)
	env.draft(t, "d1", "SYS-1")
	doc, err := env.Engine.UpdateDraft(env.Ctx, "d1", json.RawMessage(`{"title":"changed"}`), "carol")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"changed"}`, string(env.doc(t, "d1").Payload))
	assert.EqualValues(t, 2, doc.Revision)

	env.run(t, "d1", "SUBMIT")
	_, err = env.Engine.UpdateDraft(env.Ctx, "d1", json.RawMessage(`{}`), "carol")
	var ise *domain.InvalidStateError
	require.ErrorAs(t, err, &ise)
	require.ErrorAs(t, env.Engine.DeleteDraft(env.Ctx, "d1", "carol"), &ise)

	env.run(t, "d1", "REMOVE_SUBMISSION")
	require.NoError(t, env.Engine.DeleteDraft(env.Ctx, "d1", "carol"))
	_, err = env.Engine.GetDocument(env.Ctx, "d1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	// the slot is free again
	env.draft(t, "d2", "SYS-1")
}

func TestDeleteDraftRequiresActor(t *testing.T) {
	env := newTestEnv(t)
	env.draft(t, "d1", "SYS-1")

	err := env.Engine.DeleteDraft(env.Ctx, "d1", "  ")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Equal(t, domain.StateDraft, env.doc(t, "d1").State)

	evs, err := env.Engine.RecentEvents(env.Ctx, 10, "SYS-1", "review.delete")
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func TestBlockedUnapproveRollsBackTrailPop(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t, "d1", "SYS-1")
	env.activate(t, "d2", "SYS-1")
	fork, err := env.Engine.CreateFromActive(env.Ctx, "SYS-1", "carol")
	require.NoError(t, err)

	_, err = env.Engine.ExecuteTransition(env.Ctx, engine.TransitionRequest{DocumentID: "d2", Operation: "UNAPPROVE", Actor: "bob"})
	var ee *domain.ExclusivityError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, []string{fork.ID}, ee.ConflictingIDs)
	assert.Equal(t, []domain.DocumentState{domain.StateDraft}, ee.States)

	d2 := env.doc(t, "d2")
	assert.Equal(t, domain.StateActive, d2.State)
	assert.Equal(t, "v1.0.1", d2.Version)
	assert.Equal(t, domain.StateOutdated, env.doc(t, "d1").State)
	assert.Equal(t, domain.StateDraft, env.doc(t, fork.ID).State)

	assert.Equal(t, 2, env.nodeCount(t, "SYS-1"))
	_, nodes, err := env.Engine.TrailHistory(env.Ctx, "SYS-1")
	require.NoError(t, err)
	assert.Equal(t, "d2", nodes[0].ReviewDocumentID)
	require.NoError(t, env.Engine.VerifyTrail(env.Ctx, "SYS-1"))
}

func TestEventsRecorded(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t, "d1", "SYS-1")
	env.draft(t, "x1", "SYS-2")

	evs, err := env.Engine.RecentEvents(env.Ctx, 10, "SYS-1", "")
	require.NoError(t, err)
	var types []string
	for _, ev := range evs {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{"review.activate", "review.approve", "review.submit", "review.create"}, types)

	evs, err = env.Engine.RecentEvents(env.Ctx, 1, "", "review.activate")
	require.NoError(t, err)
	require.Len(t, evs, 1)
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(evs[0].Payload), &payload))
	assert.Equal(t, "v1.0.0", payload["version"])
	assert.Equal(t, "APPROVED", payload["from"])
}

func TestMetricsRecorded(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t, "d1", "SYS-1")
	_, _ = env.Engine.ExecuteTransition(env.Ctx, engine.TransitionRequest{DocumentID: "d1", Operation: "SUBMIT", Actor: "bob"})

	m := env.Engine.Metrics
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("ACTIVATE", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("SUBMIT", domain.KindTransition)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TrailNodes.WithLabelValues("SYS-1")))
}

func TestConcurrentActivateNeverYieldsTwoActive(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t, "d1", "SYS-1")
	env.draft(t, "d2", "SYS-1")
	env.run(t, "d2", "SUBMIT")
	env.run(t, "d2", "APPROVE")

	// a second engine on the same workspace shares only the database
	other := openTestEnv(t, env.Workspace)
	engines := []engine.Engine{env.Engine, other.Engine}

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engines[i%2].ExecuteTransition(env.Ctx, engine.TransitionRequest{DocumentID: "d2", Operation: "ACTIVATE", Actor: "bob"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var te *domain.TransitionError
		var ee *domain.ExclusivityError
		if !errors.As(err, &te) && !errors.As(err, &ee) && !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)

	active, err := env.Engine.Repo.FindBySystemAndStates(env.Ctx, nil, "SYS-1", []domain.DocumentState{domain.StateActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "d2", active[0].ID)
	assert.Equal(t, 2, env.nodeCount(t, "SYS-1"))
}

func TestConcurrentActivateAndUnapprove(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t, "d1", "SYS-1")
	env.activate(t, "d2", "SYS-1")

	var wg sync.WaitGroup
	for _, op := range []string{"UNAPPROVE", "MARK_OUTDATED", "UNAPPROVE"} {
		wg.Add(1)
		go func(op string) {
			defer wg.Done()
			_, _ = env.Engine.ExecuteTransition(env.Ctx, engine.TransitionRequest{DocumentID: "d2", Operation: op, Actor: "bob"})
		}(op)
	}
	wg.Wait()

	active, err := env.Engine.Repo.FindBySystemAndStates(env.Ctx, nil, "SYS-1", []domain.DocumentState{domain.StateActive})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(active), 1)
	h, nodes, err := env.Engine.TrailHistory(env.Ctx, "SYS-1")
	require.NoError(t, err)
	assert.Len(t, nodes, h.NodeCount)
	if len(active) == 1 {
		assert.Equal(t, active[0].ID, nodes[0].ReviewDocumentID)
	}
}

func TestVerifyTrail(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t, "d1", "SYS-1")
	env.activate(t, "d2", "SYS-1")
	env.run(t, "d2", "UNAPPROVE")
	require.NoError(t, env.Engine.VerifyTrail(env.Ctx, "SYS-1"))
	assert.ErrorIs(t, env.Engine.VerifyTrail(env.Ctx, "SYS-9"), domain.ErrNotFound)
}
