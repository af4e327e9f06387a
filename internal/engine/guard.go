package engine

import (
	"context"
	"database/sql"

	"reviewline/internal/domain"
	"reviewline/internal/lifecycle"
	"reviewline/internal/repo"
)

// Guard enforces at most one document per system in each exclusivity class.
type Guard struct {
	Repo repo.Repo
}

// AssertExclusive fails with an ExclusivityError if any document of
// systemCode, other than those in excludeIDs, holds a state of class.
func (g Guard) AssertExclusive(ctx context.Context, tx *sql.Tx, systemCode string, class lifecycle.Class, excludeIDs ...string) error {
	docs, err := g.Repo.FindBySystemAndStates(ctx, tx, systemCode, lifecycle.ConflictSet(class))
	if err != nil {
		return domain.Storage("find conflicting documents", err)
	}
	skip := make(map[string]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		skip[id] = true
	}
	var conflict domain.ExclusivityError
	seen := map[domain.DocumentState]bool{}
	for _, d := range docs {
		if skip[d.ID] {
			continue
		}
		conflict.ConflictingIDs = append(conflict.ConflictingIDs, d.ID)
		if !seen[d.State] {
			seen[d.State] = true
			conflict.States = append(conflict.States, d.State)
		}
	}
	if len(conflict.ConflictingIDs) == 0 {
		return nil
	}
	conflict.SystemCode = systemCode
	return &conflict
}
