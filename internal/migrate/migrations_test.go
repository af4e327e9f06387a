package migrate

import (
	"context"
	"testing"

	"reviewline/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	for i := 0; i < 2; i++ {
		if err := Migrate(ctx, conn); err != nil {
			t.Fatalf("migrate run %d: %v", i+1, err)
		}
	}
	v, err := Current(ctx, conn)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if want := migrations[len(migrations)-1].Version; v != want {
		t.Fatalf("expected version %d, got %d", want, v)
	}
	var n int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != len(migrations) {
		t.Fatalf("expected %d applied migrations, got %d", len(migrations), n)
	}
}

func TestSchemaRejectsUnknownState(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	_, err = conn.ExecContext(ctx, `INSERT INTO review_documents(id,system_code,state,created_at,last_modified_at) VALUES ('d1','SYS','CURRENT','t','t')`)
	if err == nil {
		t.Fatalf("expected CHECK constraint failure")
	}
}
