package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapError(t *testing.T) {
	if got := MapError(sql.ErrNoRows); got != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", got)
	}
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "clients_pkey"}
	if got := MapError(fmt.Errorf("insert: %w", pgErr)); !errors.Is(got, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", got)
	}
	other := errors.New("boom")
	if got := MapError(other); got != other {
		t.Fatalf("expected passthrough, got %v", got)
	}
	if MapError(nil) != nil {
		t.Fatalf("expected nil")
	}
}

func TestLikeEscapes(t *testing.T) {
	if got := Like("50%_off"); got != `%50\%\_off%` {
		t.Fatalf("unexpected pattern %q", got)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	versions, err := Migrations()
	if err != nil {
		t.Fatalf("migrations: %v", err)
	}
	if len(versions) == 0 || !strings.HasSuffix(versions[0], ".up.sql") {
		t.Fatalf("expected embedded migrations, got %v", versions)
	}
}

func TestWithTx_NilDB(t *testing.T) {
	if err := WithTx(context.Background(), nil, nil, nil); err != ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
