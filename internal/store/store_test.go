package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jefferyharrell/tagline-roster/internal/roster"
)

func TestBlockedErrorMessage(t *testing.T) {
	err := &BlockedError{Preview: &roster.ImportPreview{
		ValidationErrors: []string{"Row 2: missing email"},
		InvalidRoles:     []string{"wizard"},
	}}

	want := "preview blocked: 2 validation problem(s)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	// the attached preview is what callers surface to the operator
	if err.Preview == nil || !err.Preview.Blocked() {
		t.Error("preview must be attached and blocked")
	}
}

// ----------------------------------------------------------------------------
// Sync Transaction Tests
// ----------------------------------------------------------------------------

// fakeDB and fakeTx stand in for the pool so Sync's transaction handling can
// be exercised without a database. Unimplemented pgx.Tx / pgx.Rows methods
// come from the embedded interface and panic if reached.

type fakeDB struct {
	DB
	tx *fakeTx
}

func (f *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	return f.tx, nil
}

type fakeTx struct {
	pgx.Tx

	execs      []string // statements in execution order
	failMatch  string   // substring of the statement to fail on
	failOn     int      // 1-based occurrence of failMatch that fails
	matched    int
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	t.execs = append(t.execs, sql)
	if t.failMatch != "" && strings.Contains(sql, t.failMatch) {
		t.matched++
		if t.matched == t.failOn {
			return pgconn.CommandTag{}, errors.New("connection reset by peer")
		}
	}
	return pgconn.NewCommandTag("OK"), nil
}

func (t *fakeTx) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return emptyRows{}, nil
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}

type emptyRows struct {
	pgx.Rows
}

func (emptyRows) Close() {}

func (emptyRows) Err() error { return nil }

func (emptyRows) Next() bool { return false }

func (emptyRows) Scan(dest ...interface{}) error { return nil }

func (emptyRows) FieldDescriptions() []pgconn.FieldDescription { return nil }

func countExecs(tx *fakeTx, substr string) int {
	n := 0
	for _, sql := range tx.execs {
		if strings.Contains(sql, substr) {
			n++
		}
	}
	return n
}

func TestSyncRollsBackOnFailure(t *testing.T) {
	tx := &fakeTx{failMatch: "INSERT INTO users", failOn: 2}
	s := &Store{db: &fakeDB{tx: tx}}

	records := []roster.UserRecord{
		{Firstname: "Ada", Lastname: "Lovelace", Email: "ada@example.com"},
		{Firstname: "Grace", Lastname: "Hopper", Email: "grace@example.com"},
	}

	summary, err := s.Sync(context.Background(), records, "admin@example.com")
	if err == nil {
		t.Fatal("Sync() = nil error, want failure from second insert")
	}
	if summary != nil {
		t.Errorf("summary = %+v, want nil on failure", summary)
	}
	if !strings.Contains(err.Error(), "grace@example.com") {
		t.Errorf("err = %v, want the failing user's email", err)
	}

	if tx.committed {
		t.Error("transaction committed despite a failed statement")
	}
	if !tx.rolledBack {
		t.Error("transaction was not rolled back")
	}
}

func TestSyncCommits(t *testing.T) {
	tx := &fakeTx{}
	s := &Store{db: &fakeDB{tx: tx}}

	records := []roster.UserRecord{
		{Firstname: "Ada", Lastname: "Lovelace", Email: "ada@example.com"},
	}

	summary, err := s.Sync(context.Background(), records, "admin@example.com")
	if err != nil {
		t.Fatalf("Sync() error: %v", err)
	}
	if summary.UsersAdded != 1 || summary.UsersUpdated != 0 || summary.UsersDeactivated != 0 {
		t.Errorf("summary = %+v, want 1/0/0", summary)
	}

	if !tx.committed {
		t.Error("transaction was not committed")
	}
	if tx.rolledBack {
		t.Error("transaction rolled back on the success path")
	}
	if n := countExecs(tx, "INSERT INTO import_events"); n != 1 {
		t.Errorf("import event inserts = %d, want 1", n)
	}
}

func TestSyncBlockedWritesNothing(t *testing.T) {
	tx := &fakeTx{}
	s := &Store{db: &fakeDB{tx: tx}}

	// The fake role table is empty, so any role is unknown.
	records := []roster.UserRecord{
		{Firstname: "Ada", Lastname: "Lovelace", Email: "ada@example.com", Roles: []string{"member"}},
	}

	_, err := s.Sync(context.Background(), records, "admin@example.com")

	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("Sync() error = %v, want BlockedError", err)
	}
	if tx.committed {
		t.Error("blocked sync must not commit")
	}
	if len(tx.execs) != 0 {
		t.Errorf("blocked sync executed statements: %v", tx.execs)
	}
}
