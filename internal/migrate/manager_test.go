package migrate

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestSplitStatements(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  int
	}{
		{"empty", "", 0},
		{"single", "create table t(id int)", 1},
		{"two", "create table a(id int); create table b(id int);", 2},
		{"semicolon in string", "insert into t(v) values ('a;b'); select 1;", 2},
		{"trailing whitespace", "select 1;\n\n", 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := splitStatements(tc.input)
			if len(got) != tc.want {
				t.Fatalf("got %d statements, want %d: %q", len(got), tc.want, got)
			}
		})
	}
}

func TestUpAppliesPendingInOrder(t *testing.T) {
	files := fstest.MapFS{
		"sql/0002_sessions.up.sql": {Data: []byte("create table admin_sessions(id text);")},
		"sql/0001_init.up.sql":     {Data: []byte("create table members(id text);")},
	}
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("create table if not exists schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_init.up.sql"))

	// Only 0002 is pending.
	mock.ExpectBegin()
	mock.ExpectExec("create table admin_sessions").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("insert into schema_migrations").
		WithArgs("0002_sessions.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := NewManager(db, files).Up(context.Background()); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDownRequiresHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("create table if not exists schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	if err := NewManager(db, fstest.MapFS{}).Down(context.Background()); err == nil {
		t.Fatal("expected an error with no applied migrations")
	}
}
