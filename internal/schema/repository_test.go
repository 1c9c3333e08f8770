package schema

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func schemaRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "is_nullable"}).
		AddRow("transactions", "accountnumber", "bigint", "NO").
		AddRow("transactions", "transactionamount", "numeric", "NO").
		AddRow("transactions", "merchantname", "text", "YES").
		AddRow("transactions", "isfraud", "boolean", "NO").
		AddRow("users", "id", "integer", "NO").
		AddRow("users", "username", "text", "NO")
}

func TestTablesGroupsColumnsByTable(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db, time.Minute)

	mock.ExpectQuery("information_schema").WillReturnRows(schemaRows())

	tables, err := repo.Tables(context.Background())
	if err != nil {
		t.Fatalf("Tables() error = %v", err)
	}
	if len(tables) != 2 {
		t.Fatalf("tables = %d, want 2", len(tables))
	}
	if tables[0].Name != "transactions" || len(tables[0].Columns) != 4 {
		t.Fatalf("first table = %+v", tables[0])
	}
	if tables[1].Name != "users" || len(tables[1].Columns) != 2 {
		t.Fatalf("second table = %+v", tables[1])
	}
	amount := tables[0].Columns[1]
	if amount.Name != "transactionamount" || amount.DataType != "numeric" || amount.Nullable {
		t.Fatalf("column = %+v", amount)
	}
	merchant := tables[0].Columns[2]
	if !merchant.Nullable {
		t.Fatalf("column = %+v, want nullable", merchant)
	}
	assertSQLMock(t, mock)
}

func TestTablesServesFromCache(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db, time.Minute)

	// One query expected for two lookups.
	mock.ExpectQuery("information_schema").WillReturnRows(schemaRows())

	if _, err := repo.Tables(context.Background()); err != nil {
		t.Fatalf("first Tables() error = %v", err)
	}
	tables, err := repo.Tables(context.Background())
	if err != nil {
		t.Fatalf("second Tables() error = %v", err)
	}
	if len(tables) != 2 {
		t.Fatalf("tables = %d, want 2", len(tables))
	}
	assertSQLMock(t, mock)
}

func TestInvalidateForcesReload(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db, time.Minute)

	mock.ExpectQuery("information_schema").WillReturnRows(schemaRows())
	mock.ExpectQuery("information_schema").WillReturnRows(schemaRows())

	if _, err := repo.Tables(context.Background()); err != nil {
		t.Fatalf("first Tables() error = %v", err)
	}
	repo.Invalidate()
	if _, err := repo.Tables(context.Background()); err != nil {
		t.Fatalf("second Tables() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestTablesPropagatesQueryError(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db, time.Minute)

	mock.ExpectQuery("information_schema").WillReturnError(sql.ErrConnDone)

	if _, err := repo.Tables(context.Background()); err == nil {
		t.Fatal("expected error from failed introspection")
	}
	assertSQLMock(t, mock)
}

func TestHealthCheckPingsDatabase(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	repo := NewRepository(db, time.Minute)

	mock.ExpectPing()
	if err := repo.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	if err := repo.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected error when ping fails")
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
