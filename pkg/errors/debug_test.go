package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestDumpExtractsPgxDetail(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "orders_number_key", TableName: "orders"}
	err := Wrap(CodeConflict, fmt.Errorf("insert: %w", pgErr), "order exists")

	d := Dump(err)
	if d.Code != CodeConflict {
		t.Fatalf("expected conflict code, got %q", d.Code)
	}
	if d.Postgres == nil || d.Postgres.Constraint != "orders_number_key" || d.Postgres.Code != "23505" {
		t.Fatalf("unexpected postgres detail %+v", d.Postgres)
	}
	if len(d.Chain) < 2 {
		t.Fatalf("expected chain through wrapped errors, got %v", d.Chain)
	}

	fields := d.Fields()
	if fields["pg_table"] != "orders" || fields["error_code"] != CodeConflict {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestDumpExtractsPqDetail(t *testing.T) {
	d := Dump(&pq.Error{Code: "40001", Table: "inventory_records"})
	if d.Postgres == nil || d.Postgres.Code != "40001" || d.Postgres.Table != "inventory_records" {
		t.Fatalf("unexpected postgres detail %+v", d.Postgres)
	}
	if _, ok := d.Fields()["error_code"]; ok {
		t.Fatalf("untyped error should not carry an error_code field")
	}
}

func TestDumpNil(t *testing.T) {
	if d := Dump(nil); d.Message != "" || d.Postgres != nil {
		t.Fatalf("expected empty dump, got %+v", d)
	}
}
