package benchmarks

import (
	"context"
	"fmt"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/arllen133/tablestore"
	"github.com/arllen133/tablestore/clause"
)

var benchColumns = tablestore.ColumnSpecs{
	{Name: "username", Type: "TEXT"},
	{Name: "email", Type: "TEXT"},
	{Name: "score", Type: "REAL"},
}

func setupBenchSession(b *testing.B) *tablestore.Session {
	b.Helper()

	driver := os.Getenv("TEST_DRIVER")
	dsn := os.Getenv("TEST_DSN")
	if driver == "" {
		driver = "sqlite3"
		dsn = ":memory:"
	}

	session, err := tablestore.Open(context.Background(), driver, dsn)
	if err != nil {
		b.Fatalf("Failed to open database: %v", err)
	}
	b.Cleanup(func() { _ = session.Close() })
	return session
}

func setupBenchRows(b *testing.B) *tablestore.RowStore {
	b.Helper()
	store := tablestore.NewRowStore(setupBenchSession(b))
	if _, err := store.CreateTable(context.Background(), "bench_rows", benchColumns); err != nil {
		b.Fatalf("Failed to create table: %v", err)
	}
	return store
}

func benchRow(i int) tablestore.Row {
	return tablestore.Row{
		{Column: "username", Value: tablestore.Text("bench")},
		{Column: "email", Value: tablestore.Text(fmt.Sprintf("bench%d@test.com", i))},
		{Column: "score", Value: tablestore.Real(float64(i) / 3)},
	}
}

func BenchmarkRowInsert(b *testing.B) {
	store := setupBenchRows(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := store.Insert(ctx, "bench_rows", benchRow(i)); err != nil {
			b.Fatalf("Insert failed: %v", err)
		}
	}
}

func BenchmarkRowInsertStrict(b *testing.B) {
	store := tablestore.NewRowStore(setupBenchSession(b), tablestore.WithColumnPolicy(tablestore.ColumnPolicyStrict))
	ctx := context.Background()
	if _, err := store.CreateTable(ctx, "bench_rows", benchColumns); err != nil {
		b.Fatalf("Failed to create table: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := store.Insert(ctx, "bench_rows", benchRow(i)); err != nil {
			b.Fatalf("Insert failed: %v", err)
		}
	}
}

// BenchmarkRowInsertParallel measures contention on the single shared connection.
func BenchmarkRowInsertParallel(b *testing.B) {
	store := setupBenchRows(b)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, err := store.Insert(ctx, "bench_rows", benchRow(i)); err != nil {
				b.Errorf("Insert failed: %v", err)
				return
			}
			i++
		}
	})
}

func BenchmarkSelectAll100(b *testing.B) {
	store := setupBenchRows(b)
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		if _, err := store.Insert(ctx, "bench_rows", benchRow(i)); err != nil {
			b.Fatalf("Insert failed: %v", err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rows, err := store.SelectAll(ctx, "bench_rows")
		if err != nil {
			b.Fatalf("SelectAll failed: %v", err)
		}
		if len(rows) != 100 {
			b.Fatalf("expected 100 rows, got %d", len(rows))
		}
	}
}

func BenchmarkUserCreateGet(b *testing.B) {
	users := tablestore.NewUserStore(setupBenchSession(b))
	ctx := context.Background()
	if err := users.EnsureSchema(ctx); err != nil {
		b.Fatalf("EnsureSchema failed: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		u, err := users.CreateUser(ctx, tablestore.User{Name: "bench", Email: "bench@test.com", Age: i % 100})
		if err != nil {
			b.Fatalf("CreateUser failed: %v", err)
		}
		if _, err := users.GetUser(ctx, u.ID); err != nil {
			b.Fatalf("GetUser failed: %v", err)
		}
	}
}

func BenchmarkParseIdent(b *testing.B) {
	names := []string{"users", "order_items", "Column_42", "bad name", "sqlite_master"}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = clause.ParseIdent(names[i%len(names)])
	}
}

func BenchmarkRowMarshalJSON(b *testing.B) {
	row := benchRow(7)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := row.MarshalJSON(); err != nil {
			b.Fatal(err)
		}
	}
}
