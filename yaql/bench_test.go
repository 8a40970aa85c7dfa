package yaql_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/jondavid-black/advanced-yaml/yamldoc"
	"github.com/jondavid-black/advanced-yaml/yaql"
	"github.com/jondavid-black/advanced-yaml/yasl"
)

// benchFixture loads n generated products for query benchmarks.
func benchFixture(tb testing.TB, n int) (*yasl.Registry, *yasl.Store) {
	tb.Helper()
	sdocs, err := yamldoc.Parse([]byte(shopSchema), "shop.yasl")
	if err != nil {
		tb.Fatal(err)
	}
	reg, err := yasl.LoadSchema(sdocs...)
	if err != nil {
		tb.Fatal(err)
	}
	cats := []string{"tools", "toys", "food"}
	var buf bytes.Buffer
	buf.Grow(n * 96)
	for i := 0; i < n; i++ {
		if i > 0 {
			buf.WriteString("---\n")
		}
		fmt.Fprintf(&buf, "sku: P%d\n", i)
		fmt.Fprintf(&buf, "name: Item %d\n", i)
		fmt.Fprintf(&buf, "category: %s\n", cats[i%len(cats)])
		fmt.Fprintf(&buf, "price: %d.25\n", i%80)
		fmt.Fprintf(&buf, "stock: %d\n", i%500)
		fmt.Fprintf(&buf, "weight: %d g\n", 100+i%900)
		buf.WriteString("added: 2024-03-05\n")
	}
	docs, err := yamldoc.Parse(buf.Bytes(), "bench.yaml")
	if err != nil {
		tb.Fatal(err)
	}
	store, iss := yasl.LoadDocuments(context.Background(), docs, reg)
	if iss.HasErrors() {
		tb.Fatalf("bench data should load clean: %v", iss)
	}
	return reg, store
}

const benchQuery = "SELECT name, price FROM Product WHERE category = 'tools' AND price > 10 ORDER BY price DESC LIMIT 10"

func Benchmark_Compile(b *testing.B) {
	reg, _ := benchFixture(b, 1)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := yaql.Compile(benchQuery, reg); err != nil {
			b.Fatal(err)
		}
	}
}

func Benchmark_Execute_Filter_1k(b *testing.B) {
	reg, store := benchFixture(b, 1000)
	plan, err := yaql.Compile(benchQuery, reg)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := plan.Execute(store); err != nil {
			b.Fatal(err)
		}
	}
}

func Benchmark_Execute_GroupBy_1k(b *testing.B) {
	reg, store := benchFixture(b, 1000)
	plan, err := yaql.Compile("SELECT category, count(*), avg(price), max(weight) FROM Product GROUP BY category", reg)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := plan.Execute(store); err != nil {
			b.Fatal(err)
		}
	}
}
