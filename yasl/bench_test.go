package yasl_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/jondavid-black/advanced-yaml/yamldoc"
	"github.com/jondavid-black/advanced-yaml/yasl"
)

const inventorySchema = `
definitions:
  inv:
    types:
      Item:
        properties:
          sku:
            type: str
            unique: true
          count:
            type: int
            ge: 0
          weight: mass
          added: date
          state:
            type: str
            default: active
`

func benchRegistry(tb testing.TB) *yasl.Registry {
	tb.Helper()
	docs, err := yamldoc.Parse([]byte(inventorySchema), "inv.yasl")
	if err != nil {
		tb.Fatal(err)
	}
	reg, err := yasl.LoadSchema(docs...)
	if err != nil {
		tb.Fatal(err)
	}
	return reg
}

// generateItems returns a multi-document stream of n valid inv.Item records.
func generateItems(n int) []byte {
	var buf bytes.Buffer
	buf.Grow(n * 64)
	for i := 0; i < n; i++ {
		if i > 0 {
			buf.WriteString("---\n")
		}
		fmt.Fprintf(&buf, "sku: sku_%d\n", i)
		fmt.Fprintf(&buf, "count: %d\n", i%500)
		fmt.Fprintf(&buf, "weight: %d g\n", 100+i%900)
		buf.WriteString("added: 2024-03-05\n")
	}
	return buf.Bytes()
}

func Benchmark_LoadSchema(b *testing.B) {
	data := []byte(inventorySchema)
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		docs, err := yamldoc.Parse(data, "inv.yasl")
		if err != nil {
			b.Fatal(err)
		}
		if _, err := yasl.LoadSchema(docs...); err != nil {
			b.Fatal(err)
		}
	}
}

func Benchmark_LoadDocuments_Small(b *testing.B) { benchLoad(b, 10) }
func Benchmark_LoadDocuments_1k(b *testing.B)    { benchLoad(b, 1000) }

func benchLoad(b *testing.B, n int) {
	ctx := context.Background()
	reg := benchRegistry(b)
	data := generateItems(n)
	docs, err := yamldoc.Parse(data, "items.yaml")
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, iss := yasl.LoadDocuments(ctx, docs, reg)
		if iss.HasErrors() {
			b.Fatalf("bench data should load clean: %v", iss)
		}
	}
}
