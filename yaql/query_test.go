package yaql_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/jondavid-black/advanced-yaml/yamldoc"
	"github.com/jondavid-black/advanced-yaml/yaql"
	"github.com/jondavid-black/advanced-yaml/yasl"
)

const shopSchema = `
definitions:
  shop:
    enums:
      Category:
        - tools
        - toys
        - food
    types:
      Product:
        properties:
          sku:
            type: str
            unique: true
          name: str
          category: Category
          price: float
          stock: int
          weight: mass
          added: date
          discontinued:
            type: bool
            presence: optional
          notes:
            type: str
            presence: optional
`

const shopData = `
sku: P1
name: Hammer
category: tools
price: 19.99
stock: 50
weight: 600 g
added: 2024-01-10
---
sku: P2
name: Screwdriver
category: tools
price: 9.5
stock: 120
weight: 150 g
added: 2024-02-01
---
sku: P3
name: Teddy Bear
category: toys
price: 24
stock: 15
weight: 300 g
added: 2024-03-05
notes: soft
---
sku: P4
name: Chess Set
category: toys
price: 39.5
stock: 8
weight: 1.2 kg
added: 2024-01-20
discontinued: true
---
sku: P5
name: Olive Oil
category: food
price: 14
stock: 40
weight: 1 kg
added: 2024-04-02
---
sku: P6
name: Coffee
category: food
price: 11.25
stock: 0
weight: 250 g
added: 2024-05-11
`

func shopFixture(t *testing.T) (*yasl.Registry, *yasl.Store) {
	t.Helper()
	sdocs, err := yamldoc.Parse([]byte(shopSchema), "shop.yasl")
	if err != nil {
		t.Fatalf("parse schema: %v", err)
	}
	reg, err := yasl.LoadSchema(sdocs...)
	if err != nil {
		t.Fatalf("load schema: %v", err)
	}
	ddocs, err := yamldoc.Parse([]byte(shopData), "products.yaml")
	if err != nil {
		t.Fatalf("parse data: %v", err)
	}
	store, issues := yasl.LoadDocuments(context.Background(), ddocs, reg)
	if len(issues) != 0 {
		t.Fatalf("fixture data should load clean, got: %v", issues)
	}
	if store.Len() != 6 {
		t.Fatalf("expected 6 products, got %d", store.Len())
	}
	return reg, store
}

func runQuery(t *testing.T, reg *yasl.Registry, store *yasl.Store, q string) *yaql.Result {
	t.Helper()
	res, err := yaql.Run(q, reg, store)
	if err != nil {
		t.Fatalf("query %q: %v", q, err)
	}
	return res
}

// joined renders one column of a result for compact comparison.
func joined(res *yaql.Result, col int) string {
	parts := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		parts = append(parts, yaql.DisplayValue(row[col]))
	}
	return strings.Join(parts, ",")
}

func TestRun_FilterAndOrder(t *testing.T) {
	reg, store := shopFixture(t)
	res := runQuery(t, reg, store,
		"SELECT name, price FROM Product WHERE price > 20 ORDER BY price DESC")
	if got := strings.Join(res.Columns, ","); got != "name,price" {
		t.Fatalf("wrong columns: %s", got)
	}
	if got := joined(res, 0); got != "Chess Set,Teddy Bear" {
		t.Fatalf("wrong rows: %s", got)
	}
	if price, ok := res.Rows[0][1].(float64); !ok || price != 39.5 {
		t.Fatalf("expected float64 39.5, got %v (%T)", res.Rows[0][1], res.Rows[0][1])
	}
}

func TestRun_SelectStar(t *testing.T) {
	reg, store := shopFixture(t)
	res := runQuery(t, reg, store, "SELECT * FROM Product WHERE sku = 'P1'")
	want := "sku,name,category,price,stock,weight,added,discontinued,notes"
	if got := strings.Join(res.Columns, ","); got != want {
		t.Fatalf("star should project properties in declaration order, got: %s", got)
	}
	if res.Len() != 1 {
		t.Fatalf("expected one row, got %d", res.Len())
	}
	row := res.Rows[0]
	if row[7] != nil || row[8] != nil {
		t.Fatalf("absent optional fields should be nil cells, got %v and %v", row[7], row[8])
	}
	if got := yaql.DisplayValue(row[5]); got != "600 g" {
		t.Fatalf("weight should keep its source form, got %q", got)
	}
	if got := yaql.DisplayValue(row[6]); got != "2024-01-10" {
		t.Fatalf("date cell renders wrong: %q", got)
	}
}

func TestRun_QuantityComparison(t *testing.T) {
	reg, store := shopFixture(t)
	res := runQuery(t, reg, store, "SELECT sku FROM Product WHERE weight > '500 g'")
	if got := joined(res, 0); got != "P1,P4,P5" {
		t.Fatalf("quantity filter should convert units, got: %s", got)
	}
	res = runQuery(t, reg, store, "SELECT sku FROM Product WHERE weight <= '0.25 kg'")
	if got := joined(res, 0); got != "P2,P6" {
		t.Fatalf("expected P2,P6, got: %s", got)
	}
}

func TestRun_BooleanLogic(t *testing.T) {
	reg, store := shopFixture(t)
	res := runQuery(t, reg, store,
		"SELECT sku FROM Product WHERE category = 'tools' AND price < 10")
	if got := joined(res, 0); got != "P2" {
		t.Fatalf("expected P2, got: %s", got)
	}
	res = runQuery(t, reg, store,
		"SELECT sku FROM Product WHERE category = 'food' OR (category = 'tools' AND price < 10)")
	if got := joined(res, 0); got != "P2,P5,P6" {
		t.Fatalf("expected P2,P5,P6, got: %s", got)
	}
}

func TestRun_InLists(t *testing.T) {
	reg, store := shopFixture(t)
	res := runQuery(t, reg, store,
		"SELECT sku FROM Product WHERE category IN ('tools', 'toys')")
	if got := joined(res, 0); got != "P1,P2,P3,P4" {
		t.Fatalf("IN filter wrong: %s", got)
	}
	res = runQuery(t, reg, store,
		"SELECT sku FROM Product WHERE category NOT IN ('tools', 'toys')")
	if got := joined(res, 0); got != "P5,P6" {
		t.Fatalf("NOT IN filter wrong: %s", got)
	}
}

func TestRun_Like(t *testing.T) {
	reg, store := shopFixture(t)
	res := runQuery(t, reg, store, "SELECT name FROM Product WHERE name LIKE '%er%'")
	if got := joined(res, 0); got != "Hammer,Screwdriver" {
		t.Fatalf("LIKE %%er%% wrong: %s", got)
	}
	res = runQuery(t, reg, store, "SELECT name FROM Product WHERE name LIKE '_ammer'")
	if got := joined(res, 0); got != "Hammer" {
		t.Fatalf("underscore should match one character, got: %s", got)
	}
	res = runQuery(t, reg, store, "SELECT name FROM Product WHERE name LIKE '%HAMMER%'")
	if res.Len() != 0 {
		t.Fatalf("LIKE is case sensitive, got %d rows", res.Len())
	}
	res = runQuery(t, reg, store, "SELECT name FROM Product WHERE name NOT LIKE '%o%'")
	if res.Len() != 5 {
		t.Fatalf("expected 5 names without a lowercase o, got %d", res.Len())
	}
}

func TestRun_MissingFieldNeverMatches(t *testing.T) {
	reg, store := shopFixture(t)
	res := runQuery(t, reg, store, "SELECT sku FROM Product WHERE discontinued = true")
	if got := joined(res, 0); got != "P4" {
		t.Fatalf("expected P4, got: %s", got)
	}
	// != does not match records where the field is absent.
	res = runQuery(t, reg, store, "SELECT sku FROM Product WHERE discontinued != true")
	if res.Len() != 0 {
		t.Fatalf("absent fields should never satisfy a comparison, got %d rows", res.Len())
	}
	// NOT over a non-matching predicate does.
	res = runQuery(t, reg, store, "SELECT sku FROM Product WHERE NOT discontinued = true")
	if got := joined(res, 0); got != "P1,P2,P3,P5,P6" {
		t.Fatalf("expected all but P4, got: %s", got)
	}
}

func TestRun_DateFilterAndLimit(t *testing.T) {
	reg, store := shopFixture(t)
	res := runQuery(t, reg, store, "SELECT sku FROM Product WHERE added < '2024-02-15'")
	if got := joined(res, 0); got != "P1,P2,P4" {
		t.Fatalf("date filter wrong: %s", got)
	}
	res = runQuery(t, reg, store, "SELECT sku FROM Product ORDER BY added ASC LIMIT 2")
	if got := joined(res, 0); got != "P1,P4" {
		t.Fatalf("expected the two oldest products, got: %s", got)
	}
	res = runQuery(t, reg, store, "SELECT sku FROM Product LIMIT 0")
	if res.Len() != 0 {
		t.Fatalf("LIMIT 0 should return no rows, got %d", res.Len())
	}
}

func TestRun_GroupBy(t *testing.T) {
	reg, store := shopFixture(t)
	res := runQuery(t, reg, store,
		"SELECT category, count(*), sum(stock), min(price), max(price), avg(price) FROM Product GROUP BY category")
	want := "category,count(*),sum(stock),min(price),max(price),avg(price)"
	if got := strings.Join(res.Columns, ","); got != want {
		t.Fatalf("wrong columns: %s", got)
	}
	if got := joined(res, 0); got != "tools,toys,food" {
		t.Fatalf("groups should appear in first-occurrence order, got: %s", got)
	}
	type agg struct {
		count, sum     int64
		min, max, mean float64
	}
	wantRows := []agg{
		{2, 170, 9.5, 19.99, 14.745},
		{2, 23, 24, 39.5, 31.75},
		{2, 40, 11.25, 14, 12.625},
	}
	for i, w := range wantRows {
		row := res.Rows[i]
		if got := row[1].(int64); got != w.count {
			t.Fatalf("row %d count: expected %d, got %d", i, w.count, got)
		}
		if got := row[2].(int64); got != w.sum {
			t.Fatalf("row %d sum: expected %d, got %d", i, w.sum, got)
		}
		if got := row[3].(float64); got != w.min {
			t.Fatalf("row %d min: expected %v, got %v", i, w.min, got)
		}
		if got := row[4].(float64); got != w.max {
			t.Fatalf("row %d max: expected %v, got %v", i, w.max, got)
		}
		if got := row[5].(float64); math.Abs(got-w.mean) > 1e-9 {
			t.Fatalf("row %d avg: expected %v, got %v", i, w.mean, got)
		}
	}
}

func TestRun_GroupOrderBy(t *testing.T) {
	reg, store := shopFixture(t)
	res := runQuery(t, reg, store,
		"SELECT category, sum(stock) FROM Product GROUP BY category ORDER BY sum(stock) DESC")
	if got := joined(res, 0); got != "tools,food,toys" {
		t.Fatalf("expected groups ordered by aggregate, got: %s", got)
	}
	res = runQuery(t, reg, store,
		"SELECT category, count(*) FROM Product GROUP BY category ORDER BY category ASC")
	if got := joined(res, 0); got != "food,tools,toys" {
		t.Fatalf("expected groups ordered by key, got: %s", got)
	}
}

func TestRun_AggregatesOverEmptyInput(t *testing.T) {
	reg, store := shopFixture(t)
	res := runQuery(t, reg, store, "SELECT avg(price) FROM Product WHERE price > 1000")
	if res.Len() != 1 || res.Rows[0][0] != nil {
		t.Fatalf("avg over nothing should be one null cell, got %v", res.Rows)
	}
	res = runQuery(t, reg, store, "SELECT count(*), sum(stock) FROM Product WHERE price > 1000")
	if res.Len() != 1 {
		t.Fatalf("expected a single global group, got %d rows", res.Len())
	}
	if got := res.Rows[0][0].(int64); got != 0 {
		t.Fatalf("count over nothing should be 0, got %d", got)
	}
	if got := res.Rows[0][1].(int64); got != 0 {
		t.Fatalf("sum over nothing should be 0, got %d", got)
	}
}

func TestRun_CountFieldSkipsAbsent(t *testing.T) {
	reg, store := shopFixture(t)
	res := runQuery(t, reg, store, "SELECT count(notes), count(*) FROM Product")
	if got := res.Rows[0][0].(int64); got != 1 {
		t.Fatalf("count(notes) should skip absent fields, got %d", got)
	}
	if got := res.Rows[0][1].(int64); got != 6 {
		t.Fatalf("count(*) should include every record, got %d", got)
	}
}

func TestRun_MinMaxDates(t *testing.T) {
	reg, store := shopFixture(t)
	res := runQuery(t, reg, store, "SELECT min(added), max(added) FROM Product")
	if got := yaql.DisplayValue(res.Rows[0][0]); got != "2024-01-10" {
		t.Fatalf("min(added) wrong: %s", got)
	}
	if got := yaql.DisplayValue(res.Rows[0][1]); got != "2024-05-11" {
		t.Fatalf("max(added) wrong: %s", got)
	}
}

func TestRun_LowercaseAndQualifiedType(t *testing.T) {
	reg, store := shopFixture(t)
	res := runQuery(t, reg, store, "select sku from shop.Product where stock = 0")
	if got := joined(res, 0); got != "P6" {
		t.Fatalf("expected P6, got: %s", got)
	}
}

func TestPlan_ExecuteNilStore(t *testing.T) {
	reg, _ := shopFixture(t)
	plan, err := yaql.Compile("SELECT name FROM Product", reg)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	res, err := plan.Execute(nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Len() != 0 {
		t.Fatalf("empty store should yield no rows, got %d", res.Len())
	}
	if len(res.Columns) != 1 || res.Columns[0] != "name" {
		t.Fatalf("columns should survive an empty execution, got %v", res.Columns)
	}
}

func TestCompile_Errors(t *testing.T) {
	reg, _ := shopFixture(t)
	cases := []struct {
		query string
		want  string
	}{
		{"SELECT name FROM Widget", "unknown type Widget"},
		{"SELECT zzz FROM Product", `type shop.Product has no field "zzz"`},
		{"SELECT name FROM Product WHERE price = 'cheap'", `field "price" needs a number, found 'cheap'`},
		{"SELECT name FROM Product WHERE weight > '5 bananas'", `bad quantity for field "weight"`},
		{"SELECT name FROM Product WHERE price LIKE '%9%'", "LIKE needs a string-valued field"},
		{"SELECT name FROM Product WHERE category = tools", "expected a literal value"},
		{"SELECT name, count(*) FROM Product GROUP BY category", "must appear in GROUP BY"},
		{"SELECT * FROM Product GROUP BY category", "SELECT * cannot be combined with GROUP BY"},
		{"SELECT category, count(*) FROM Product GROUP BY category ORDER BY price", "must name a selected column"},
		{"SELECT name FROM Product ORDER BY count(*)", "ORDER BY count needs GROUP BY"},
		{"SELECT sum(name) FROM Product", "sum needs a numeric field"},
	}
	for _, c := range cases {
		_, err := yaql.Compile(c.query, reg)
		if err == nil {
			t.Fatalf("query %q should not compile", c.query)
		}
		var qe *yaql.QueryError
		if !errors.As(err, &qe) {
			t.Fatalf("query %q: expected QueryError, got %T", c.query, err)
		}
		if !strings.Contains(qe.Msg, c.want) {
			t.Fatalf("query %q: expected %q in error, got: %s", c.query, c.want, qe.Msg)
		}
	}

	_, err := yaql.Compile("SELECT name FROM Widget", reg)
	var qe *yaql.QueryError
	if !errors.As(err, &qe) || qe.Ident != "Widget" {
		t.Fatalf("error should carry the offending identifier, got %+v", qe)
	}
}

func TestResult_MarshalJSON(t *testing.T) {
	reg, store := shopFixture(t)
	res := runQuery(t, reg, store, "SELECT name, price FROM Product WHERE sku = 'P1'")
	data, err := res.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got := string(data); got != `[{"name":"Hammer","price":19.99}]` {
		t.Fatalf("wrong JSON: %s", got)
	}
	res = runQuery(t, reg, store, "SELECT added, weight FROM Product WHERE sku = 'P1'")
	data, err = res.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got := string(data); got != `[{"added":"2024-01-10","weight":"600 g"}]` {
		t.Fatalf("dates and quantities should keep their source text: %s", got)
	}
}

func TestDisplayValue(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"plain", "plain"},
		{true, "true"},
		{int64(42), "42"},
		{float64(2.5), "2.5"},
		{[]any{"a", int64(1)}, `["a",1]`},
	}
	for _, c := range cases {
		if got := yaql.DisplayValue(c.in); got != c.want {
			t.Fatalf("DisplayValue(%v): expected %q, got %q", c.in, c.want, got)
		}
	}
}
