// Copyright (c) 2025 Querygate Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package normalize

import (
	"database/sql/driver"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TimeLayout is the ISO-8601 form used for every timestamp.
const TimeLayout = time.RFC3339Nano

// Value converts v into a portable value: string, int64, float64, bool, nil,
// Record or []any. The conversion is total and idempotent.
func Value(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case bool:
		return x
	case int64:
		return x
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return floatString(x)
		}
		return x
	case Record:
		out := make(Record, len(x))
		for i, f := range x {
			out[i] = Field{Name: f.Name, Value: Value(f.Value)}
		}
		return out
	case []any:
		return sliceOf(len(x), func(i int) any { return x[i] })

	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return unsigned(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return unsigned(x)
	case float32:
		return Value(float64(x))
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return Value(f)
		}
		return x.String()

	case time.Time:
		return x.UTC().Format(TimeLayout)
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC().Format(TimeLayout)

	case primitive.ObjectID:
		return x.Hex()
	case primitive.DateTime:
		return x.Time().UTC().Format(TimeLayout)
	case primitive.Timestamp:
		return time.Unix(int64(x.T), 0).UTC().Format(TimeLayout)
	case primitive.Decimal128:
		return x.String()
	case primitive.Binary:
		if (x.Subtype == 0x04 || x.Subtype == 0x03) && len(x.Data) == 16 {
			if id, err := uuid.FromBytes(x.Data); err == nil {
				return id.String()
			}
		}
		return base64.StdEncoding.EncodeToString(x.Data)
	case primitive.Regex:
		return x.String()
	case primitive.JavaScript:
		return string(x)
	case primitive.Symbol:
		return string(x)
	case primitive.CodeWithScope:
		return string(x.Code)
	case primitive.DBPointer:
		return x.String()
	case primitive.Null, primitive.Undefined:
		return nil
	case primitive.MinKey:
		return "MinKey"
	case primitive.MaxKey:
		return "MaxKey"
	case primitive.D:
		out := make(Record, len(x))
		for i, e := range x {
			out[i] = Field{Name: e.Key, Value: Value(e.Value)}
		}
		return out
	case primitive.E:
		return Record{{Name: x.Key, Value: Value(x.Value)}}
	case primitive.M:
		return fromMap(x)
	case primitive.A:
		return sliceOf(len(x), func(i int) any { return x[i] })
	case map[string]any:
		return fromMap(x)

	case [16]byte:
		return uuid.UUID(x).String()
	case uuid.UUID:
		return x.String()
	case []byte:
		if utf8.Valid(x) {
			return string(x)
		}
		return fmt.Sprintf("\\x%x", x)
	case pgtype.Numeric:
		if !x.Valid {
			return nil
		}
		if x.NaN {
			return "NaN"
		}
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return Value(f.Float64)
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return fmt.Sprint(x)
		}
		if _, again := dv.(driver.Valuer); again {
			return fmt.Sprint(dv)
		}
		return Value(dv)
	case fmt.Stringer:
		return x.String()
	case error:
		return x.Error()
	}
	return reflectValue(reflect.ValueOf(v))
}

func reflectValue(rv reflect.Value) any {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Value(rv.Elem().Interface())
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return fmt.Sprint(rv.Interface())
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return fromMap(m)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		return sliceOf(rv.Len(), func(i int) any { return rv.Index(i).Interface() })
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return unsigned(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return Value(rv.Float())
	}
	return fmt.Sprint(rv.Interface())
}

func fromMap(m map[string]any) Record {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(Record, len(keys))
	for i, k := range keys {
		out[i] = Field{Name: k, Value: Value(m[k])}
	}
	return out
}

func sliceOf(n int, at func(int) any) []any {
	out := make([]any, n)
	for i := 0; i < n; i++ {
		out[i] = Value(at(i))
	}
	return out
}

func unsigned(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

func floatString(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "+Inf"
	}
	return "-Inf"
}
