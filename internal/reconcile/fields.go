package reconcile

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// BusinessOffset is the fixed UTC-5 offset used for date-only strings.
const BusinessOffset = -5 * time.Hour

// DayLayout is the ISO calendar day used as the ledger key.
const DayLayout = "2006-01-02"

// field fetches a value by dotted path; numeric segments index into slices.
func field(fields map[string]any, path string) any {
	var cur any = fields
	for _, part := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			cur = node[part]
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil
			}
			cur = node[idx]
		default:
			return nil
		}
	}
	return cur
}

// text turns a loosely typed label into a string. Objects contribute their
// name, value or label, which is how selectors store picked options.
func text(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case map[string]any:
		for _, key := range []string{"name", "value", "label"} {
			if s, ok := val[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func isTrue(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return strings.EqualFold(strings.TrimSpace(val), "true")
	}
	return false
}

func list(v any) []any {
	items, _ := v.([]any)
	return items
}

// present reports a non-empty scalar, used for table numbers and addresses.
func present(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(val) != ""
	case bool:
		return val
	case float64:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	case json.Number:
		return val.String() != "" && val.String() != "0"
	case map[string]any:
		return len(val) > 0
	}
	return true
}

// timeValue decodes the timestamp shapes found in the collections: native
// times, RFC 3339 strings, epoch milliseconds and {seconds, nanoseconds}
// objects exported from the document store.
func timeValue(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, !val.IsZero()
	case *time.Time:
		if val == nil || val.IsZero() {
			return time.Time{}, false
		}
		return *val, true
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		return dateOnly(s)
	case float64:
		if val <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(val)), true
	case int64:
		if val <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(val), true
	case map[string]any:
		secs, ok := val["seconds"]
		if !ok {
			secs, ok = val["_seconds"]
		}
		if !ok {
			return time.Time{}, false
		}
		nanos := val["nanoseconds"]
		if nanos == nil {
			nanos = val["_nanoseconds"]
		}
		sec := Amount(secs)
		if sec <= 0 {
			return time.Time{}, false
		}
		return time.Unix(sec, Amount(nanos)), true
	}
	return time.Time{}, false
}

// dateOnly reads YYYY-MM-DD at midday business time so that converting to the
// business zone never shifts it to a neighbouring day.
func dateOnly(s string) (time.Time, bool) {
	day, err := time.Parse(DayLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	zone := time.FixedZone("COT", int(BusinessOffset/time.Second))
	return time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, zone), true
}

// CreatedAt returns when an order was placed, checking createdAt, timestamp
// and date in that order.
func CreatedAt(fields map[string]any) (time.Time, bool) {
	for _, key := range []string{"createdAt", "timestamp", "date"} {
		if t, ok := timeValue(fields[key]); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// DayOf formats t as the business-local ledger day.
func DayOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.FixedZone("COT", int(BusinessOffset/time.Second))
	}
	return t.In(loc).Format(DayLayout)
}
