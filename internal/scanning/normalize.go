package scanning

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// LineItem is a single purchased item on a receipt
type LineItem struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Receipt is the canonical structured record produced from a scanned receipt.
// Merchant, Date, Total, and Items are always present and well typed no
// matter how malformed the model output was; Items is never nil. Error is set
// only when normalization fell back to the canonical placeholder.
type Receipt struct {
	Merchant string     `json:"merchant"`
	Date     string     `json:"date"`
	Total    float64    `json:"total"`
	Subtotal *float64   `json:"subtotal,omitempty"`
	Tax      *float64   `json:"tax,omitempty"`
	Items    []LineItem `json:"items"`
	Error    string     `json:"error,omitempty"`
}

// Result is the outcome of normalizing a raw model response. Fallback is true
// when no JSON object could be recovered and Receipt holds the canonical
// placeholder, so callers can tell a hard fallback from a best-effort repair
// without sniffing the Error field.
type Result struct {
	Receipt  Receipt
	Fallback bool
}

// Defaults applied during field repair
const (
	defaultMerchant = "Unknown Merchant"
	defaultDate     = "Unknown Date"
	defaultItemName = "Unknown Item"
)

// The canonical fallback record, returned when nothing can be recovered
const (
	fallbackMerchant = "Unable to parse"
	fallbackDate     = "Unknown"
	fallbackReason   = "Failed to parse receipt data"
)

// Normalize turns a raw model response into a well-typed Receipt. It never
// fails: if the response is not JSON and contains no recoverable JSON object,
// the canonical fallback record is returned instead of an error.
func Normalize(raw string) Result {
	obj, ok := decodeObject(raw)
	if !ok {
		return Result{
			Receipt: Receipt{
				Merchant: fallbackMerchant,
				Date:     fallbackDate,
				Total:    0.0,
				Items:    []LineItem{},
				Error:    fallbackReason,
			},
			Fallback: true,
		}
	}
	return Result{Receipt: repairFields(obj)}
}

// decodeObject parses raw as JSON, falling back to extracting the first
// balanced JSON object when the full string does not parse.
func decodeObject(raw string) (map[string]interface{}, bool) {
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		sub, ok := extractObject(raw)
		if !ok {
			return nil, false
		}
		if err := json.Unmarshal([]byte(sub), &v); err != nil {
			return nil, false
		}
	}
	obj, ok := v.(map[string]interface{})
	return obj, ok
}

// extractObject returns the first complete JSON object embedded in s, found
// by balanced-brace counting. A greedy first-{ to last-} match can span
// multiple objects or capture trailing garbage, so braces are counted
// explicitly, ignoring any inside string literals.
func extractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// repairFields builds a Receipt from a parsed object, defaulting or coercing
// each field independently.
func repairFields(obj map[string]interface{}) Receipt {
	r := Receipt{
		Merchant: stringField(obj, "merchant", defaultMerchant),
		Date:     stringField(obj, "date", defaultDate),
		Items:    repairItems(obj["items"]),
	}
	r.Total, _ = coerceFloat(obj["total"])
	r.Subtotal = optionalFloat(obj, "subtotal")
	r.Tax = optionalFloat(obj, "tax")
	return r
}

func stringField(obj map[string]interface{}, key, def string) string {
	if s, ok := obj[key].(string); ok {
		return s
	}
	return def
}

// optionalFloat returns nil when the key is absent or null, keeping optional
// amounts out of the output instead of defaulting them to zero.
func optionalFloat(obj map[string]interface{}, key string) *float64 {
	v, present := obj[key]
	if !present || v == nil {
		return nil
	}
	f, _ := coerceFloat(v)
	return &f
}

// coerceFloat converts a decoded JSON value to a float64. Strings are
// accepted after stripping currency symbols and thousands separators, since
// models regularly quote amounts despite instructions not to.
func coerceFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		s := strings.TrimSpace(n)
		s = strings.Trim(s, "$€£¥ ")
		s = strings.ReplaceAll(s, ",", "")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0.0, false
		}
		return f, true
	default:
		return 0.0, false
	}
}

// repairItems rebuilds the item list, dropping entries that are not objects
// or have no name at all. Source order is preserved.
func repairItems(v interface{}) []LineItem {
	list, ok := v.([]interface{})
	if !ok {
		return []LineItem{}
	}

	items := make([]LineItem, 0, len(list))
	for _, entry := range list {
		obj, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		rawName, ok := obj["name"]
		if !ok {
			continue
		}
		name := coerceString(rawName)
		if name == "" {
			name = defaultItemName
		}
		price, _ := coerceFloat(obj["price"])
		items = append(items, LineItem{Name: name, Price: price})
	}
	return items
}

func coerceString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}
