package customer

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ID is the stable row identity of a customer. Backends send it either as a
// JSON number or as a string; it is kept in its canonical string form.
type ID string

func (id ID) String() string {
	return string(id)
}

// Int reports the id as an integer when it is a plain decimal integer.
func (id ID) Int() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// MarshalJSON writes integer ids as JSON numbers and everything else as strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if n, ok := id.Int(); ok {
		return strconv.AppendInt(nil, n, 10), nil
	}
	return json.Marshal(string(id))
}

func (id *ID) UnmarshalJSON(b []byte) error {
	var raw any
	dec := json.NewDecoder(strings.NewReader(string(b)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, ok := IDFromValue(raw)
	if !ok {
		return fmt.Errorf("invalid customer id %s", strings.TrimSpace(string(b)))
	}
	*id = parsed
	return nil
}

// IDFromValue converts a decoded JSON (or SQL) scalar into an ID. Booleans,
// nulls, empty strings and containers are not valid ids.
func IDFromValue(v any) (ID, bool) {
	switch x := v.(type) {
	case ID:
		return x, x != ""
	case string:
		x = strings.TrimSpace(x)
		return ID(x), x != ""
	case []byte:
		return IDFromValue(string(x))
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return ID(strconv.FormatInt(n, 10)), true
		}
		f, err := x.Float64()
		if err != nil {
			return "", false
		}
		return idFromFloat(f)
	case float64:
		return idFromFloat(x)
	case float32:
		return idFromFloat(float64(x))
	case int:
		return ID(strconv.Itoa(x)), true
	case int32:
		return ID(strconv.FormatInt(int64(x), 10)), true
	case int64:
		return ID(strconv.FormatInt(x, 10)), true
	case uint64:
		return ID(strconv.FormatUint(x, 10)), true
	default:
		return "", false
	}
}

func idFromFloat(f float64) (ID, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return ID(strconv.FormatInt(int64(f), 10)), true
	}
	return ID(strconv.FormatFloat(f, 'f', -1, 64)), true
}

// ParseIDs converts raw strings (CLI args, query values) into ids, dropping blanks.
func ParseIDs(raw []string) []ID {
	out := make([]ID, 0, len(raw))
	for _, r := range raw {
		for _, part := range strings.Split(r, ",") {
			if id, ok := IDFromValue(part); ok {
				out = append(out, id)
			}
		}
	}
	return out
}
