package vectorstore

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// The persistent index only stores flat string-to-string metadata, so
// structured document attributes are flattened with a reversible,
// type-prefixed encoding and reconstructed on the way back out.
//
// Encoded form: "<kind>:<payload>" where kind is one of
//
//	s  string        ls  list of strings
//	i  int64         li  list of int64
//	f  float64       lf  list of float64
//	b  bool          lb  list of bool
//
// List payloads are "<count><sep><elem><sep><elem>..." joined with the
// ASCII unit separator. The count makes empty lists and empty string
// elements unambiguous.

// listSeparator delimits list elements in encoded metadata values.
const listSeparator = "\x1f"

// Codec errors.
var (
	// ErrUnsupportedShape is returned for attribute values the codec
	// cannot represent losslessly (nested maps, mixed-type lists,
	// unsupported scalar types, reserved keys).
	ErrUnsupportedShape = errors.New("unsupported attribute shape")

	// ErrDelimiterCollision is returned when a list element contains
	// the list separator. Storing it would corrupt the list on
	// reconstruction, so the codec refuses instead.
	ErrDelimiterCollision = errors.New("list element contains the list separator")

	// ErrMalformedValue is returned when a stored value cannot be
	// decoded. Only possible for index entries written outside the
	// codec.
	ErrMalformedValue = errors.New("malformed encoded metadata value")
)

// Flatten encodes structured attributes into the flat string map shape
// required by the storage layer. Every supported value round-trips
// through Reconstruct unchanged in value and type. Unsupported shapes
// fail before anything is stored.
func Flatten(attrs map[string]any) (map[string]string, error) {
	flat := make(map[string]string, len(attrs))
	for key, value := range attrs {
		if strings.HasPrefix(key, "_") {
			return nil, fmt.Errorf("%w: key %q uses the reserved underscore prefix", ErrUnsupportedShape, key)
		}
		encoded, err := encodeValue(value)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", key, err)
		}
		flat[key] = encoded
	}
	return flat, nil
}

// Reconstruct decodes a flat metadata map back into structured
// attributes. Underscore-prefixed keys are internal bookkeeping written
// by store implementations and are skipped.
func Reconstruct(flat map[string]string) (map[string]any, error) {
	attrs := make(map[string]any, len(flat))
	for key, value := range flat {
		if strings.HasPrefix(key, "_") {
			continue
		}
		decoded, err := decodeValue(value)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", key, err)
		}
		attrs[key] = decoded
	}
	return attrs, nil
}

// EncodeFilter encodes a scalar-valued filter with the same scheme as
// stored metadata so that equality predicates match encoded values.
func EncodeFilter(filter map[string]any) (map[string]string, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	flat := make(map[string]string, len(filter))
	for key, value := range filter {
		encoded, err := encodeScalar(value)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", key, err)
		}
		flat[key] = encoded
	}
	return flat, nil
}

func encodeValue(value any) (string, error) {
	switch v := value.(type) {
	case string, bool, int, int64, float64:
		return encodeScalar(v)
	case []string:
		elems := make([]string, len(v))
		copy(elems, v)
		return encodeList("ls", elems)
	case []int64:
		elems := make([]string, len(v))
		for i, n := range v {
			elems[i] = strconv.FormatInt(n, 10)
		}
		return encodeList("li", elems)
	case []float64:
		elems := make([]string, len(v))
		for i, f := range v {
			elems[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return encodeList("lf", elems)
	case []bool:
		elems := make([]string, len(v))
		for i, b := range v {
			elems[i] = strconv.FormatBool(b)
		}
		return encodeList("lb", elems)
	case map[string]any:
		return "", fmt.Errorf("%w: nested maps are not supported", ErrUnsupportedShape)
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedShape, value)
	}
}

func encodeScalar(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return encodeScalarString(v), nil
	case bool:
		return "b:" + strconv.FormatBool(v), nil
	case int:
		return "i:" + strconv.FormatInt(int64(v), 10), nil
	case int64:
		return "i:" + strconv.FormatInt(v, 10), nil
	case float64:
		return "f:" + strconv.FormatFloat(v, 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("%w: %T is not a supported scalar", ErrUnsupportedShape, value)
	}
}

func encodeScalarString(s string) string {
	return "s:" + s
}

func encodeList(kind string, elems []string) (string, error) {
	for _, e := range elems {
		if strings.Contains(e, listSeparator) {
			return "", ErrDelimiterCollision
		}
	}
	parts := append([]string{strconv.Itoa(len(elems))}, elems...)
	return kind + ":" + strings.Join(parts, listSeparator), nil
}

func decodeValue(encoded string) (any, error) {
	kind, payload, ok := strings.Cut(encoded, ":")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMalformedValue, encoded)
	}
	switch kind {
	case "s", "i", "f", "b":
		return decodeScalar(encoded)
	case "ls", "li", "lf", "lb":
		return decodeList(kind, payload)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformedValue, kind)
	}
}

func decodeScalar(encoded string) (any, error) {
	kind, payload, ok := strings.Cut(encoded, ":")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMalformedValue, encoded)
	}
	switch kind {
	case "s":
		return payload, nil
	case "i":
		n, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrMalformedValue, encoded)
		}
		return n, nil
	case "f":
		f, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrMalformedValue, encoded)
		}
		return f, nil
	case "b":
		b, err := strconv.ParseBool(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrMalformedValue, encoded)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: unknown scalar kind %q", ErrMalformedValue, kind)
	}
}

func decodeList(kind, payload string) (any, error) {
	parts := strings.Split(payload, listSeparator)
	count, err := strconv.Atoi(parts[0])
	if err != nil || count != len(parts)-1 {
		return nil, fmt.Errorf("%w: list payload %q", ErrMalformedValue, payload)
	}
	elems := parts[1:]

	switch kind {
	case "ls":
		out := make([]string, count)
		copy(out, elems)
		return out, nil
	case "li":
		out := make([]int64, count)
		for i, e := range elems {
			out[i], err = strconv.ParseInt(e, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: list element %q", ErrMalformedValue, e)
			}
		}
		return out, nil
	case "lf":
		out := make([]float64, count)
		for i, e := range elems {
			out[i], err = strconv.ParseFloat(e, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: list element %q", ErrMalformedValue, e)
			}
		}
		return out, nil
	case "lb":
		out := make([]bool, count)
		for i, e := range elems {
			out[i], err = strconv.ParseBool(e)
			if err != nil {
				return nil, fmt.Errorf("%w: list element %q", ErrMalformedValue, e)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown list kind %q", ErrMalformedValue, kind)
	}
}

// FilterKeys returns the keys of a filter in sorted order, for logging.
func FilterKeys(filter map[string]any) []string {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
