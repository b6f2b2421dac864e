package engine

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DecodeOptions turns a raw options document into Options. The legacy keys
// headers, skip_rows and delimiter are folded into the dialect first.
func DecodeOptions(raw map[string]interface{}) (Options, error) {
	var opts Options
	if len(raw) == 0 {
		return opts, nil
	}

	raw = convertLegacyOptions(raw)

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		WeaklyTypedInput: true,
		// unknown keys belong to other engines and are ignored
		ErrorUnused: false,
	})
	if err != nil {
		return opts, err
	}
	if err := decoder.Decode(raw); err != nil {
		return opts, fmt.Errorf("invalid validation options: %w", err)
	}
	return opts, nil
}

func convertLegacyOptions(raw map[string]interface{}) map[string]interface{} {
	headers, hasHeaders := truthy(raw["headers"])
	skipRows, hasSkipRows := raw["skip_rows"].([]interface{})
	delimiter, hasDelimiter := truthy(raw["delimiter"])
	if !hasHeaders && !(hasSkipRows && len(skipRows) > 0) && !hasDelimiter {
		return raw
	}

	out := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		out[k] = v
	}

	dialect := map[string]interface{}{}
	if existing, ok := raw["dialect"].(map[string]interface{}); ok {
		for k, v := range existing {
			dialect[k] = v
		}
	}

	if hasHeaders {
		dialect["header"] = true
		dialect["headerRows"] = []interface{}{headers}
		delete(out, "headers")
	}
	if hasSkipRows && len(skipRows) > 0 {
		if first, ok := truthy(skipRows[0]); ok {
			dialect["commentChar"] = fmt.Sprint(first)
			delete(out, "skip_rows")
		}
	}
	if hasDelimiter {
		csvDialect := map[string]interface{}{}
		if existing, ok := dialect["csv"].(map[string]interface{}); ok {
			for k, v := range existing {
				csvDialect[k] = v
			}
		}
		csvDialect["delimiter"] = fmt.Sprint(delimiter)
		dialect["csv"] = csvDialect
		delete(out, "delimiter")
	}

	out["dialect"] = dialect
	return out
}

// truthy mirrors the loose truth test used by option documents: missing,
// nil, false, zero and empty values are not set.
func truthy(v interface{}) (interface{}, bool) {
	switch val := v.(type) {
	case nil:
		return nil, false
	case bool:
		return val, val
	case string:
		return val, val != ""
	case float64:
		return val, val != 0
	case int:
		return val, val != 0
	case []interface{}:
		return val, len(val) > 0
	default:
		return val, true
	}
}
