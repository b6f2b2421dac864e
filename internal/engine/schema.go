package engine

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
)

var errCast = errors.New("cast failed")

var knownTypes = map[string]struct{}{
	"string": {}, "number": {}, "integer": {}, "boolean": {}, "object": {},
	"array": {}, "date": {}, "time": {}, "datetime": {}, "year": {},
	"yearmonth": {}, "duration": {}, "geopoint": {}, "geojson": {}, "any": {},
}

var (
	defaultMissingValues = []string{""}
	defaultTrueValues    = []string{"true", "True", "TRUE", "1"}
	defaultFalseValues   = []string{"false", "False", "FALSE", "0"}

	durationPattern = regexp.MustCompile(`^P(\d+Y)?(\d+M)?(\d+W)?(\d+D)?(T(\d+H)?(\d+M)?(\d+(\.\d+)?S)?)?$`)
	yearPattern     = regexp.MustCompile(`^\d{4}$`)
)

type Constraints struct {
	Required  bool          `mapstructure:"required"`
	Unique    bool          `mapstructure:"unique"`
	Enum      []interface{} `mapstructure:"enum"`
	Pattern   string        `mapstructure:"pattern"`
	MinLength *int          `mapstructure:"minLength"`
	MaxLength *int          `mapstructure:"maxLength"`
	Minimum   interface{}   `mapstructure:"minimum"`
	Maximum   interface{}   `mapstructure:"maximum"`
}

type Field struct {
	Name        string      `mapstructure:"name"`
	Type        string      `mapstructure:"type"`
	Format      string      `mapstructure:"format"`
	TrueValues  []string    `mapstructure:"trueValues"`
	FalseValues []string    `mapstructure:"falseValues"`
	DecimalChar string      `mapstructure:"decimalChar"`
	GroupChar   string      `mapstructure:"groupChar"`
	BareNumber  *bool       `mapstructure:"bareNumber"`
	Constraints Constraints `mapstructure:"constraints"`

	pattern *regexp.Regexp
	minimum interface{}
	maximum interface{}
	enum    map[string]struct{}
}

// Schema is a Table Schema descriptor.
type Schema struct {
	Fields        []Field     `mapstructure:"fields"`
	MissingValues []string    `mapstructure:"missingValues"`
	PrimaryKey    interface{} `mapstructure:"primaryKey"`

	primaryKey []int
}

// ParseSchema decodes and checks a Table Schema descriptor.
func ParseSchema(raw map[string]interface{}) (*Schema, error) {
	var s Schema
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &s,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, err
	}
	if s.MissingValues == nil {
		s.MissingValues = defaultMissingValues
	}

	names := make(map[string]int, len(s.Fields))
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Name == "" {
			return nil, fmt.Errorf("field at position %d has no name", i+1)
		}
		if f.Type == "" {
			f.Type = "string"
		}
		if _, ok := knownTypes[f.Type]; !ok {
			return nil, fmt.Errorf("field %q has unsupported type %q", f.Name, f.Type)
		}
		if f.Format == "" {
			f.Format = "default"
		}
		if err := f.prepare(); err != nil {
			return nil, err
		}
		names[f.Name] = i
	}

	var keys []string
	switch pk := s.PrimaryKey.(type) {
	case nil:
	case string:
		keys = []string{pk}
	case []interface{}:
		for _, k := range pk {
			keys = append(keys, fmt.Sprint(k))
		}
	default:
		return nil, fmt.Errorf("primaryKey must be a string or a list of strings")
	}
	for _, k := range keys {
		idx, ok := names[k]
		if !ok {
			return nil, fmt.Errorf("primaryKey field %q is not in the schema", k)
		}
		s.primaryKey = append(s.primaryKey, idx)
	}

	return &s, nil
}

func (s *Schema) FieldNames() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

func (s *Schema) isMissing(value string) bool {
	for _, mv := range s.MissingValues {
		if value == mv {
			return true
		}
	}
	return false
}

func (f *Field) prepare() error {
	if f.TrueValues == nil {
		f.TrueValues = defaultTrueValues
	}
	if f.FalseValues == nil {
		f.FalseValues = defaultFalseValues
	}
	if f.DecimalChar == "" {
		f.DecimalChar = "."
	}

	c := f.Constraints
	if c.Pattern != "" {
		re, err := regexp.Compile("^(?:" + c.Pattern + ")$")
		if err != nil {
			return fmt.Errorf("field %q has invalid pattern: %v", f.Name, err)
		}
		f.pattern = re
	}
	if c.Minimum != nil {
		v, err := f.Cast(fmt.Sprint(c.Minimum))
		if err != nil {
			return fmt.Errorf("field %q has invalid minimum %v", f.Name, c.Minimum)
		}
		f.minimum = v
	}
	if c.Maximum != nil {
		v, err := f.Cast(fmt.Sprint(c.Maximum))
		if err != nil {
			return fmt.Errorf("field %q has invalid maximum %v", f.Name, c.Maximum)
		}
		f.maximum = v
	}
	if c.Enum != nil {
		f.enum = make(map[string]struct{}, len(c.Enum))
		for _, item := range c.Enum {
			v, err := f.Cast(fmt.Sprint(item))
			if err != nil {
				return fmt.Errorf("field %q has invalid enum value %v", f.Name, item)
			}
			f.enum[valueKey(v)] = struct{}{}
		}
	}
	return nil
}

// typeNote is the suffix of a type-error message.
func (f *Field) typeNote() string {
	return fmt.Sprintf("type is %q", f.Type+"/"+f.Format)
}

// Cast converts a cell to the field's logical type.
func (f *Field) Cast(cell string) (interface{}, error) {
	switch f.Type {
	case "string":
		return castString(cell, f.Format)
	case "integer":
		return f.castInteger(cell)
	case "number":
		return f.castNumber(cell)
	case "boolean":
		for _, v := range f.TrueValues {
			if cell == v {
				return true, nil
			}
		}
		for _, v := range f.FalseValues {
			if cell == v {
				return false, nil
			}
		}
		return nil, errCast
	case "date":
		return castTime(cell, f.Format, []string{"2006-01-02"})
	case "datetime":
		return castTime(cell, f.Format, []string{time.RFC3339Nano, "2006-01-02T15:04:05"})
	case "time":
		return castTime(cell, f.Format, []string{"15:04:05", "15:04:05Z07:00"})
	case "year":
		if !yearPattern.MatchString(cell) {
			return nil, errCast
		}
		y, _ := strconv.Atoi(cell)
		return float64(y), nil
	case "yearmonth":
		return castTime(cell, "default", []string{"2006-01"})
	case "duration":
		if cell == "P" || strings.HasSuffix(cell, "T") || !durationPattern.MatchString(cell) {
			return nil, errCast
		}
		return cell, nil
	case "object":
		var v map[string]interface{}
		if err := json.Unmarshal([]byte(cell), &v); err != nil {
			return nil, errCast
		}
		return v, nil
	case "array":
		var v []interface{}
		if err := json.Unmarshal([]byte(cell), &v); err != nil {
			return nil, errCast
		}
		return v, nil
	case "geopoint":
		return castGeopoint(cell, f.Format)
	case "geojson":
		var v map[string]interface{}
		if err := json.Unmarshal([]byte(cell), &v); err != nil {
			return nil, errCast
		}
		if _, ok := v["type"].(string); !ok {
			return nil, errCast
		}
		return v, nil
	default:
		return cell, nil
	}
}

func castString(cell, format string) (interface{}, error) {
	switch format {
	case "email":
		addr, err := mail.ParseAddress(cell)
		if err != nil || addr.Address != cell {
			return nil, errCast
		}
	case "uri":
		u, err := url.ParseRequestURI(cell)
		if err != nil || u.Scheme == "" {
			return nil, errCast
		}
	case "uuid":
		if _, err := uuid.Parse(cell); err != nil {
			return nil, errCast
		}
	case "binary":
		if _, err := base64.StdEncoding.DecodeString(cell); err != nil {
			return nil, errCast
		}
	}
	return cell, nil
}

func (f *Field) normalizeNumber(cell string) string {
	if f.GroupChar != "" {
		cell = strings.ReplaceAll(cell, f.GroupChar, "")
	}
	if f.BareNumber != nil && !*f.BareNumber {
		cell = strings.TrimFunc(cell, func(r rune) bool {
			return !(r >= '0' && r <= '9') && r != '-' && r != '+' && string(r) != f.DecimalChar
		})
	}
	return cell
}

func (f *Field) castInteger(cell string) (interface{}, error) {
	n, err := strconv.ParseInt(f.normalizeNumber(cell), 10, 64)
	if err != nil {
		return nil, errCast
	}
	return float64(n), nil
}

func (f *Field) castNumber(cell string) (interface{}, error) {
	cell = f.normalizeNumber(cell)
	switch cell {
	case "NaN":
		return math.NaN(), nil
	case "INF":
		return math.Inf(1), nil
	case "-INF":
		return math.Inf(-1), nil
	}
	if f.DecimalChar != "." {
		cell = strings.ReplaceAll(cell, f.DecimalChar, ".")
	}
	n, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return nil, errCast
	}
	return n, nil
}

var anyDateLayouts = []string{
	time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02",
	"02/01/2006", "01/02/2006", "2006/01/02", "02-01-2006", "Jan 2, 2006", "2 Jan 2006",
	"January 2, 2006", "15:04:05", "15:04",
}

func castTime(cell, format string, defaults []string) (interface{}, error) {
	var layouts []string
	switch format {
	case "default":
		layouts = defaults
	case "any":
		layouts = anyDateLayouts
	default:
		layouts = []string{strftimeLayout(format)}
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, cell); err == nil {
			return t, nil
		}
	}
	return nil, errCast
}

var strftimeDirectives = map[byte]string{
	'Y': "2006", 'y': "06", 'm': "01", 'd': "02", 'H': "15", 'I': "03",
	'M': "04", 'S': "05", 'f': "000000", 'p': "PM", 'b': "Jan", 'B': "January",
	'a': "Mon", 'A': "Monday", 'j': "002", 'z': "-0700", 'Z': "MST", '%': "%",
}

// strftimeLayout converts a %Y-%m-%d style pattern to a time layout.
func strftimeLayout(format string) string {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] == '%' && i+1 < len(format) {
			if layout, ok := strftimeDirectives[format[i+1]]; ok {
				b.WriteString(layout)
				i++
				continue
			}
		}
		b.WriteByte(format[i])
	}
	return b.String()
}

func castGeopoint(cell, format string) (interface{}, error) {
	var lon, lat float64
	switch format {
	case "array":
		var v []float64
		if err := json.Unmarshal([]byte(cell), &v); err != nil || len(v) != 2 {
			return nil, errCast
		}
		lon, lat = v[0], v[1]
	case "object":
		var v struct {
			Lon *float64 `json:"lon"`
			Lat *float64 `json:"lat"`
		}
		if err := json.Unmarshal([]byte(cell), &v); err != nil || v.Lon == nil || v.Lat == nil {
			return nil, errCast
		}
		lon, lat = *v.Lon, *v.Lat
	default:
		parts := strings.Split(cell, ",")
		if len(parts) != 2 {
			return nil, errCast
		}
		var err1, err2 error
		lon, err1 = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		lat, err2 = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err1 != nil || err2 != nil {
			return nil, errCast
		}
	}
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return nil, errCast
	}
	return [2]float64{lon, lat}, nil
}

// valueKey is a comparable form of a cast value.
func valueKey(v interface{}) string {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case string:
		return val
	default:
		b, _ := json.Marshal(val)
		return string(b)
	}
}

// compare orders two cast values of the same field. ok is false when the
// values are not ordered.
func compare(a, b interface{}) (int, bool) {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return av.Compare(bv), true
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	}
	return 0, false
}

func valueLength(v interface{}) (int, bool) {
	switch val := v.(type) {
	case string:
		return utf8.RuneCountInString(val), true
	case []interface{}:
		return len(val), true
	case map[string]interface{}:
		return len(val), true
	}
	return 0, false
}

// checkConstraints returns the note of the first violated constraint.
func (f *Field) checkConstraints(cell string, value interface{}) string {
	c := f.Constraints
	if f.pattern != nil && !f.pattern.MatchString(cell) {
		return fmt.Sprintf("constraint %q is %q", "pattern", c.Pattern)
	}
	if f.enum != nil {
		if _, ok := f.enum[valueKey(value)]; !ok {
			enum, _ := json.Marshal(c.Enum)
			return fmt.Sprintf("constraint %q is %q", "enum", string(enum))
		}
	}
	if c.MinLength != nil {
		if n, ok := valueLength(value); ok && n < *c.MinLength {
			return fmt.Sprintf("constraint %q is %q", "minLength", fmt.Sprint(*c.MinLength))
		}
	}
	if c.MaxLength != nil {
		if n, ok := valueLength(value); ok && n > *c.MaxLength {
			return fmt.Sprintf("constraint %q is %q", "maxLength", fmt.Sprint(*c.MaxLength))
		}
	}
	if f.minimum != nil {
		if cmp, ok := compare(value, f.minimum); ok && cmp < 0 {
			return fmt.Sprintf("constraint %q is %q", "minimum", fmt.Sprint(c.Minimum))
		}
	}
	if f.maximum != nil {
		if cmp, ok := compare(value, f.maximum); ok && cmp > 0 {
			return fmt.Sprintf("constraint %q is %q", "maximum", fmt.Sprint(c.Maximum))
		}
	}
	return ""
}
