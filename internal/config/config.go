package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// #region errors
var (
	// ErrUnknownKey is returned when a file or override names a key the defaults do not have.
	ErrUnknownKey = errors.New("non-existent config key")
	// ErrTypeMismatch is returned when a value cannot take the type of the key it replaces.
	ErrTypeMismatch = errors.New("config type mismatch")
	// ErrOddOverrides is returned when the override list is not KEY VALUE pairs.
	ErrOddOverrides = errors.New("override list must be KEY VALUE pairs")
)

// #endregion errors

// #region load
// Load builds the frozen configuration: defaults, then the file (if any), then overrides.
func Load(path string, opts []string) (Config, error) {
	cfg := Default()
	var err error
	if path != "" {
		cfg, err = MergeFromFile(cfg, path)
		if err != nil {
			return Config{}, err
		}
	}
	return MergeFromList(cfg, opts)
}

// #endregion load

// #region merge-file
// MergeFromFile overlays a JSON config file onto base. Every leaf in the file must exist in base.
func MergeFromFile(base Config, path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if !gjson.ValidBytes(raw) {
		return Config{}, fmt.Errorf("parse config %s: invalid JSON", path)
	}

	doc, err := json.Marshal(base)
	if err != nil {
		return Config{}, fmt.Errorf("marshal base config: %w", err)
	}

	var leaves []leaf
	if err := collectLeaves("", gjson.ParseBytes(raw), &leaves); err != nil {
		return Config{}, err
	}
	for _, l := range leaves {
		cur := gjson.GetBytes(doc, l.path)
		if !cur.Exists() {
			return Config{}, fmt.Errorf("%w: %s", ErrUnknownKey, l.path)
		}
		if !sameKind(cur, l.value) {
			return Config{}, fmt.Errorf("%w: %s", ErrTypeMismatch, l.path)
		}
		doc, err = setKey(doc, l.path, []byte(l.value.Raw))
		if err != nil {
			return Config{}, err
		}
	}
	return decode(doc)
}

// #endregion merge-file

// #region merge-list
// MergeFromList applies KEY VALUE overrides, coercing each value to the type of the key it replaces.
// Keys are dotted paths, e.g. MODEL.DEVICE cpu.
func MergeFromList(base Config, opts []string) (Config, error) {
	if len(opts)%2 != 0 {
		return Config{}, fmt.Errorf("%w: got %d items", ErrOddOverrides, len(opts))
	}
	doc, err := json.Marshal(base)
	if err != nil {
		return Config{}, fmt.Errorf("marshal base config: %w", err)
	}

	for i := 0; i < len(opts); i += 2 {
		key, value := opts[i], opts[i+1]
		if err := checkKey(key); err != nil {
			return Config{}, err
		}
		cur := gjson.GetBytes(doc, key)
		if !cur.Exists() || cur.IsObject() {
			return Config{}, fmt.Errorf("%w: %s", ErrUnknownKey, key)
		}
		raw, err := coerce(cur, value)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %v", ErrTypeMismatch, key, err)
		}
		doc, err = setKey(doc, key, raw)
		if err != nil {
			return Config{}, err
		}
	}
	return decode(doc)
}

// #endregion merge-list

// #region derived
// IOUTypes lists the evaluation types the model produces, bbox first.
func (c Config) IOUTypes() []string {
	types := []string{"bbox"}
	if c.Model.MaskOn {
		types = append(types, "segm")
	}
	if c.Model.KeypointOn {
		types = append(types, "keypoints")
	}
	return types
}

// BoxOnly reports whether inference should return proposals only.
// RetinaNet always produces final boxes.
func (c Config) BoxOnly() bool {
	if c.Model.RetinaNetOn {
		return false
	}
	return c.Model.RPNOnly
}

// MixedPrecision reports whether half precision is requested.
func (c Config) MixedPrecision() bool {
	return c.DType == "float16"
}

// String renders the tree as indented JSON.
func (c Config) String() string {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(b)
}

// Map returns the tree as generic JSON values, the shape sent over the wire.
func (c Config) Map() (map[string]any, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// #endregion derived

// #region helpers
type leaf struct {
	path  string
	value gjson.Result
}

// keySegment matches one plain key name. Anything else would be read as gjson path syntax.
var keySegment = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

func checkKey(key string) error {
	for _, seg := range strings.Split(key, ".") {
		if !keySegment.MatchString(seg) {
			return fmt.Errorf("%w: %s", ErrUnknownKey, key)
		}
	}
	return nil
}

// collectLeaves flattens objects into dotted paths. Arrays are leaves.
func collectLeaves(prefix string, r gjson.Result, out *[]leaf) error {
	if !r.IsObject() {
		*out = append(*out, leaf{path: prefix, value: r})
		return nil
	}
	var err error
	r.ForEach(func(k, v gjson.Result) bool {
		p := k.String()
		if prefix != "" {
			p = prefix + "." + p
		}
		if !keySegment.MatchString(k.String()) {
			err = fmt.Errorf("%w: %s", ErrUnknownKey, p)
			return false
		}
		err = collectLeaves(p, v, out)
		return err == nil
	})
	return err
}

// setKey writes raw at key and checks the tree still decodes into Config.
func setKey(doc []byte, key string, raw []byte) ([]byte, error) {
	next, err := sjson.SetRawBytes(doc, key, raw)
	if err != nil {
		return nil, fmt.Errorf("set %s: %w", key, err)
	}
	var cfg Config
	if err := json.Unmarshal(next, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTypeMismatch, key, err)
	}
	return next, nil
}

func sameKind(cur, next gjson.Result) bool {
	switch {
	case cur.IsArray():
		return next.IsArray()
	case cur.IsObject():
		return next.IsObject()
	case cur.Type == gjson.True || cur.Type == gjson.False:
		return next.Type == gjson.True || next.Type == gjson.False
	default:
		return cur.Type == next.Type
	}
}

// coerce turns an override string into raw JSON of the same kind as cur.
func coerce(cur gjson.Result, value string) ([]byte, error) {
	switch {
	case cur.IsArray():
		next := gjson.Parse(value)
		if !gjson.Valid(value) || !next.IsArray() {
			return nil, fmt.Errorf("want a JSON list, got %q", value)
		}
		return []byte(value), nil
	case cur.Type == gjson.True || cur.Type == gjson.False:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, err
		}
		return []byte(strconv.FormatBool(b)), nil
	case cur.Type == gjson.Number:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, err
		}
		return json.Marshal(f)
	default:
		return json.Marshal(value)
	}
}

func decode(doc []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(doc, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// #endregion helpers
