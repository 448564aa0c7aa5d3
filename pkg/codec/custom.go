package codec

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/vnykmshr/beatflow/pkg/schedule"
)

// shortName returns the last path element of a type identifier,
// e.g. "Sunrise" for "example.com/solar.Sunrise".
func shortName(typeID string) string {
	name := typeID
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func (c *Codec) customRecord(v schedule.Encodable) (map[string]any, error) {
	attrs, err := v.EncodeAttrs()
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", v.TypeID(), err)
	}

	rec := make(map[string]any, len(attrs)+2)
	for k, a := range attrs {
		nested, err := c.encodeNested(a)
		if err != nil {
			return nil, fmt.Errorf("encode %s.%s: %w", v.TypeID(), k, err)
		}
		rec[k] = nested
	}
	rec[TypeKey] = shortName(v.TypeID())
	rec[ImportPathKey] = v.TypeID()
	return rec, nil
}

func unresolvedRecord(u *schedule.Unresolved) map[string]any {
	rec := maps.Clone(u.Attrs)
	if rec == nil {
		rec = make(map[string]any, 2)
	}
	rec[TypeKey] = u.Type
	if u.ImportPath != "" {
		rec[ImportPathKey] = u.ImportPath
	}
	return rec
}

// encodeNested turns instants and schedules inside custom attributes into
// records; other values pass through to encoding/json.
func (c *Codec) encodeNested(v any) (any, error) {
	switch x := v.(type) {
	case time.Time, *time.Time, schedule.Schedule, schedule.Weekday:
		return c.ToRecord(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			enc, err := c.encodeNested(item)
			if err != nil {
				return nil, err
			}
			out[k] = enc
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			enc, err := c.encodeNested(item)
			if err != nil {
				return nil, err
			}
			out[i] = enc
		}
		return out, nil
	default:
		return v, nil
	}
}

// decodeNested resolves records nested in custom attributes. Records that
// fail to decode are kept as maps.
func (c *Codec) decodeNested(v any) any {
	switch x := v.(type) {
	case map[string]any:
		if _, tagged := x[TypeKey]; tagged {
			if dec, err := c.FromRecord(x); err == nil {
				return dec
			}
			return x
		}
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = c.decodeNested(item)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = c.decodeNested(item)
		}
		return out
	default:
		return v
	}
}

func (c *Codec) decodeCustom(tag string, rec map[string]any) (any, error) {
	importPath, _ := rec[ImportPathKey].(string)

	attrs := make(map[string]any, len(rec))
	for k, v := range rec {
		if k == TypeKey || k == ImportPathKey {
			continue
		}
		attrs[k] = c.decodeNested(v)
	}

	factory, ok := c.lookup(importPath)
	if !ok {
		c.log.Warn().
			Str("type", tag).
			Str("import_path", importPath).
			Msg("custom schedule detected but its type is not registered")
		return &schedule.Unresolved{Type: tag, ImportPath: importPath, Attrs: attrs}, nil
	}

	v := factory()
	if init, ok := v.(schedule.WireInitializer); ok {
		if err := init.InitFromWire(attrs); err != nil {
			return nil, fmt.Errorf("decode %s: %w", importPath, err)
		}
		return v, nil
	}

	// Default construction: map attributes onto exported fields by their
	// JSON names.
	data, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", importPath, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", importPath, err)
	}
	return v, nil
}
