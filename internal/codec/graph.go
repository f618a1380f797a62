package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

const graphVersion = 1

const (
	refKindPtr   = "ptr"
	refKindMap   = "map"
	refKindSlice = "slice"

	markerRef  = "$ref"
	markerJSON = "$json"
)

// Graph 以引用表方式编码值：指针、map、slice 首次出现时写入 refs，
// 之后的出现只记录 {"$ref": n}，因此共享结构与环形结构都能原样还原。
//
// 约定与 encoding/json 一致：只处理导出字段，遵循 json tag 命名；
// 解码到 interface{} 时数字为 float64，对象为 map[string]any，数组为 []any。
type Graph[T any] struct{}

type document struct {
	Version int         `json:"v"`
	Root    any         `json:"root"`
	Refs    []refRecord `json:"refs,omitempty"`
}

type refRecord struct {
	Kind  string `json:"k"`
	Value any    `json:"v"`
}

// Encode 把 value 编码为带引用表的 JSON 文档。
func (Graph[T]) Encode(value T) ([]byte, error) {
	enc := &graphEncoder{seen: make(map[refKey]int)}
	root, err := enc.encode(reflect.ValueOf(&value).Elem())
	if err != nil {
		return nil, err
	}
	return json.Marshal(document{Version: graphVersion, Root: root, Refs: enc.refs})
}

// Decode 还原 Encode 的输出，共享与环形引用在结果中保持同一身份。
func (Graph[T]) Decode(data []byte) (T, error) {
	var out T

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return out, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if doc.Version != graphVersion {
		return out, fmt.Errorf("%w: version %d", ErrCorrupt, doc.Version)
	}

	d := &graphDecoder{
		refs:        doc.Refs,
		typed:       make(map[typedRef]reflect.Value),
		genericRefs: make(map[int]any),
		pending:     make(map[int]bool),
	}
	if err := d.decodeInto(doc.Root, reflect.ValueOf(&out).Elem()); err != nil {
		return out, err
	}
	return out, nil
}

type refKey struct {
	ptr uintptr
	typ reflect.Type
	n   int
}

type graphEncoder struct {
	seen map[refKey]int
	refs []refRecord
}

var (
	marshalerType   = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	unmarshalerType = reflect.TypeOf((*json.Unmarshaler)(nil)).Elem()
	anySliceType    = reflect.TypeOf([]any(nil))
	anyMapType      = reflect.TypeOf(map[string]any(nil))
)

func (e *graphEncoder) encode(v reflect.Value) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}
	kind := v.Kind()
	if kind != reflect.Pointer && kind != reflect.Interface && v.Type().Implements(marshalerType) {
		raw, err := v.Interface().(json.Marshaler).MarshalJSON()
		if err != nil {
			return nil, err
		}
		return map[string]any{markerJSON: json.RawMessage(raw)}, nil
	}

	switch kind {
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return json.Number(strconv.FormatInt(v.Int(), 10)), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return json.Number(strconv.FormatUint(v.Uint(), 10)), nil
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: non-finite float %v", ErrUnsupported, f)
		}
		return json.Number(strconv.FormatFloat(f, 'g', -1, 64)), nil
	case reflect.String:
		return v.String(), nil
	case reflect.Interface:
		if v.IsNil() {
			return nil, nil
		}
		return e.encode(v.Elem())
	case reflect.Pointer:
		if v.IsNil() {
			return nil, nil
		}
		return e.ref(v, refKindPtr, 0, func() (any, error) {
			return e.encode(v.Elem())
		})
	case reflect.Map:
		if v.IsNil() {
			return nil, nil
		}
		return e.ref(v, refKindMap, 0, func() (any, error) {
			return e.encodeMap(v)
		})
	case reflect.Slice:
		if v.IsNil() {
			return nil, nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return base64.StdEncoding.EncodeToString(v.Bytes()), nil
		}
		return e.ref(v, refKindSlice, v.Len(), func() (any, error) {
			return e.encodeSeq(v)
		})
	case reflect.Array:
		return e.encodeSeq(v)
	case reflect.Struct:
		return e.encodeStruct(v)
	default:
		return nil, fmt.Errorf("%w: kind %s", ErrUnsupported, kind)
	}
}

func (e *graphEncoder) ref(v reflect.Value, kind string, n int, body func() (any, error)) (any, error) {
	key := refKey{ptr: v.Pointer(), typ: v.Type(), n: n}
	if id, ok := e.seen[key]; ok {
		return refNode(id), nil
	}
	id := len(e.refs)
	e.seen[key] = id
	e.refs = append(e.refs, refRecord{Kind: kind})

	value, err := body()
	if err != nil {
		return nil, err
	}
	e.refs[id].Value = value
	return refNode(id), nil
}

func (e *graphEncoder) encodeMap(v reflect.Value) (any, error) {
	pairs := make([]any, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		k, err := e.encode(iter.Key())
		if err != nil {
			return nil, err
		}
		val, err := e.encode(iter.Value())
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, []any{k, val})
	}
	return pairs, nil
}

func (e *graphEncoder) encodeSeq(v reflect.Value) (any, error) {
	items := make([]any, v.Len())
	for i := range items {
		item, err := e.encode(v.Index(i))
		if err != nil {
			return nil, err
		}
		items[i] = item
	}
	return items, nil
}

func (e *graphEncoder) encodeStruct(v reflect.Value) (any, error) {
	obj := make(map[string]any)
	for _, f := range fieldsOf(v.Type()) {
		if f.name == markerRef || f.name == markerJSON {
			return nil, fmt.Errorf("%w: field %s.%s uses reserved name %q", ErrUnsupported, v.Type(), v.Type().Field(f.index).Name, f.name)
		}
		val, err := e.encode(v.Field(f.index))
		if err != nil {
			return nil, err
		}
		obj[f.name] = val
	}
	return obj, nil
}

func refNode(id int) map[string]any {
	return map[string]any{markerRef: id}
}

type field struct {
	name  string
	index int
}

func fieldsOf(t reflect.Type) []field {
	out := make([]field, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("json"); ok {
			if tag == "-" {
				continue
			}
			tag, _, _ = strings.Cut(tag, ",")
			if tag != "" {
				name = tag
			}
		}
		out = append(out, field{name: name, index: i})
	}
	return out
}

type typedRef struct {
	id  int
	typ reflect.Type
}

type graphDecoder struct {
	refs        []refRecord
	typed       map[typedRef]reflect.Value
	genericRefs map[int]any
	pending     map[int]bool
}

func (d *graphDecoder) decodeInto(node any, v reflect.Value) error {
	t := v.Type()
	if node == nil {
		v.Set(reflect.Zero(t))
		return nil
	}

	if inner, ok := jsonMarker(node); ok && reflect.PointerTo(t).Implements(unmarshalerType) {
		raw, err := json.Marshal(inner)
		if err != nil {
			return err
		}
		return v.Addr().Interface().(json.Unmarshaler).UnmarshalJSON(raw)
	}

	if t == anySliceType || t == anyMapType {
		g, err := d.generic(node)
		if err != nil {
			return err
		}
		return assign(v, g)
	}

	switch t.Kind() {
	case reflect.Bool:
		b, ok := node.(bool)
		if !ok {
			return mismatch(node, t)
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := node.(json.Number)
		if !ok {
			return mismatch(node, t)
		}
		i, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil || v.OverflowInt(i) {
			return mismatch(node, t)
		}
		v.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, ok := node.(json.Number)
		if !ok {
			return mismatch(node, t)
		}
		u, err := strconv.ParseUint(n.String(), 10, 64)
		if err != nil || v.OverflowUint(u) {
			return mismatch(node, t)
		}
		v.SetUint(u)
	case reflect.Float32, reflect.Float64:
		n, ok := node.(json.Number)
		if !ok {
			return mismatch(node, t)
		}
		f, err := n.Float64()
		if err != nil {
			return mismatch(node, t)
		}
		v.SetFloat(f)
	case reflect.String:
		s, ok := node.(string)
		if !ok {
			return mismatch(node, t)
		}
		v.SetString(s)
	case reflect.Interface:
		if t.NumMethod() != 0 {
			return fmt.Errorf("%w: non-empty interface %s", ErrUnsupported, t)
		}
		g, err := d.generic(node)
		if err != nil {
			return err
		}
		return assign(v, g)
	case reflect.Pointer:
		return d.decodeRef(node, v, refKindPtr, func(rec refRecord) (reflect.Value, func() error) {
			p := reflect.New(t.Elem())
			return p, func() error { return d.decodeInto(rec.Value, p.Elem()) }
		})
	case reflect.Map:
		return d.decodeRef(node, v, refKindMap, func(rec refRecord) (reflect.Value, func() error) {
			m := reflect.MakeMap(t)
			return m, func() error { return d.fillMap(rec.Value, m) }
		})
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			s, ok := node.(string)
			if !ok {
				return mismatch(node, t)
			}
			raw, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
			v.SetBytes(raw)
			return nil
		}
		return d.decodeRef(node, v, refKindSlice, func(rec refRecord) (reflect.Value, func() error) {
			items, _ := rec.Value.([]any)
			s := reflect.MakeSlice(t, len(items), len(items))
			return s, func() error {
				for i, item := range items {
					if err := d.decodeInto(item, s.Index(i)); err != nil {
						return err
					}
				}
				return nil
			}
		})
	case reflect.Array:
		items, ok := node.([]any)
		if !ok || len(items) != v.Len() {
			return mismatch(node, t)
		}
		for i, item := range items {
			if err := d.decodeInto(item, v.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Struct:
		obj, ok := node.(map[string]any)
		if !ok {
			return mismatch(node, t)
		}
		for _, f := range fieldsOf(t) {
			if val, ok := obj[f.name]; ok {
				if err := d.decodeInto(val, v.Field(f.index)); err != nil {
					return err
				}
			}
		}
	default:
		return fmt.Errorf("%w: kind %s", ErrUnsupported, t.Kind())
	}
	return nil
}

// decodeRef 先登记新建的容器再填充内容，环形引用回到同一 id 时拿到的是同一个值。
func (d *graphDecoder) decodeRef(node any, v reflect.Value, kind string, build func(refRecord) (reflect.Value, func() error)) error {
	id, err := d.refID(node, kind)
	if err != nil {
		return err
	}
	key := typedRef{id: id, typ: v.Type()}
	if cached, ok := d.typed[key]; ok {
		v.Set(cached)
		return nil
	}
	created, fill := build(d.refs[id])
	d.typed[key] = created
	v.Set(created)
	return fill()
}

func (d *graphDecoder) fillMap(content any, m reflect.Value) error {
	pairs, ok := content.([]any)
	if !ok {
		return mismatch(content, m.Type())
	}
	t := m.Type()
	for _, raw := range pairs {
		pair, ok := raw.([]any)
		if !ok || len(pair) != 2 {
			return fmt.Errorf("%w: malformed map entry", ErrCorrupt)
		}
		k := reflect.New(t.Key()).Elem()
		if err := d.decodeInto(pair[0], k); err != nil {
			return err
		}
		val := reflect.New(t.Elem()).Elem()
		if err := d.decodeInto(pair[1], val); err != nil {
			return err
		}
		m.SetMapIndex(k, val)
	}
	return nil
}

func (d *graphDecoder) generic(node any) (any, error) {
	switch n := node.(type) {
	case nil, bool, string:
		return n, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return f, nil
	case []any:
		out := make([]any, len(n))
		for i, item := range n {
			g, err := d.generic(item)
			if err != nil {
				return nil, err
			}
			out[i] = g
		}
		return out, nil
	case map[string]any:
		if _, ok := n[markerRef]; ok {
			id, err := d.refID(n, "")
			if err != nil {
				return nil, err
			}
			return d.genericRef(id)
		}
		if inner, ok := jsonMarker(n); ok {
			return d.generic(inner)
		}
		out := make(map[string]any, len(n))
		if err := d.fillObject(n, out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unexpected node %T", ErrCorrupt, node)
	}
}

func (d *graphDecoder) genericRef(id int) (any, error) {
	if cached, ok := d.genericRefs[id]; ok {
		return cached, nil
	}
	if d.pending[id] {
		return nil, nil
	}
	rec := d.refs[id]

	switch rec.Kind {
	case refKindMap:
		pairs, ok := rec.Value.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: malformed map", ErrCorrupt)
		}
		m := make(map[string]any, len(pairs))
		d.genericRefs[id] = m
		for _, raw := range pairs {
			pair, ok := raw.([]any)
			if !ok || len(pair) != 2 {
				return nil, fmt.Errorf("%w: malformed map entry", ErrCorrupt)
			}
			k, err := d.generic(pair[0])
			if err != nil {
				return nil, err
			}
			val, err := d.generic(pair[1])
			if err != nil {
				return nil, err
			}
			m[mapKey(k)] = val
		}
		return m, nil
	case refKindSlice:
		items, ok := rec.Value.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: malformed slice", ErrCorrupt)
		}
		s := make([]any, len(items))
		d.genericRefs[id] = s
		for i, item := range items {
			g, err := d.generic(item)
			if err != nil {
				return nil, err
			}
			s[i] = g
		}
		return s, nil
	case refKindPtr:
		if obj, ok := rec.Value.(map[string]any); ok && isPlainObject(obj) {
			m := make(map[string]any, len(obj))
			d.genericRefs[id] = m
			if err := d.fillObject(obj, m); err != nil {
				return nil, err
			}
			return m, nil
		}
		d.pending[id] = true
		g, err := d.generic(rec.Value)
		delete(d.pending, id)
		if err != nil {
			return nil, err
		}
		d.genericRefs[id] = g
		return g, nil
	default:
		return nil, fmt.Errorf("%w: unknown ref kind %q", ErrCorrupt, rec.Kind)
	}
}

func (d *graphDecoder) fillObject(obj map[string]any, out map[string]any) error {
	for k, item := range obj {
		g, err := d.generic(item)
		if err != nil {
			return err
		}
		out[k] = g
	}
	return nil
}

func (d *graphDecoder) refID(node any, kind string) (int, error) {
	obj, ok := node.(map[string]any)
	if !ok {
		return 0, fmt.Errorf("%w: expected reference, got %T", ErrCorrupt, node)
	}
	num, ok := obj[markerRef].(json.Number)
	if !ok {
		return 0, fmt.Errorf("%w: expected reference", ErrCorrupt)
	}
	id, err := strconv.Atoi(num.String())
	if err != nil || id < 0 || id >= len(d.refs) {
		return 0, fmt.Errorf("%w: reference %s out of range", ErrCorrupt, num)
	}
	if kind != "" && d.refs[id].Kind != kind {
		return 0, fmt.Errorf("%w: reference %d is %s, want %s", ErrCorrupt, id, d.refs[id].Kind, kind)
	}
	return id, nil
}

func jsonMarker(node any) (any, bool) {
	obj, ok := node.(map[string]any)
	if !ok || len(obj) != 1 {
		return nil, false
	}
	inner, ok := obj[markerJSON]
	return inner, ok
}

func isPlainObject(obj map[string]any) bool {
	if _, ok := obj[markerRef]; ok {
		return false
	}
	_, ok := jsonMarker(obj)
	return !ok
}

func mapKey(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	return fmt.Sprint(k)
}

func assign(v reflect.Value, g any) error {
	if g == nil {
		v.Set(reflect.Zero(v.Type()))
		return nil
	}
	gv := reflect.ValueOf(g)
	if !gv.Type().AssignableTo(v.Type()) {
		return mismatch(g, v.Type())
	}
	v.Set(gv)
	return nil
}

func mismatch(node any, t reflect.Type) error {
	return fmt.Errorf("%w: cannot decode %T into %s", ErrCorrupt, node, t)
}
