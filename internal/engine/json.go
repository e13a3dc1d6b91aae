package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// parseJSON follows JSON.parse: duplicate keys keep the last value, lone
// surrogate escapes decode to U+FFFD and out-of-range numbers become ±Inf.
func parseJSON(src []byte) (*structpb.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(src))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("unexpected end of data")
		}
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected non-whitespace character after JSON data at offset %d", dec.InputOffset())
	}
	return toValue(raw)
}

func toValue(raw any) (*structpb.Value, error) {
	switch v := raw.(type) {
	case nil:
		return structpb.NewNullValue(), nil
	case bool:
		return structpb.NewBoolValue(v), nil
	case string:
		return structpb.NewStringValue(v), nil
	case json.Number:
		f, err := strconv.ParseFloat(v.String(), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return nil, fmt.Errorf("invalid number %s: %w", v, err)
		}
		return structpb.NewNumberValue(f), nil
	case []any:
		list := &structpb.ListValue{Values: make([]*structpb.Value, len(v))}
		for i, item := range v {
			value, err := toValue(item)
			if err != nil {
				return nil, err
			}
			list.Values[i] = value
		}
		return structpb.NewListValue(list), nil
	case map[string]any:
		obj := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(v))}
		for key, item := range v {
			value, err := toValue(item)
			if err != nil {
				return nil, err
			}
			obj.Fields[key] = value
		}
		return structpb.NewStructValue(obj), nil
	default:
		return nil, fmt.Errorf("unexpected JSON value %T", raw)
	}
}

// Stringify serializes a parsed value the way JSON.stringify does:
// non-finite numbers are written as null.
func Stringify(v *structpb.Value) ([]byte, error) {
	if !hasNonFinite(v) {
		return protojson.Marshal(v)
	}
	finite := proto.Clone(v).(*structpb.Value)
	replaceNonFinite(finite)
	return protojson.Marshal(finite)
}

func hasNonFinite(v *structpb.Value) bool {
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return math.IsInf(kind.NumberValue, 0) || math.IsNaN(kind.NumberValue)
	case *structpb.Value_ListValue:
		for _, item := range kind.ListValue.GetValues() {
			if hasNonFinite(item) {
				return true
			}
		}
	case *structpb.Value_StructValue:
		for _, item := range kind.StructValue.GetFields() {
			if hasNonFinite(item) {
				return true
			}
		}
	}
	return false
}

func replaceNonFinite(v *structpb.Value) {
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		if math.IsInf(kind.NumberValue, 0) || math.IsNaN(kind.NumberValue) {
			v.Kind = &structpb.Value_NullValue{NullValue: structpb.NullValue_NULL_VALUE}
		}
	case *structpb.Value_ListValue:
		for _, item := range kind.ListValue.GetValues() {
			replaceNonFinite(item)
		}
	case *structpb.Value_StructValue:
		for _, item := range kind.StructValue.GetFields() {
			replaceNonFinite(item)
		}
	}
}
