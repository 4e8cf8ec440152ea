package memlog

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/valyala/fastjson"
)

type jsonRecord struct {
	StepID        string `json:"stepId,omitempty"`
	Operation     string `json:"operation,omitempty"`
	AllocationID  string `json:"allocationId,omitempty"`
	AllocatorName string `json:"allocatorName,omitempty"`
	Deferred      bool   `json:"deferred,omitempty"`
}

// MarshalJSON renders the record using the protobuf JSON mapping:
// lowerCamelCase names, int64 values as decimal strings, defaults omitted.
func (r *RawDeallocation) MarshalJSON() ([]byte, error) {
	out := jsonRecord{
		Operation:     r.GetOperation(),
		AllocatorName: r.GetAllocatorName(),
		Deferred:      r.GetDeferred(),
	}
	if v := r.GetStepID(); v != 0 {
		out.StepID = strconv.FormatInt(v, 10)
	}
	if v := r.GetAllocationID(); v != 0 {
		out.AllocationID = strconv.FormatInt(v, 10)
	}
	return json.Marshal(out)
}

// ParseJSON builds a record from its JSON form. It accepts the protobuf JSON
// mapping as well as the snake_case field names of the schema. int64 fields
// may be numbers or decimal strings. Unknown keys are ignored.
func ParseJSON(data []byte) (*RawDeallocation, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse record json: %w", err)
	}
	return FromJSONValue(v)
}

// FromJSONValue builds a record from a parsed JSON object.
func FromJSONValue(v *fastjson.Value) (*RawDeallocation, error) {
	if v == nil || v.Type() != fastjson.TypeObject {
		return nil, fmt.Errorf("record json must be an object")
	}
	b := NewBuilder()

	stepID, err := jsonInt64(v, "stepId", "step_id")
	if err != nil {
		return nil, err
	}
	operation, err := jsonString(v, "operation")
	if err != nil {
		return nil, err
	}
	allocationID, err := jsonInt64(v, "allocationId", "allocation_id")
	if err != nil {
		return nil, err
	}
	allocatorName, err := jsonString(v, "allocatorName", "allocator_name")
	if err != nil {
		return nil, err
	}
	deferred, err := jsonBool(v, "deferred")
	if err != nil {
		return nil, err
	}

	return b.SetStepID(stepID).
		SetOperation(operation).
		SetAllocationID(allocationID).
		SetAllocatorName(allocatorName).
		SetDeferred(deferred).
		Build(), nil
}

func lookup(v *fastjson.Value, names ...string) (*fastjson.Value, string) {
	for _, name := range names {
		if f := v.Get(name); f != nil && f.Type() != fastjson.TypeNull {
			return f, name
		}
	}
	return nil, ""
}

func jsonInt64(v *fastjson.Value, names ...string) (int64, error) {
	f, name := lookup(v, names...)
	if f == nil {
		return 0, nil
	}
	switch f.Type() {
	case fastjson.TypeNumber:
		n, err := f.Int64()
		if err != nil {
			return 0, fmt.Errorf("field %s: %w", name, err)
		}
		return n, nil
	case fastjson.TypeString:
		s, _ := f.StringBytes()
		n, err := strconv.ParseInt(string(s), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("field %s: %w", name, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("field %s: expected integer, got %s", name, f.Type())
	}
}

func jsonString(v *fastjson.Value, names ...string) (string, error) {
	f, name := lookup(v, names...)
	if f == nil {
		return "", nil
	}
	if f.Type() != fastjson.TypeString {
		return "", fmt.Errorf("field %s: expected string, got %s", name, f.Type())
	}
	s, _ := f.StringBytes()
	return string(s), nil
}

func jsonBool(v *fastjson.Value, names ...string) (bool, error) {
	f, name := lookup(v, names...)
	if f == nil {
		return false, nil
	}
	switch f.Type() {
	case fastjson.TypeTrue:
		return true, nil
	case fastjson.TypeFalse:
		return false, nil
	default:
		return false, fmt.Errorf("field %s: expected bool, got %s", name, f.Type())
	}
}
