package shared

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Reserved record keys. Everything else in the wire object is a domain field.
const (
	FieldID        = "id"
	FieldTenantID  = "tenantId"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// Record is the generic shape shared by every collection.
// Domain fields are free-form and validated only at the service layer.
type Record struct {
	ID        string
	TenantID  string
	CreatedAt string
	UpdatedAt string
	Fields    map[string]any
}

// NewRecordID returns a fresh record identifier. UUIDv7 combines a millisecond
// timestamp with random bits, so ids sort by creation time and are never reused.
func NewRecordID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Timestamp formats t the way records store their informational timestamps.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// NewRecord creates a record with the given fields and a fresh id
func NewRecord(fields map[string]any) Record {
	now := Timestamp(time.Now())
	r := Record{
		ID:        NewRecordID(),
		CreatedAt: now,
		UpdatedAt: now,
		Fields:    map[string]any{},
	}
	maps.Copy(r.Fields, fields)
	return r
}

// Get returns a domain field value
func (r Record) Get(key string) (any, bool) {
	if r.Fields == nil {
		return nil, false
	}
	v, ok := r.Fields[key]
	return v, ok
}

// GetString returns a domain field as a string, empty if absent or not a string
func (r Record) GetString(key string) string {
	v, ok := r.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Key returns the value used to match records on keyField.
func (r Record) Key(keyField string) string {
	switch keyField {
	case "", FieldID:
		return r.ID
	case FieldTenantID:
		return r.TenantID
	}
	v, ok := r.Get(keyField)
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Clone returns a deep copy of the record so callers can never alias store state.
func (r Record) Clone() Record {
	out := r
	out.Fields = cloneMap(r.Fields)
	return out
}

// Merge shallow-merges other's non-empty envelope values and all of its fields
// into a copy of r. Fields present in other replace those in r.
func (r Record) Merge(other Record) Record {
	out := r.Clone()
	if other.TenantID != "" {
		out.TenantID = other.TenantID
	}
	if other.CreatedAt != "" && out.CreatedAt == "" {
		out.CreatedAt = other.CreatedAt
	}
	if other.UpdatedAt != "" {
		out.UpdatedAt = other.UpdatedAt
	}
	if out.Fields == nil {
		out.Fields = map[string]any{}
	}
	for k, v := range other.Fields {
		out.Fields[k] = cloneValue(v)
	}
	return out
}

// Equal reports whether two records carry the same envelope and fields
func (r Record) Equal(other Record) bool {
	a, errA := json.Marshal(r)
	b, errB := json.Marshal(other)
	if errA != nil || errB != nil {
		return false
	}
	return string(a) == string(b)
}

// MarshalJSON flattens the record into a single JSON object
func (r Record) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(r.Fields)+4)
	for k, v := range r.Fields {
		obj[k] = v
	}
	obj[FieldID] = r.ID
	if r.TenantID != "" {
		obj[FieldTenantID] = r.TenantID
	}
	if r.CreatedAt != "" {
		obj[FieldCreatedAt] = r.CreatedAt
	}
	if r.UpdatedAt != "" {
		obj[FieldUpdatedAt] = r.UpdatedAt
	}
	return json.Marshal(obj)
}

// UnmarshalJSON reads a flat JSON object into the record
func (r *Record) UnmarshalJSON(data []byte) error {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj == nil {
		return fmt.Errorf("record must be a JSON object")
	}
	*r = Record{Fields: map[string]any{}}
	for k, v := range obj {
		switch k {
		case FieldID:
			r.ID = stringify(v)
		case FieldTenantID:
			r.TenantID = stringify(v)
		case FieldCreatedAt:
			r.CreatedAt = stringify(v)
		case FieldUpdatedAt:
			r.UpdatedAt = stringify(v)
		default:
			r.Fields[k] = v
		}
	}
	return nil
}

// RecordFrom converts a typed domain value into a record by round-tripping it
// through JSON. Envelope keys present on the value are lifted out of the fields.
func RecordFrom(v any) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode record: %w", err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("failed to decode record: %w", err)
	}
	return r, nil
}

// DecodeRecord fills a typed domain value from a record.
func DecodeRecord(r Record, v any) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode record %s: %w", r.ID, err)
	}
	return nil
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
