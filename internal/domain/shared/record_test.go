package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_JSONRoundTrip(t *testing.T) {
	r := Record{
		ID:        "c-1",
		TenantID:  "agency-a",
		CreatedAt: "2026-01-01T00:00:00Z",
		Fields:    map[string]any{"name": "Ana", "phone": "555"},
	}

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var obj map[string]any
	require.NoError(t, json.Unmarshal(data, &obj))
	assert.Equal(t, "c-1", obj["id"])
	assert.Equal(t, "agency-a", obj["tenantId"])
	assert.Equal(t, "Ana", obj["name"])
	assert.NotContains(t, obj, "updatedAt")

	var back Record
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, r.Equal(back))
	assert.NotContains(t, back.Fields, "id")
}

func TestRecord_UnmarshalRejectsNonObject(t *testing.T) {
	var r Record
	assert.Error(t, json.Unmarshal([]byte(`null`), &r))
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &r))
}

func TestRecord_MergeIsShallowAndDoesNotAlias(t *testing.T) {
	base := Record{ID: "1", TenantID: "t", Fields: map[string]any{
		"name":  "Ana",
		"email": "ana@example.com",
		"tags":  []any{"vip"},
	}}
	patch := Record{ID: "1", Fields: map[string]any{"name": "Ana María"}}

	merged := base.Merge(patch)
	assert.Equal(t, "Ana María", merged.GetString("name"))
	assert.Equal(t, "ana@example.com", merged.GetString("email"))
	assert.Equal(t, "t", merged.TenantID)

	merged.Fields["tags"].([]any)[0] = "changed"
	assert.Equal(t, "vip", base.Fields["tags"].([]any)[0])
}

func TestRecord_Key(t *testing.T) {
	r := Record{ID: "1", TenantID: "t", Fields: map[string]any{"code": "Q-9", "n": float64(3)}}

	assert.Equal(t, "1", r.Key(""))
	assert.Equal(t, "1", r.Key("id"))
	assert.Equal(t, "Q-9", r.Key("code"))
	assert.Equal(t, "3", r.Key("n"))
	assert.Equal(t, "", r.Key("missing"))
}

func TestRecordFrom_LiftsEnvelope(t *testing.T) {
	type client struct {
		ID       string `json:"id"`
		TenantID string `json:"tenantId"`
		Name     string `json:"name"`
	}

	r, err := RecordFrom(client{ID: "x", TenantID: "t", Name: "Luis"})
	require.NoError(t, err)
	assert.Equal(t, "x", r.ID)
	assert.Equal(t, "t", r.TenantID)
	assert.Equal(t, map[string]any{"name": "Luis"}, r.Fields)

	var out client
	require.NoError(t, DecodeRecord(r, &out))
	assert.Equal(t, "Luis", out.Name)
	assert.Equal(t, "x", out.ID)
}

func TestNewRecordID_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id := NewRecordID()
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestDomainError_Is(t *testing.T) {
	err := fmt.Errorf("saving plan: %w", NewDomainError(CodeNotFound, "plan p-1 not found"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrValidationFailed))
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	p := Paginate(items, Filter{Page: 2, PageSize: 2})
	assert.Equal(t, []int{3, 4}, p.Items)
	assert.Equal(t, int64(5), p.Total)
	assert.Equal(t, 3, p.TotalPages)

	p = Paginate(items, Filter{Page: 9, PageSize: 2})
	assert.Empty(t, p.Items)
}

func TestCollection_Parse(t *testing.T) {
	c, ok := ParseCollection("payment-plans")
	require.True(t, ok)
	assert.Equal(t, CollectionPaymentPlans, c)

	c, ok = ParseCollection("paymentPlans")
	require.True(t, ok)
	assert.Equal(t, "payment-plans", c.RemotePath())

	_, ok = ParseCollection("invoices")
	assert.False(t, ok)
}
