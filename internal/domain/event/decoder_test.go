package event

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lloydmeta/reqindex/internal/domain/item"
)

const updateBody = `{
	"tenant": "diku",
	"type": "UPDATE",
	"old": {
		"id": "9428231b-dd31-4f70-8406-fe22fbdeabc5",
		"holdingsRecordId": "e3ff6133-b9a2-4d4c-a1c9-dc1867d4df19",
		"status": {"name": "Paged"},
		"barcode": "565578437802",
		"effectiveShelvingOrder": "OLD_SO",
		"effectiveCallNumberComponents": {"prefix": "OLD_PFX", "callNumber": "OLD_CN", "suffix": "OLD_SFX"}
	},
	"new": {
		"id": "9428231b-dd31-4f70-8406-fe22fbdeabc5",
		"holdingsRecordId": "e3ff6133-b9a2-4d4c-a1c9-dc1867d4df19",
		"status": {"name": "Paged"},
		"barcode": "565578437802",
		"effectiveShelvingOrder": "OLD_SO",
		"effectiveCallNumberComponents": {"prefix": "NEW_PFX", "callNumber": "OLD_CN"}
	}
}`

func TestDecode_update(t *testing.T) {
	n, err := Decode([]byte(updateBody), map[string]string{TenantHeader: "diku"})
	require.NoError(t, err)

	assert.EqualValues(t, "diku", n.Tenant)
	assert.Equal(t, UPDATE, n.Type)
	assert.True(t, n.IsActionable())
	assert.EqualValues(t, "9428231b-dd31-4f70-8406-fe22fbdeabc5", n.ItemId())
	assert.Equal(t, "Paged", n.Old.Status.Name)
	assert.Equal(t, "565578437802", *n.New.Barcode)
	assert.Equal(t, "OLD_PFX", *n.Old.EffectiveCallNumberComponents.Prefix)
	assert.Equal(t, "NEW_PFX", *n.New.EffectiveCallNumberComponents.Prefix)
	assert.Nil(t, n.New.EffectiveCallNumberComponents.Suffix)
	assert.Equal(t, []item.Attribute{item.CallNumberPrefix, item.CallNumberSuffix}, item.ChangedAttributes(n.Old, n.New))
}

func TestDecode_nonActionable(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing new", `{"tenant": "diku", "type": "UPDATE", "old": {"id": "a"}}`},
		{"null new", `{"tenant": "diku", "type": "UPDATE", "old": {"id": "a"}, "new": null}`},
		{"missing old", `{"tenant": "diku", "type": "UPDATE", "new": {"id": "a"}}`},
		{"unknown type", `{"tenant": "diku", "type": "MIGRATE", "old": {"id": "a"}, "new": {"id": "a"}}`},
		{"create", `{"tenant": "diku", "type": "CREATE", "new": {"id": "a"}}`},
		{"delete", `{"tenant": "diku", "type": "DELETE", "old": {"id": "a"}}`},
		{"different ids", `{"tenant": "diku", "type": "UPDATE", "old": {"id": "a"}, "new": {"id": "b"}}`},
		{"no id", `{"tenant": "diku", "type": "UPDATE", "old": {}, "new": {}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := Decode([]byte(tt.body), nil)
			require.NoError(t, err)
			assert.False(t, n.IsActionable())
		})
	}
}

func TestDecode_lowerCaseTypeIsAccepted(t *testing.T) {
	n, err := Decode([]byte(`{"tenant": "diku", "type": "update", "old": {"id": "a"}, "new": {"id": "a"}}`), nil)
	require.NoError(t, err)
	assert.True(t, n.IsActionable())
}

func TestDecode_failures(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		headers map[string]string
	}{
		{"not json", `not json at all`, nil},
		{"truncated", `{"tenant": "diku", "type": "UPD`, nil},
		{"array", `[1, 2, 3]`, nil},
		{"null", `null`, nil},
		{"empty object", `{}`, nil},
		{"wrong snapshot type", `{"tenant": "diku", "type": "UPDATE", "old": "a", "new": "b"}`, nil},
		{"no tenant", `{"type": "UPDATE", "old": {"id": "a"}, "new": {"id": "a"}}`, nil},
		{"invalid tenant", `{"tenant": "Not-Valid", "type": "UPDATE", "old": {"id": "a"}, "new": {"id": "a"}}`, nil},
		{"tenant mismatch", `{"tenant": "diku", "type": "UPDATE", "old": {"id": "a"}, "new": {"id": "a"}}`, map[string]string{TenantHeader: "college"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := Decode([]byte(tt.body), tt.headers)
			assert.Nil(t, n)
			var decodeErr DecodeError
			assert.True(t, errors.As(err, &decodeErr), "expected a DecodeError, got %v", err)
		})
	}
}

func TestDecode_tenantResolution(t *testing.T) {
	body := []byte(`{"type": "UPDATE", "old": {"id": "a"}, "new": {"id": "a"}}`)

	n, err := Decode(body, map[string]string{"x-okapi-tenant": "college"})
	require.NoError(t, err)
	assert.EqualValues(t, "college", n.Tenant)

	withBodyTenant := []byte(`{"tenant": "diku", "type": "UPDATE", "old": {"id": "a"}, "new": {"id": "a"}}`)
	n, err = Decode(withBodyTenant, map[string]string{TenantHeader: "diku"})
	require.NoError(t, err)
	assert.EqualValues(t, "diku", n.Tenant)

	n, err = Decode(withBodyTenant, map[string]string{})
	require.NoError(t, err)
	assert.EqualValues(t, "diku", n.Tenant)
}

func TestTopicName(t *testing.T) {
	assert.Equal(t, "folio.diku.inventory.item", TopicName("folio", "diku"))
}

func TestTenantFromTopic(t *testing.T) {
	tests := []struct {
		topic  string
		tenant string
		ok     bool
	}{
		{"folio.diku.inventory.item", "diku", true},
		{TopicName("prod.eu", "college"), "college", true},
		{"folio..inventory.item", "", false},
		{"diku.inventory.item", "", false},
		{"folio.diku.inventory.holdings", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			tenantId, ok := TenantFromTopic(tt.topic)
			assert.Equal(t, tt.ok, ok)
			assert.EqualValues(t, tt.tenant, tenantId)
		})
	}
}

func TestConsumerGroupId(t *testing.T) {
	assert.Equal(t,
		"INVENTORY_ITEM_UPDATED.mod-circulation-storage-17.1.0",
		ConsumerGroupId(InventoryItemUpdated, "mod_circulation_storage", "17.1.0"),
	)
}

func TestNotification_ItemId(t *testing.T) {
	assert.EqualValues(t, "", (&Notification{}).ItemId())
	assert.EqualValues(t, "old", (&Notification{Old: &item.Item{ID: "old"}}).ItemId())
	assert.EqualValues(t, "new", (&Notification{Old: &item.Item{ID: "old"}, New: &item.Item{ID: "new"}}).ItemId())
	var nilNotification *Notification
	assert.False(t, nilNotification.IsActionable())
}

func TestEncode_isReadByDecode(t *testing.T) {
	so := "NEW_SO"
	prefix := "PFX"
	n := Notification{
		Tenant: "diku",
		Type:   UPDATE,
		Old:    &item.Item{ID: "a", Status: item.Status{Name: "Paged"}},
		New: &item.Item{
			ID:                            "a",
			Status:                        item.Status{Name: "Paged"},
			EffectiveShelvingOrder:        &so,
			EffectiveCallNumberComponents: &item.CallNumberComponents{Prefix: &prefix},
		},
	}
	body, err := Encode(&n)
	require.NoError(t, err)

	decoded, err := Decode(body, n.Headers())
	require.NoError(t, err)
	assert.Equal(t, n, *decoded)
	assert.Equal(t, []item.Attribute{item.CallNumberPrefix, item.ShelvingOrder}, item.ChangedAttributes(decoded.Old, decoded.New))
}
