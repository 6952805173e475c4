package event

import (
	"fmt"
	"strings"

	"github.com/lloydmeta/reqindex/internal/domain/item"
	"github.com/lloydmeta/reqindex/internal/domain/tenant"
)

// TenantHeader is the transport header carrying the tenant a notification belongs to
const TenantHeader = "X-Okapi-Tenant"

// Type of change described by a Notification
type Type string

const (
	CREATE     Type = "CREATE"
	UPDATE     Type = "UPDATE"
	DELETE     Type = "DELETE"
	DELETE_ALL Type = "DELETE_ALL"
)

// Name of a kind of event we consume; used to derive consumer group ids
type Name string

const InventoryItemUpdated Name = "INVENTORY_ITEM_UPDATED"

// Notification describes the before and after state of an inventory Item.
//
// Only UPDATE notifications carrying both snapshots of the same Item are acted upon; anything
// else is accepted but ignored.
type Notification struct {
	Tenant tenant.Id
	Type   Type
	Old    *item.Item
	New    *item.Item
}

// IsActionable returns true if the Notification is an update we can synchronise from
func (n *Notification) IsActionable() bool {
	return n != nil &&
		n.Type == UPDATE &&
		n.Old != nil &&
		n.New != nil &&
		len(n.New.ID) > 0 &&
		n.Old.ID == n.New.ID
}

// ItemId returns the id of the Item the Notification is about
func (n *Notification) ItemId() item.Id {
	if n.New != nil {
		return n.New.ID
	}
	if n.Old != nil {
		return n.Old.ID
	}
	return ""
}

// TopicName returns the topic inventory publishes Item events on for the given tenant
//
// e.g. folio.diku.inventory.item
func TopicName(environment string, t tenant.Id) string {
	return fmt.Sprintf("%s.%s.inventory.item", environment, string(t))
}

// TenantFromTopic is the inverse of TopicName. ok is false for topics not named that way.
func TenantFromTopic(topic string) (t tenant.Id, ok bool) {
	parts := strings.Split(topic, ".")
	if len(parts) < 4 || parts[len(parts)-2] != "inventory" || parts[len(parts)-1] != "item" {
		return "", false
	}
	t = tenant.Id(parts[len(parts)-3])
	if len(t) == 0 {
		return "", false
	}
	return t, true
}

// ConsumerGroupId derives the consumer group for an event from the module name and version,
// so that independently deployed versions of the module never share offsets.
//
// e.g. INVENTORY_ITEM_UPDATED.mod-circulation-storage-17.1.0
func ConsumerGroupId(name Name, moduleName string, moduleVersion string) string {
	return fmt.Sprintf("%s.%s-%s", string(name), strings.ReplaceAll(moduleName, "_", "-"), moduleVersion)
}
