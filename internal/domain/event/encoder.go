package event

import (
	"encoding/json"
	"strings"

	"github.com/lloydmeta/reqindex/internal/domain/item"
)

// Encode renders the Notification in the same envelope format Decode reads
func Encode(n *Notification) ([]byte, error) {
	envelope := wireEnvelope{
		Tenant: string(n.Tenant),
		Type:   strings.ToUpper(string(n.Type)),
		Old:    fromDomain(n.Old),
		New:    fromDomain(n.New),
	}
	return json.Marshal(&envelope)
}

// Headers returns the transport headers that should accompany the encoded Notification
func (n *Notification) Headers() map[string]string {
	return map[string]string{TenantHeader: string(n.Tenant)}
}

func fromDomain(i *item.Item) *wireItem {
	if i == nil {
		return nil
	}
	w := wireItem{
		ID:                     string(i.ID),
		HoldingsRecordID:       i.HoldingsRecordID,
		Barcode:                i.Barcode,
		EffectiveShelvingOrder: i.EffectiveShelvingOrder,
	}
	if len(i.Status.Name) > 0 {
		w.Status = &wireStatus{Name: i.Status.Name}
	}
	if c := i.EffectiveCallNumberComponents; c != nil {
		w.EffectiveCallNumberComponents = &wireCallNumberComponents{
			Prefix:     c.Prefix,
			CallNumber: c.CallNumber,
			Suffix:     c.Suffix,
		}
	}
	return &w
}
