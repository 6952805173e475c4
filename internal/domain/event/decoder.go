package event

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lloydmeta/reqindex/internal/domain/item"
	"github.com/lloydmeta/reqindex/internal/domain/tenant"
)

// DecodeError is returned when a received message can never be turned into a Notification.
//
// Messages that fail to decode should be dropped rather than retried.
type DecodeError struct {
	Reason     string
	Underlying error
}

func (e DecodeError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("Could not decode notification, %s: %v", e.Reason, e.Underlying)
	}
	return fmt.Sprintf("Could not decode notification, %s", e.Reason)
}

func (e DecodeError) Unwrap() error {
	return e.Underlying
}

// Decode parses a raw message body and its transport headers into a Notification.
//
// The tenant header wins over the tenant in the body, but they must agree when both are set.
// Unknown change types and missing snapshots decode fine; use IsActionable to check whether
// there is anything to do.
func Decode(body []byte, headers map[string]string) (*Notification, error) {
	var envelope wireEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, DecodeError{Reason: "malformed body", Underlying: err}
	}
	if envelope.isEmpty() {
		return nil, DecodeError{Reason: "body is not an event envelope"}
	}

	tenantId, err := resolveTenant(envelope.Tenant, headers)
	if err != nil {
		return nil, err
	}

	return &Notification{
		Tenant: *tenantId,
		Type:   Type(strings.ToUpper(strings.TrimSpace(envelope.Type))),
		Old:    envelope.Old.toDomain(),
		New:    envelope.New.toDomain(),
	}, nil
}

func resolveTenant(bodyTenant string, headers map[string]string) (*tenant.Id, error) {
	headerTenant := strings.TrimSpace(lookupHeader(headers, TenantHeader))
	bodyTenant = strings.TrimSpace(bodyTenant)

	chosen := headerTenant
	switch {
	case len(headerTenant) == 0 && len(bodyTenant) == 0:
		return nil, DecodeError{Reason: "no tenant in headers or body"}
	case len(headerTenant) == 0:
		chosen = bodyTenant
	case len(bodyTenant) > 0 && bodyTenant != headerTenant:
		return nil, DecodeError{Reason: fmt.Sprintf("tenant header [%s] does not match body tenant [%s]", headerTenant, bodyTenant)}
	}
	tenantId, err := tenant.IdFromString(chosen)
	if err != nil {
		return nil, DecodeError{Reason: "invalid tenant", Underlying: err}
	}
	return tenantId, nil
}

// Header names are matched case-insensitively
func lookupHeader(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Private wire structures for the inventory event payload

type wireEnvelope struct {
	Tenant string    `json:"tenant"`
	Type   string    `json:"type"`
	Old    *wireItem `json:"old"`
	New    *wireItem `json:"new"`
}

func (e *wireEnvelope) isEmpty() bool {
	return len(e.Tenant) == 0 && len(e.Type) == 0 && e.Old == nil && e.New == nil
}

type wireStatus struct {
	Name string `json:"name"`
}

type wireCallNumberComponents struct {
	Prefix     *string `json:"prefix"`
	CallNumber *string `json:"callNumber"`
	Suffix     *string `json:"suffix"`
}

type wireItem struct {
	ID                            string                    `json:"id"`
	HoldingsRecordID              string                    `json:"holdingsRecordId"`
	Status                        *wireStatus               `json:"status"`
	Barcode                       *string                   `json:"barcode"`
	EffectiveShelvingOrder        *string                   `json:"effectiveShelvingOrder"`
	EffectiveCallNumberComponents *wireCallNumberComponents `json:"effectiveCallNumberComponents"`
}

func (w *wireItem) toDomain() *item.Item {
	if w == nil {
		return nil
	}
	i := item.Item{
		ID:                     item.Id(w.ID),
		HoldingsRecordID:       w.HoldingsRecordID,
		Barcode:                w.Barcode,
		EffectiveShelvingOrder: w.EffectiveShelvingOrder,
	}
	if w.Status != nil {
		i.Status = item.Status{Name: w.Status.Name}
	}
	if c := w.EffectiveCallNumberComponents; c != nil {
		i.EffectiveCallNumberComponents = &item.CallNumberComponents{
			Prefix:     c.Prefix,
			CallNumber: c.CallNumber,
			Suffix:     c.Suffix,
		}
	}
	return &i
}
