// common contains models that are common to ES operations
package common

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/lloydmeta/reqindex/internal/domain/metadata"
)

type IndexName string
type DocumentID string

type ElasticsearchErr struct {
	Underlying error
}

func (e ElasticsearchErr) Error() string {
	return fmt.Sprintf("Error from Elasticsearch: %v", e.Underlying)
}

func (e ElasticsearchErr) Unwrap() error {
	return e.Underlying
}

type JsonSerdesErr struct {
	Underlying []error
}

func (e JsonSerdesErr) Error() string {
	return fmt.Sprintf("Error working with JSON: %v", e.Underlying)
}

func (e JsonSerdesErr) Unwrap() error {
	if len(e.Underlying) == 1 {
		return e.Underlying[0]
	} else {
		return fmt.Errorf("Multiple JSON serdes errors: [%v]", e.Underlying)
	}
}

func UnexpectedEsStatusError(rawResp *esapi.Response) ElasticsearchErr {
	var buf bytes.Buffer
	var body string
	if _, err := buf.ReadFrom(rawResp.Body); err == nil {
		body = buf.String()
	}
	return ElasticsearchErr{Underlying: fmt.Errorf("Unexpected status from ES: [%d], body: [%s]", rawResp.StatusCode, body)}
}

// EsWriteResponse is what ES responds with after creating or indexing a document
type EsWriteResponse struct {
	Index       string `json:"_index"`
	ID          string `json:"_id"`
	SeqNum      uint64 `json:"_seq_no"`
	PrimaryTerm uint64 `json:"_primary_term"`
	Result      string `json:"result"`
}

func (r *EsWriteResponse) Version() metadata.Version {
	return metadata.Version{
		SeqNum:      metadata.SeqNum(r.SeqNum),
		PrimaryTerm: metadata.PrimaryTerm(r.PrimaryTerm),
	}
}

// EsHit is a document as returned by get and search APIs, with its source left raw
type EsHit struct {
	ID          string          `json:"_id"`
	Index       string          `json:"_index"`
	SeqNum      uint64          `json:"_seq_no"`
	PrimaryTerm uint64          `json:"_primary_term"`
	Found       *bool           `json:"found,omitempty"`
	Source      json.RawMessage `json:"_source"`
}

func (h *EsHit) Version() metadata.Version {
	return metadata.Version{
		SeqNum:      metadata.SeqNum(h.SeqNum),
		PrimaryTerm: metadata.PrimaryTerm(h.PrimaryTerm),
	}
}

type EsSearchScrollingResponse struct {
	Hits struct {
		Hits []EsHit `json:"hits"`
	} `json:"hits"`
	ScrollId string `json:"_scroll_id"`
}
