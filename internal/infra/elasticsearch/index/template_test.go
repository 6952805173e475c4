package index

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"strings"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(req *http.Request) (int, string)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	status, body := f(req)
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       ioutil.NopCloser(strings.NewReader(body)),
		Request:    req,
	}, nil
}

func buildSetup(t *testing.T, respond roundTripFunc) TemplatesSetup {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{"http://es.local:9200"},
		Transport: respond,
	})
	require.NoError(t, err)
	return DefaultTemplateSetup(client)
}

func TestRequestsTemplate(t *testing.T) {
	asBytes, err := json.Marshal(&RequestsTemplate)
	require.NoError(t, err)
	var rendered map[string]interface{}
	require.NoError(t, json.Unmarshal(asBytes, &rendered))
	assert.Equal(t, []interface{}{"circulation_requests-*"}, rendered["index_patterns"])
	assert.NotContains(t, rendered, "name")
	properties := rendered["mappings"].(map[string]interface{})["properties"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"type": "keyword"}, properties["itemId"])
}

func TestTemplatesSetup_Check(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{
			name:    "installed",
			status:  200,
			body:    `{"circulation_requests_index_template": {"index_patterns": ["circulation_requests-*"]}}`,
			wantErr: nil,
		},
		{
			name:    "none installed",
			status:  404,
			body:    `{}`,
			wantErr: TemplatesNotInstalled{NotInstalled: []string{"circulation_requests_index_template"}},
		},
		{
			name:    "others installed",
			status:  200,
			body:    `{"something_else": {}}`,
			wantErr: TemplatesNotInstalled{NotInstalled: []string{"circulation_requests_index_template"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setup := buildSetup(t, func(req *http.Request) (int, string) {
				return tt.status, tt.body
			})
			assert.Equal(t, tt.wantErr, setup.Check(context.Background()))
		})
	}
}

func TestTemplatesSetup_Run(t *testing.T) {
	var puts []string
	setup := buildSetup(t, func(req *http.Request) (int, string) {
		if req.Method == http.MethodPut {
			puts = append(puts, req.URL.Path)
			return 200, `{"acknowledged": true}`
		}
		return 400, `{}`
	})
	require.NoError(t, setup.Run(context.Background()))
	assert.Equal(t, []string{"/_template/circulation_requests_index_template"}, puts)

	failing := buildSetup(t, func(req *http.Request) (int, string) {
		return 500, `{"error": "boom"}`
	})
	err := failing.Run(context.Background())
	assert.IsType(t, PutTemplateErrors{}, err)
}
