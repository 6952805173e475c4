package request

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/rs/zerolog/log"

	"github.com/lloydmeta/reqindex/internal/config"
	"github.com/lloydmeta/reqindex/internal/domain/item"
	"github.com/lloydmeta/reqindex/internal/domain/request"
	"github.com/lloydmeta/reqindex/internal/domain/tenant"
	"github.com/lloydmeta/reqindex/internal/infra/elasticsearch/common"
)

// Requests of each tenant live in their own index
const IndexPrefix = "circulation_requests"

const (
	defaultScrollSize = 100
	defaultScrollTtl  = time.Minute
)

// BuildIndexName returns the name of the index holding the Requests of the given tenant
func BuildIndexName(t tenant.Id) common.IndexName {
	return common.IndexName(fmt.Sprintf("%s-%s", IndexPrefix, string(t)))
}

type EsService struct {
	client         *elasticsearch.Client
	index          common.IndexName
	scrollPageSize uint
	scrollTtl      time.Duration
	refresh        string
}

func NewService(client *elasticsearch.Client, t tenant.Id, conf config.ElasticsearchClient) request.Service {
	scrollPageSize := conf.ScrollSize
	if scrollPageSize == 0 {
		scrollPageSize = defaultScrollSize
	}
	scrollTtl := conf.ScrollTtl
	if scrollTtl <= 0 {
		scrollTtl = defaultScrollTtl
	}
	return &EsService{
		client:         client,
		index:          BuildIndexName(t),
		scrollPageSize: scrollPageSize,
		scrollTtl:      scrollTtl,
		refresh:        conf.Refresh,
	}
}

func (e *EsService) Create(ctx context.Context, r *request.Request) (*request.Request, error) {
	toPersist := *r
	if len(toPersist.ID) == 0 {
		toPersist.ID = request.GenerateId()
	}
	toPersistBytes, err := request.MarshalDocument(&toPersist)
	if err != nil {
		return nil, common.JsonSerdesErr{Underlying: []error{err}}
	}
	req := esapi.CreateRequest{
		Index:      string(e.index),
		DocumentID: string(toPersist.ID),
		Body:       bytes.NewReader(toPersistBytes),
		Refresh:    e.refresh,
	}

	rawResp, err := req.Do(ctx, e.client)
	if err != nil {
		return nil, common.ElasticsearchErr{Underlying: err}
	}
	defer rawResp.Body.Close()
	statusCode := rawResp.StatusCode
	switch {
	case 200 <= statusCode && statusCode <= 299:
		var response common.EsWriteResponse
		if err := json.NewDecoder(rawResp.Body).Decode(&response); err != nil {
			return nil, common.JsonSerdesErr{Underlying: []error{err}}
		}
		toPersist.Metadata.Version = response.Version()
		return &toPersist, nil
	case statusCode == 409:
		return nil, request.AlreadyExists{ID: toPersist.ID}
	default:
		return nil, common.UnexpectedEsStatusError(rawResp)
	}
}

func (e *EsService) Get(ctx context.Context, id request.Id) (*request.Request, error) {
	req := esapi.GetRequest{
		Index:      string(e.index),
		DocumentID: string(id),
	}
	rawResp, err := req.Do(ctx, e.client)
	if err != nil {
		return nil, common.ElasticsearchErr{Underlying: err}
	}
	defer rawResp.Body.Close()

	switch rawResp.StatusCode {
	case 200:
		var resp common.EsHit
		if err := json.NewDecoder(rawResp.Body).Decode(&resp); err != nil {
			return nil, common.JsonSerdesErr{Underlying: []error{err}}
		}
		return hitToDomain(&resp)
	case 404:
		return nil, request.NotFound{ID: id}
	default:
		return nil, common.UnexpectedEsStatusError(rawResp)
	}
}

func (e *EsService) FindByItemId(ctx context.Context, itemId item.Id) ([]request.Request, error) {
	searchBody := buildByItemIdSearchBody(itemId, e.scrollPageSize)
	found := []request.Request{}
	var unreadable []request.UnreadableRequest
	err := e.scanRequests(ctx, searchBody, func(page *requestsWithScrollId) error {
		found = append(found, page.Requests...)
		unreadable = append(unreadable, page.Unreadable...)
		return nil
	})
	if err != nil {
		return nil, err
	} else if len(unreadable) > 0 {
		return found, request.UnreadableRequests{ItemID: itemId, Unreadable: unreadable}
	} else {
		return found, nil
	}
}

func (e *EsService) Update(ctx context.Context, update *request.Request) (*request.Request, error) {
	toPersistBytes, err := request.MarshalDocument(update)
	if err != nil {
		return nil, common.JsonSerdesErr{Underlying: []error{err}}
	}
	req := esapi.IndexRequest{
		Index:         string(e.index),
		DocumentID:    string(update.ID),
		Body:          bytes.NewReader(toPersistBytes),
		IfPrimaryTerm: esapi.IntPtr(int(update.Metadata.Version.PrimaryTerm)),
		IfSeqNo:       esapi.IntPtr(int(update.Metadata.Version.SeqNum)),
		Refresh:       e.refresh,
	}
	rawResp, err := req.Do(ctx, e.client)
	if err != nil {
		return nil, common.ElasticsearchErr{Underlying: err}
	}
	defer rawResp.Body.Close()
	respStatus := rawResp.StatusCode
	switch {
	case 200 <= respStatus && respStatus <= 299:
		// Updated, grab new metadata
		var resp common.EsWriteResponse
		if err := json.NewDecoder(rawResp.Body).Decode(&resp); err != nil {
			return nil, common.JsonSerdesErr{Underlying: []error{err}}
		}
		updated := *update
		updated.Metadata.Version = resp.Version()
		return &updated, nil
	case respStatus == 404:
		return nil, request.NotFound{ID: update.ID}
	case respStatus == 409:
		// Also returned when the doc has since been deleted: index with if_seq_no never creates
		return nil, request.InvalidVersion{ID: update.ID}
	default:
		return nil, common.UnexpectedEsStatusError(rawResp)
	}
}

// Scrolls through every Request matching the search, handing them over a page at a time.
// Hits that cannot be read are handed over alongside the readable ones, in Unreadable.
func (e *EsService) scanRequests(ctx context.Context, searchBody jsonObjMap, doWithBatch func(page *requestsWithScrollId) error) (err error) {
	log.Debug().Interface("searchBody", searchBody).Str("index", string(e.index)).Msg("Scanning requests")
	requestsWithScrollId, err := e.initSearch(ctx, searchBody)
	if err != nil {
		return err
	}
	if requestsWithScrollId == nil {
		// no index yet
		return nil
	}
	page := requestsWithScrollId
	var scrollIds []string
	scrollId := requestsWithScrollId.ScrollId
	scrollIds = append(scrollIds, scrollId)
	defer func() {
		if scrollErr := e.clearScroll(ctx, scrollIds); scrollErr != nil && err == nil {
			err = scrollErr
		}
	}()

	for page.hits() > 0 {
		if err := doWithBatch(page); err != nil {
			return err
		}
		nextRequestsWithScrollId, err := e.scroll(ctx, scrollId)
		if err != nil {
			return err
		}
		if nextRequestsWithScrollId == nil {
			return nil
		}
		page = nextRequestsWithScrollId
		scrollId = nextRequestsWithScrollId.ScrollId
		scrollIds = append(scrollIds, nextRequestsWithScrollId.ScrollId)
	}
	return nil
}

func (e *EsService) initSearch(ctx context.Context, searchBody jsonObjMap) (*requestsWithScrollId, error) {
	searchBodyBytes, err := json.Marshal(searchBody)
	if err != nil {
		return nil, common.JsonSerdesErr{Underlying: []error{err}}
	}
	searchReq := esapi.SearchRequest{
		Scroll:         e.scrollTtl,
		Index:          []string{string(e.index)},
		AllowNoIndices: esapi.BoolPtr(true),
		Body:           bytes.NewReader(searchBodyBytes),
	}

	rawResp, err := searchReq.Do(ctx, e.client)
	if err != nil {
		return nil, common.ElasticsearchErr{Underlying: err}
	}
	defer rawResp.Body.Close()
	return processScrollResp(rawResp)
}

func (e *EsService) scroll(ctx context.Context, scrollId string) (*requestsWithScrollId, error) {
	scrollReq := esapi.ScrollRequest{
		Scroll:   e.scrollTtl,
		ScrollID: scrollId,
	}

	rawResp, err := scrollReq.Do(ctx, e.client)
	if err != nil {
		return nil, common.ElasticsearchErr{Underlying: err}
	}
	defer rawResp.Body.Close()
	return processScrollResp(rawResp)
}

func processScrollResp(rawResp *esapi.Response) (*requestsWithScrollId, error) {
	switch rawResp.StatusCode {
	case 200:
		var scrollResp common.EsSearchScrollingResponse
		if err := json.NewDecoder(rawResp.Body).Decode(&scrollResp); err != nil {
			return nil, common.JsonSerdesErr{Underlying: []error{err}}
		}
		page := requestsWithScrollId{
			ScrollId: scrollResp.ScrollId,
			Requests: make([]request.Request, 0, len(scrollResp.Hits.Hits)),
		}
		for i := range scrollResp.Hits.Hits {
			hit := &scrollResp.Hits.Hits[i]
			r, invalid := decodeHit(hit)
			if invalid != nil {
				page.Unreadable = append(page.Unreadable, request.UnreadableRequest{ID: request.Id(hit.ID), Err: *invalid})
				continue
			}
			page.Requests = append(page.Requests, *r)
		}
		return &page, nil
	case 404:
		return nil, nil
	default:
		return nil, common.UnexpectedEsStatusError(rawResp)
	}
}

func (e *EsService) clearScroll(ctx context.Context, scrollIds []string) error {
	if len(scrollIds) > 0 {
		clearScrollReq := esapi.ClearScrollRequest{ScrollID: scrollIds}
		rawResp, err := clearScrollReq.Do(ctx, e.client)
		if err != nil {
			return err
		} else {
			defer rawResp.Body.Close()
			switch rawResp.StatusCode {
			case 200, 404:
				return nil
			default:
				return common.UnexpectedEsStatusError(rawResp)
			}
		}
	} else {
		return nil
	}
}

func buildByItemIdSearchBody(itemId item.Id, pageSize uint) jsonObjMap {
	return jsonObjMap{
		"size":                pageSize,
		"seq_no_primary_term": true,
		"sort":                []string{"_doc"},
		"query": jsonObjMap{
			"bool": jsonObjMap{
				"filter": []jsonObjMap{
					{
						"term": jsonObjMap{
							"itemId": string(itemId),
						},
					},
				},
			},
		},
	}
}

func hitToDomain(hit *common.EsHit) (*request.Request, error) {
	r, invalid := decodeHit(hit)
	if invalid != nil {
		return nil, *invalid
	}
	return r, nil
}

func decodeHit(hit *common.EsHit) (*request.Request, *request.InvalidPersistedData) {
	r, err := request.UnmarshalDocument(hit.Source, hit.Version())
	if err != nil {
		return nil, &request.InvalidPersistedData{PersistedData: string(hit.Source)}
	}
	if len(r.ID) == 0 {
		r.ID = request.Id(hit.ID)
	}
	return r, nil
}

type jsonObjMap map[string]interface{}

type requestsWithScrollId struct {
	ScrollId   string
	Requests   []request.Request
	Unreadable []request.UnreadableRequest
}

func (p *requestsWithScrollId) hits() int {
	return len(p.Requests) + len(p.Unreadable)
}
