// Package search mirrors application records into Elasticsearch for the back-office listing.
// The index is a read model: it is fed from committed transition events and never consulted by
// the lifecycle engine.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"admissions-engine/internal/common/errors"
	"admissions-engine/internal/common/logger"
	"admissions-engine/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const indexMapping = `{
  "mappings": {
    "properties": {
      "id":             {"type": "keyword"},
      "category":       {"type": "keyword"},
      "status":         {"type": "keyword"},
      "offeringRef":    {"type": "keyword"},
      "applicantName":  {"type": "text"},
      "applicantEmail": {"type": "keyword"},
      "paymentState":   {"type": "keyword"},
      "decidedBy":      {"type": "keyword"},
      "decidedAt":      {"type": "date"},
      "hasCredential":  {"type": "boolean"},
      "pendingEffects": {"type": "integer"},
      "parkedEffects":  {"type": "integer"},
      "createdAt":      {"type": "date"},
      "updatedAt":      {"type": "date"}
    }
  }
}`

// Document is the indexed projection of an ApplicationRecord.
type Document struct {
	ID             string     `json:"id"`
	Category       string     `json:"category"`
	Status         string     `json:"status"`
	OfferingRef    string     `json:"offeringRef"`
	ApplicantName  string     `json:"applicantName"`
	ApplicantEmail string     `json:"applicantEmail"`
	PaymentState   string     `json:"paymentState"`
	DecidedBy      string     `json:"decidedBy,omitempty"`
	DecidedAt      *time.Time `json:"decidedAt,omitempty"`
	HasCredential  bool       `json:"hasCredential"`
	PendingEffects int        `json:"pendingEffects"`
	ParkedEffects  int        `json:"parkedEffects"`
	Version        int64      `json:"version"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func documentFor(rec *models.ApplicationRecord) Document {
	return Document{
		ID:             rec.ID,
		Category:       string(rec.Category),
		Status:         string(rec.Status),
		OfferingRef:    rec.OfferingRef,
		ApplicantName:  rec.Applicant.Name,
		ApplicantEmail: rec.Applicant.Email,
		PaymentState:   string(rec.PaymentState),
		DecidedBy:      rec.DecidedBy,
		DecidedAt:      rec.DecidedAt,
		HasCredential:  rec.AccessCredential != nil,
		PendingEffects: len(rec.PendingEffects),
		ParkedEffects:  len(rec.ParkedEffects),
		Version:        rec.Version,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}

const defaultQueueSize = 1024

// Indexer writes records to one Elasticsearch index.
type Indexer struct {
	client  *elasticsearch.Client
	index   string
	timeout time.Duration
	queue   chan *models.ApplicationRecord
	logger  logger.Logger
}

func NewIndexer(client *elasticsearch.Client, index string, log logger.Logger) *Indexer {
	return &Indexer{
		client:  client,
		index:   index,
		timeout: 5 * time.Second,
		queue:   make(chan *models.ApplicationRecord, defaultQueueSize),
		logger:  log.WithFields(map[string]interface{}{"component": "search-indexer", "index": index}),
	}
}

// EnsureIndex creates the index with its mapping when it does not exist yet.
func (i *Indexer) EnsureIndex(ctx context.Context) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{i.index}}.Do(ctx, i.client)
	if err != nil {
		return errors.NewInfrastructureError("search.exists", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = esapi.IndicesCreateRequest{
		Index: i.index,
		Body:  bytes.NewReader([]byte(indexMapping)),
	}.Do(ctx, i.client)
	if err != nil {
		return errors.NewInfrastructureError("search.create_index", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return errors.NewInfrastructureError("search.create_index", responseError(res))
	}
	return nil
}

// IndexRecord upserts the record's projection. Older versions never overwrite newer ones.
func (i *Indexer) IndexRecord(ctx context.Context, rec *models.ApplicationRecord) error {
	body, err := json.Marshal(documentFor(rec))
	if err != nil {
		return errors.NewInfrastructureError("search.encode", err)
	}

	version := int(rec.Version)
	res, err := esapi.IndexRequest{
		Index:       i.index,
		DocumentID:  rec.ID,
		Body:        bytes.NewReader(body),
		Version:     &version,
		VersionType: "external_gte",
	}.Do(ctx, i.client)
	if err != nil {
		return errors.NewInfrastructureError("search.index", err)
	}
	defer res.Body.Close()

	// 409 means a newer version is already indexed
	if res.IsError() && res.StatusCode != http.StatusConflict {
		return errors.NewInfrastructureError("search.index", responseError(res))
	}
	return nil
}

// HandleTransition is registered with the engine's OnTransition. It only queues the record, so a
// slow cluster never holds up the transition that produced it. When the queue is full the event is
// dropped; the index catches up on the record's next transition.
func (i *Indexer) HandleTransition(ev models.TransitionEvent) {
	select {
	case i.queue <- ev.Record:
	default:
		i.logger.Warn("search queue full, dropping index update", map[string]interface{}{
			"applicationId": ev.Record.ID,
			"action":        ev.Action,
		})
	}
}

// Run indexes queued records one at a time until ctx is done.
func (i *Indexer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-i.queue:
			i.indexQueued(ctx, rec)
		}
	}
}

func (i *Indexer) indexQueued(ctx context.Context, rec *models.ApplicationRecord) {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	if err := i.IndexRecord(ctx, rec); err != nil {
		i.logger.Warn("failed to index application", map[string]interface{}{
			"applicationId": rec.ID,
			"version":       rec.Version,
			"error":         err,
		})
	}
}

// Query filters the listing. Empty fields are ignored.
type Query struct {
	Text        string
	Category    models.Category
	Status      models.Status
	OfferingRef string
	Size        int
}

// Search returns matching documents, newest first.
func (i *Indexer) Search(ctx context.Context, q Query) ([]Document, error) {
	body, err := json.Marshal(buildSearch(q))
	if err != nil {
		return nil, errors.NewInfrastructureError("search.encode", err)
	}

	res, err := i.client.Search(
		i.client.Search.WithContext(ctx),
		i.client.Search.WithIndex(i.index),
		i.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, errors.NewInfrastructureError("search.query", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, errors.NewInfrastructureError("search.query", responseError(res))
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source Document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, errors.NewInfrastructureError("search.decode", err)
	}

	out := make([]Document, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}

func buildSearch(q Query) map[string]interface{} {
	var filters []interface{}
	term := func(field, value string) {
		if value != "" {
			filters = append(filters, map[string]interface{}{"term": map[string]interface{}{field: value}})
		}
	}
	term("category", string(q.Category))
	term("status", string(q.Status))
	term("offeringRef", q.OfferingRef)

	boolQuery := map[string]interface{}{"filter": filters}
	if q.Text != "" {
		boolQuery["must"] = []interface{}{
			map[string]interface{}{
				"multi_match": map[string]interface{}{
					"query":  q.Text,
					"fields": []string{"applicantName", "applicantEmail", "id"},
				},
			},
		}
	}
	if filters == nil {
		boolQuery["filter"] = []interface{}{}
	}

	size := q.Size
	if size <= 0 {
		size = 50
	}
	return map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
		"sort":  []interface{}{map[string]interface{}{"createdAt": "desc"}},
		"size":  size,
	}
}

func responseError(res *esapi.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return fmt.Errorf("elasticsearch %s: %s", res.Status(), bytes.TrimSpace(raw))
}
