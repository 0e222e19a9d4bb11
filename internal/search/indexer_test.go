package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/dd-repo/hp/internal/client"
	"github.com/dd-repo/hp/internal/config"
	"github.com/dd-repo/hp/internal/models"
	"github.com/dd-repo/hp/internal/util"
)

type indexedDoc struct {
	method string
	path   string
	body   map[string]interface{}
}

// fakeElasticsearch answers the minimal API surface the indexer touches and
// records every document write.
type fakeElasticsearch struct {
	mu   sync.Mutex
	docs []indexedDoc
}

func (f *fakeElasticsearch) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// The v8 client refuses servers without the product header.
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.URL.Path == "/":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"version": map[string]interface{}{"number": "8.19.0"},
			})
		case strings.Contains(r.URL.Path, "/_doc/"):
			var body map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.mu.Lock()
			f.docs = append(f.docs, indexedDoc{method: r.Method, path: r.URL.Path, body: body})
			f.mu.Unlock()
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": "created"})
		case strings.HasSuffix(r.URL.Path, "/_search"):
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"hits": map[string]interface{}{
					"hits": []map[string]interface{}{
						{"_id": "AAAA1111"},
						{"_id": "BBBB2222"},
					},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}
}

func (f *fakeElasticsearch) documents() []indexedDoc {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]indexedDoc(nil), f.docs...)
}

func newTestIndexer(t *testing.T) (*Indexer, *fakeElasticsearch) {
	t.Helper()

	fake := &fakeElasticsearch{}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		Environment:   "development",
		Elasticsearch: config.ElasticsearchConfig{URL: srv.URL},
	}
	esClient, err := client.NewElasticsearchClient(cfg, util.Get())
	if err != nil {
		t.Fatalf("elasticsearch client: %v", err)
	}
	return NewIndexer(esClient), fake
}

func TestIndexGpgKeyWritesDocument(t *testing.T) {
	indexer, fake := newTestIndexer(t)

	key := &models.GpgKey{
		Fingerprint: "ABCD1234EFGH5678",
		Username:    "alice",
		Email:       "alice@example.com",
	}
	if err := indexer.IndexGpgKey(context.Background(), key); err != nil {
		t.Fatalf("IndexGpgKey: %v", err)
	}

	docs := fake.documents()
	if len(docs) != 1 {
		t.Fatalf("indexed %d documents, want 1", len(docs))
	}
	if docs[0].path != "/"+GpgKeysIndex+"/_doc/ABCD1234EFGH5678" {
		t.Errorf("document path = %q", docs[0].path)
	}
	if docs[0].body["fingerprint"] != "ABCD1234EFGH5678" || docs[0].body["username"] != "alice" {
		t.Errorf("document body = %v", docs[0].body)
	}
}

func TestReindexGpgKeysIndexesEveryKey(t *testing.T) {
	indexer, fake := newTestIndexer(t)

	keys := []*models.GpgKey{
		{Fingerprint: "AAAA1111", Username: "alice", Email: "alice@example.com"},
		{Fingerprint: "BBBB2222", Username: "bob", Email: "bob@example.com"},
		{Fingerprint: "CCCC3333", Username: "carol", Email: "carol@example.com"},
	}
	if err := indexer.ReindexGpgKeys(context.Background(), keys); err != nil {
		t.Fatalf("ReindexGpgKeys: %v", err)
	}

	docs := fake.documents()
	if len(docs) != 3 {
		t.Fatalf("indexed %d documents, want 3", len(docs))
	}
	for _, doc := range docs {
		if !strings.HasPrefix(doc.path, "/"+GpgKeysIndex+"/_doc/") {
			t.Errorf("document path = %q", doc.path)
		}
	}
}

func TestReindexUsersIndexesEveryUser(t *testing.T) {
	indexer, fake := newTestIndexer(t)

	users := []*models.User{
		{Username: "alice", Email: "alice@example.com"},
		{Username: "bob", Email: "bob@example.com"},
	}
	if err := indexer.ReindexUsers(context.Background(), users); err != nil {
		t.Fatalf("ReindexUsers: %v", err)
	}

	if docs := fake.documents(); len(docs) != 2 {
		t.Fatalf("indexed %d documents, want 2", len(docs))
	}
}

func TestSearchGpgKeysReturnsHitIDs(t *testing.T) {
	indexer, _ := newTestIndexer(t)

	ids, err := indexer.SearchGpgKeys(context.Background(), "alice")
	if err != nil {
		t.Fatalf("SearchGpgKeys: %v", err)
	}
	if len(ids) != 2 || ids[0] != "AAAA1111" || ids[1] != "BBBB2222" {
		t.Errorf("ids = %v", ids)
	}
}
