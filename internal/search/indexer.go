package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dd-repo/hp/internal/client"
	"github.com/dd-repo/hp/internal/models"
	"github.com/dd-repo/hp/internal/util"
)

const (
	UsersIndex         = "hp-users"
	GpgKeysIndex       = "hp-gpgkeys"
	ConfirmationsIndex = "hp-confirmations"

	reindexConcurrency = 8
)

// Indexer maintains the Elasticsearch documents backing admin text search.
// Documents only carry the searchable fields; the row itself always comes
// from Scylla.
type Indexer struct {
	es *client.ESClient
}

func NewIndexer(esClient *client.ESClient) *Indexer {
	return &Indexer{es: esClient}
}

type userDocument struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type gpgKeyDocument struct {
	Fingerprint string `json:"fingerprint"`
	Username    string `json:"username"`
	Email       string `json:"email"`
}

type confirmationDocument struct {
	Key      string `json:"key"`
	Username string `json:"username"`
	To       string `json:"to"`
}

func (i *Indexer) IndexUser(ctx context.Context, user *models.User) error {
	doc := userDocument{Username: user.Username, Email: user.Email}
	res, err := i.es.IndexDocument(ctx, UsersIndex, user.Username, doc)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("failed to index user %s: %s", user.Username, res.Status())
	}
	return nil
}

func (i *Indexer) IndexGpgKey(ctx context.Context, key *models.GpgKey) error {
	doc := gpgKeyDocument{Fingerprint: key.Fingerprint, Username: key.Username, Email: key.Email}
	res, err := i.es.IndexDocument(ctx, GpgKeysIndex, key.Fingerprint, doc)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("failed to index gpg key %s: %s", key.Fingerprint, res.Status())
	}
	return nil
}

func (i *Indexer) IndexConfirmation(ctx context.Context, c *models.Confirmation) error {
	doc := confirmationDocument{Key: c.Key, Username: c.Username, To: c.To}
	res, err := i.es.IndexDocument(ctx, ConfirmationsIndex, c.Key, doc)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("failed to index confirmation %s: %s", c.Key, res.Status())
	}
	return nil
}

// SearchUsers returns usernames whose username or email matches the term.
func (i *Indexer) SearchUsers(ctx context.Context, term string) ([]string, error) {
	return i.searchIDs(ctx, UsersIndex, term, []string{"username", "email"})
}

// SearchGpgKeys returns fingerprints whose fingerprint, owner or email
// matches the term.
func (i *Indexer) SearchGpgKeys(ctx context.Context, term string) ([]string, error) {
	return i.searchIDs(ctx, GpgKeysIndex, term, []string{"fingerprint", "username", "email"})
}

// SearchConfirmations returns confirmation keys matching the term.
func (i *Indexer) SearchConfirmations(ctx context.Context, term string) ([]string, error) {
	return i.searchIDs(ctx, ConfirmationsIndex, term, []string{"key", "username", "to"})
}

func (i *Indexer) searchIDs(ctx context.Context, index, term string, fields []string) ([]string, error) {
	should := make([]map[string]interface{}, 0, len(fields))
	for _, field := range fields {
		should = append(should, map[string]interface{}{
			"wildcard": map[string]interface{}{
				field + ".keyword": map[string]interface{}{
					"value":            "*" + term + "*",
					"case_insensitive": true,
				},
			},
		})
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"should":               should,
				"minimum_should_match": 1,
			},
		},
		"size":    1000,
		"_source": false,
	}

	res, err := i.es.Search(ctx, index, query)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := i.es.ParseResponse(res, &parsed); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// ReindexUsers rebuilds user documents in bulk, bounded by a worker group.
func (i *Indexer) ReindexUsers(ctx context.Context, users []*models.User) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(reindexConcurrency)

	for _, user := range users {
		user := user
		g.Go(func() error {
			return i.IndexUser(ctx, user)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("user reindex failed: %w", err)
	}

	util.Info("Reindexed users", zap.Int("count", len(users)))
	return nil
}

// ReindexGpgKeys rebuilds gpg key documents in bulk.
func (i *Indexer) ReindexGpgKeys(ctx context.Context, keys []*models.GpgKey) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(reindexConcurrency)

	for _, key := range keys {
		key := key
		g.Go(func() error {
			return i.IndexGpgKey(ctx, key)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("gpg key reindex failed: %w", err)
	}

	util.Info("Reindexed gpg keys", zap.Int("count", len(keys)))
	return nil
}
