package scylla

import (
	"context"
	"errors"
	"fmt"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"github.com/dd-repo/hp/internal/models"
	"github.com/dd-repo/hp/internal/search"
	"github.com/dd-repo/hp/internal/util"
)

// ConfirmationRepository stores outstanding confirmation keys, denormalized
// across a by-key and a by-user table.
type ConfirmationRepository struct {
	client  *ScyllaClient
	indexer *search.Indexer
}

func NewConfirmationRepository(client *ScyllaClient, indexer *search.Indexer) *ConfirmationRepository {
	return &ConfirmationRepository{client: client, indexer: indexer}
}

// Create writes a confirmation into both tables atomically.
func (r *ConfirmationRepository) Create(ctx context.Context, c *models.Confirmation) error {
	batch := r.client.Batch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(r.client.Prepared.InsertConfirmation.Statement(),
		c.Key, c.Username, c.Purpose, c.To, c.Locale, c.BaseURL, c.Created, c.Expires)
	batch.Query(r.client.Prepared.InsertConfirmationByUser.Statement(),
		c.Username, c.Purpose, c.Key, c.To, c.Locale, c.BaseURL, c.Created, c.Expires)

	if err := r.client.ExecuteBatch(batch); err != nil {
		util.Error("Failed to create confirmation",
			zap.String("username", c.Username),
			zap.String("purpose", c.Purpose),
			zap.Error(err))
		return fmt.Errorf("failed to create confirmation: %w", err)
	}

	if r.indexer != nil {
		if err := r.indexer.IndexConfirmation(ctx, c); err != nil {
			util.Warn("Failed to index confirmation", zap.String("key", c.Key), zap.Error(err))
		}
	}

	util.Info("Confirmation created",
		zap.String("username", c.Username),
		zap.String("purpose", c.Purpose))
	return nil
}

func (r *ConfirmationRepository) Get(ctx context.Context, key string) (*models.Confirmation, error) {
	c := &models.Confirmation{}
	query := r.client.Prepared.GetConfirmation.Bind(key).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&c.Key, &c.Username, &c.Purpose, &c.To, &c.Locale, &c.BaseURL, &c.Created, &c.Expires)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrConfirmationNotFound, key)
		}
		return nil, fmt.Errorf("failed to get confirmation: %w", err)
	}
	return c, nil
}

func (r *ConfirmationRepository) List(ctx context.Context) ([]*models.Confirmation, error) {
	iter := r.client.Query(`
        SELECT key, username, purpose, to_address, locale, base_url, created, expires
        FROM confirmations`).WithContext(ctx).Iter()

	var confirmations []*models.Confirmation
	c := models.Confirmation{}
	for iter.Scan(&c.Key, &c.Username, &c.Purpose, &c.To, &c.Locale, &c.BaseURL, &c.Created, &c.Expires) {
		row := c
		confirmations = append(confirmations, &row)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list confirmations: %w", err)
	}
	return confirmations, nil
}

// FindForUser returns a user's outstanding confirmations for one purpose.
func (r *ConfirmationRepository) FindForUser(ctx context.Context, username, purpose string) ([]*models.Confirmation, error) {
	iter := r.client.Prepared.GetConfirmationsByUser.
		Bind(username, purpose).
		WithContext(ctx).
		Iter()

	var confirmations []*models.Confirmation
	c := models.Confirmation{}
	for iter.Scan(&c.Username, &c.Purpose, &c.Key, &c.To, &c.Locale, &c.BaseURL, &c.Created, &c.Expires) {
		row := c
		confirmations = append(confirmations, &row)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to find confirmations for %s: %w", username, err)
	}
	return confirmations, nil
}
