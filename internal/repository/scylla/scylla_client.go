package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"github.com/dd-repo/hp/internal/config"
	"github.com/dd-repo/hp/internal/util"
)

// PreparedStatements holds prepared statements that are actually used by the repositories
type PreparedStatements struct {
	InsertUser       *gocql.Query
	GetUser          *gocql.Query
	SetUserBlocked   *gocql.Query
	InsertEmailIndex *gocql.Query
	DeleteEmailIndex *gocql.Query
	GetUsersByEmail  *gocql.Query

	GetGpgKey    *gocql.Query
	UpdateGpgKey *gocql.Query

	InsertConfirmation       *gocql.Query
	InsertConfirmationByUser *gocql.Query
	GetConfirmation          *gocql.Query
	GetConfirmationsByUser   *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.RWMutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.MaxRoutingKeyInfo = 1000
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if !cfg.IsDevelopment() {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 "/root/certs/ca.pem",
			CertPath:               "/root/certs/server.pem",
			KeyPath:                "/root/certs/server.key",
			EnableHostVerification: true,
		}
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.InsertUser = s.Session.Query(`
        INSERT INTO users (
            user_bucket, username, email, normalized_email, gpg_fingerprint,
            registration_method, locale, registered, confirmed, blocked
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetUser = s.Session.Query(`
        SELECT user_bucket, username, email, normalized_email, gpg_fingerprint,
            registration_method, locale, registered, confirmed, blocked
        FROM users WHERE user_bucket = ? AND username = ?`)

	prepared.SetUserBlocked = s.Session.Query(`
        UPDATE users SET blocked = ? WHERE user_bucket = ? AND username = ?`)

	prepared.InsertEmailIndex = s.Session.Query(`
        INSERT INTO users_by_email (normalized_email, username)
        VALUES (?, ?)`)

	prepared.DeleteEmailIndex = s.Session.Query(`
        DELETE FROM users_by_email WHERE normalized_email = ? AND username = ?`)

	prepared.GetUsersByEmail = s.Session.Query(`
        SELECT username FROM users_by_email WHERE normalized_email = ?`)

	prepared.GetGpgKey = s.Session.Query(`
        SELECT fingerprint, username, email, created, expires, revoked, refreshed
        FROM gpg_keys WHERE fingerprint = ?`)

	prepared.UpdateGpgKey = s.Session.Query(`
        UPDATE gpg_keys SET expires = ?, revoked = ?, refreshed = ?
        WHERE fingerprint = ?`)

	prepared.InsertConfirmation = s.Session.Query(`
        INSERT INTO confirmations (
            key, username, purpose, to_address, locale, base_url, created, expires
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.InsertConfirmationByUser = s.Session.Query(`
        INSERT INTO confirmations_by_user (
            username, purpose, key, to_address, locale, base_url, created, expires
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetConfirmation = s.Session.Query(`
        SELECT key, username, purpose, to_address, locale, base_url, created, expires
        FROM confirmations WHERE key = ?`)

	prepared.GetConfirmationsByUser = s.Session.Query(`
        SELECT username, purpose, key, to_address, locale, base_url, created, expires
        FROM confirmations_by_user WHERE username = ? AND purpose = ?`)

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("ScyllaDB prepared statements created successfully")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) Batch(typ gocql.BatchType) *gocql.Batch {
	return s.Session.NewBatch(typ)
}

func (s *ScyllaClient) ExecuteBatch(batch *gocql.Batch) error {
	return s.Session.ExecuteBatch(batch)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := query.Exec(); err != nil {
			lastErr = err
			if i < maxRetries {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}

func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if err := query.Scan(dest...); err != nil {
			lastErr = err
			if i < 2 {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}
