package clickhouse

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/dd-repo/hp/internal/bucketing"
	"github.com/dd-repo/hp/internal/client"
	"github.com/dd-repo/hp/internal/models"
	"github.com/dd-repo/hp/internal/util"
)

// LogRepository keeps the append-only user audit log in ClickHouse.
type LogRepository struct {
	ch      *client.ClickHouseClient
	buckets *bucketing.Manager
}

func NewLogRepository(ch *client.ClickHouseClient, buckets *bucketing.Manager) *LogRepository {
	return &LogRepository{ch: ch, buckets: buckets}
}

// EnsureSchema creates the log table when it does not exist yet.
func (r *LogRepository) EnsureSchema(ctx context.Context) error {
	return r.ch.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS user_log (
            event_bucket Int32,
            entry_id     String,
            username     String,
            actor        String,
            message      String,
            comment      String,
            ip_address   String,
            created      DateTime64(3, 'UTC')
        )
        ENGINE = MergeTree()
        PARTITION BY toYYYYMM(created)
        ORDER BY (event_bucket, created)`)
}

// Record appends one entry. ClickHouse wants inserts batched, so even the
// single-row path goes through a prepared batch.
func (r *LogRepository) Record(ctx context.Context, entry *models.UserLogEntry) error {
	entry.EventBucket = r.buckets.EventBucket(entry.Username)

	var addr string
	if entry.IPAddress != nil {
		addr = entry.IPAddress.String()
	}

	row := []interface{}{
		int32(entry.EventBucket),
		entry.EntryID,
		entry.Username,
		entry.Actor,
		entry.Message,
		entry.Comment,
		addr,
		entry.Created,
	}

	err := r.ch.BatchInsert(ctx, `
        INSERT INTO user_log (
            event_bucket, entry_id, username, actor, message, comment, ip_address, created
        )`, [][]interface{}{row})
	if err != nil {
		util.Error("Failed to record log entry",
			zap.String("username", entry.Username),
			zap.Error(err))
		return fmt.Errorf("failed to record log entry: %w", err)
	}

	return nil
}

// List returns the most recent entries, newest first. A non-empty search term
// matches case-insensitively against username, actor and message.
func (r *LogRepository) List(ctx context.Context, search string, limit int) ([]*models.UserLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
        SELECT entry_id, username, actor, message, comment, ip_address, created
        FROM user_log`
	args := []interface{}{}

	if search != "" {
		query += `
        WHERE positionCaseInsensitive(username, ?) > 0
           OR positionCaseInsensitive(actor, ?) > 0
           OR positionCaseInsensitive(message, ?) > 0`
		args = append(args, search, search, search)
	}

	query += `
        ORDER BY created DESC
        LIMIT ?`
	args = append(args, limit)

	rows, err := r.ch.QueryRows(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query log entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.UserLogEntry
	for rows.Next() {
		entry := &models.UserLogEntry{}
		var addr string
		var created time.Time

		if err := rows.Scan(
			&entry.EntryID, &entry.Username, &entry.Actor,
			&entry.Message, &entry.Comment, &addr, &created); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}

		if addr != "" {
			entry.IPAddress = net.ParseIP(addr)
		}
		entry.Created = created
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log entries: %w", err)
	}
	return entries, nil
}
