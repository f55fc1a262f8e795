package postgres

import (
	"context"
	"fmt"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"github.com/lib/pq"
)

// FetchPending returns up to limit unsent outbox messages in write order.
func (s *Store) FetchPending(ctx context.Context, limit int) ([]domoutbox.Message, error) {
	ctx, cancel := s.read(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, aggregate_id, payload, created_at FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to fetch outbox: %w", err))
	}
	defer func() { _ = rows.Close() }()

	out := make([]domoutbox.Message, 0, limit)
	for rows.Next() {
		var m domoutbox.Message
		if err := rows.Scan(&m.ID, &m.Name, &m.Key, &m.Payload, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// MarkSent stamps the given messages so they are not relayed again.
func (s *Store) MarkSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := s.read(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET sent_at = $2 WHERE id = ANY($1) AND sent_at IS NULL`,
		pq.Array(ids), time.Now().UTC(),
	)
	if err != nil {
		return classify(fmt.Errorf("failed to mark outbox sent: %w", err))
	}
	return nil
}
