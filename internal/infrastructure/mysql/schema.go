package mysql

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS auctions (
        id                VARCHAR(64)  NOT NULL PRIMARY KEY,
        title             VARCHAR(255) NOT NULL,
        seller_id         VARCHAR(64)  NOT NULL DEFAULT '',
        start_price       BIGINT       NOT NULL,
        current_price     BIGINT       NOT NULL,
        buy_now_price     BIGINT       NULL,
        bid_increment     BIGINT       NOT NULL,
        start_time        DATETIME(6)  NOT NULL,
        end_time          DATETIME(6)  NOT NULL,
        status            TINYINT      NOT NULL,
        bid_count         BIGINT       NOT NULL DEFAULT 0,
        leading_bid_id    VARCHAR(64)  NOT NULL DEFAULT '',
        leading_bidder_id VARCHAR(64)  NOT NULL DEFAULT '',
        extension_count   INT          NOT NULL DEFAULT 0,
        version           BIGINT       NOT NULL DEFAULT 0,
        created_at        DATETIME(6)  NOT NULL,
        updated_at        DATETIME(6)  NOT NULL,
        KEY idx_auctions_status (status),
        KEY idx_auctions_created (created_at)
    ) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS bids (
        id              VARCHAR(64) NOT NULL PRIMARY KEY,
        auction_id      VARCHAR(64) NOT NULL,
        bidder_id       VARCHAR(64) NOT NULL,
        amount          BIGINT      NOT NULL,
        is_auto_bid     BOOLEAN     NOT NULL,
        effective_price BIGINT      NOT NULL,
        seq             BIGINT      NOT NULL,
        idempotency_key VARCHAR(128) NULL,
        placed_at       DATETIME(6) NOT NULL,
        price_after     BIGINT      NOT NULL,
        leader_after    VARCHAR(64) NOT NULL DEFAULT '',
        end_time_after  DATETIME(6) NOT NULL,
        extended        BOOLEAN     NOT NULL DEFAULT FALSE,
        UNIQUE KEY uq_bids_seq (auction_id, seq),
        UNIQUE KEY uq_bids_idempotency (auction_id, bidder_id, idempotency_key)
    ) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS auction_events (
        id          BIGINT      NOT NULL AUTO_INCREMENT PRIMARY KEY,
        auction_id  VARCHAR(64) NOT NULL,
        event_type  VARCHAR(32) NOT NULL,
        version     BIGINT      NOT NULL,
        payload     JSON        NOT NULL,
        occurred_at DATETIME(6) NOT NULL,
        created_at  DATETIME(6) NOT NULL,
        KEY idx_events_auction (auction_id, version)
    ) ENGINE=InnoDB`,
}

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
