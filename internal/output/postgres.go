package output

import (
	"context"
	"database/sql"
	"fmt"

	"eorc20-indexer/internal/retry"
	"eorc20-indexer/pkg/models"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS eorc20_inscriptions (
	seq        BIGSERIAL PRIMARY KEY,
	tx_id      TEXT NOT NULL UNIQUE,
	block      BIGINT NOT NULL,
	record     JSONB NOT NULL,
	created_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS eorc20_blocks (
	eos_block_id     TEXT PRIMARY KEY,
	eos_block_number BIGINT NOT NULL,
	block_number     BIGINT NOT NULL,
	timestamp        BIGINT NOT NULL,
	created_at       TIMESTAMPTZ DEFAULT NOW()
);`

// 按数组顺序插入，重复投递的记录按 tx_id 去重
const insertInscriptionsSQL = `
INSERT INTO eorc20_inscriptions (tx_id, block, record)
SELECT r->>'id', (r->>'block')::BIGINT, r
FROM unnest($1::jsonb[]) WITH ORDINALITY AS t(r, ord)
ORDER BY ord
ON CONFLICT (tx_id) DO NOTHING`

const insertBlockSQL = `
INSERT INTO eorc20_blocks (eos_block_id, eos_block_number, block_number, timestamp)
VALUES ($1, $2, $3, $4)
ON CONFLICT (eos_block_id) DO NOTHING`

// PostgresOutput PostgreSQL输出器，每次写入一个事务
type PostgresOutput struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewPostgresOutput 连接数据库并建表
func NewPostgresOutput(ctx context.Context, dsn string, logger *logrus.Logger) (*PostgresOutput, error) {
	if dsn == "" {
		return nil, fmt.Errorf("PostgreSQL DSN为空")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	// 测试连接，数据库未就绪时重试
	err = retry.RetryNetworkOperation(ctx, "连接PostgreSQL", func() error {
		return db.PingContext(ctx)
	}, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	out, err := NewPostgresOutputWithDB(ctx, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return out, nil
}

// NewPostgresOutputWithDB 使用已有连接创建输出器
func NewPostgresOutputWithDB(ctx context.Context, db *sql.DB, logger *logrus.Logger) (*PostgresOutput, error) {
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("创建数据表失败: %w", err)
	}
	logger.Info("PostgreSQL输出器已初始化")
	return &PostgresOutput{db: db, logger: logger}, nil
}

// WriteInscriptions 整个区块的记录在一个事务内写入
func (p *PostgresOutput) WriteInscriptions(ctx context.Context, batch *Batch) error {
	if batch == nil || batch.Len() == 0 {
		return nil
	}

	lines := batch.Lines()
	records := make([]string, len(lines))
	for i, line := range lines {
		records[i] = string(line)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, insertInscriptionsSQL, pq.Array(records))
	if err != nil {
		return fmt.Errorf("写入铭文记录失败: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n < int64(len(records)) {
		p.logger.Debugf("跳过 %d 条已存在的铭文记录", int64(len(records))-n)
	}
	return nil
}

// WriteBlock 写入区块元数据
func (p *PostgresOutput) WriteBlock(ctx context.Context, block *models.BlockRecord) error {
	if block == nil {
		return nil
	}
	if _, err := p.db.ExecContext(ctx, insertBlockSQL,
		block.EOSBlockID, block.EOSBlockNumber, block.BlockNumber, block.Timestamp); err != nil {
		return fmt.Errorf("写入区块数据失败: %w", err)
	}
	return nil
}

// Close 关闭数据库连接
func (p *PostgresOutput) Close() error {
	return p.db.Close()
}
