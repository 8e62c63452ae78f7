package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"eorc20-indexer/internal/config"
	"eorc20-indexer/internal/errors"
	"eorc20-indexer/pkg/models"

	"github.com/sirupsen/logrus"
)

// Feed 区块流，可从任意游标处重新开始
type Feed interface {
	// Stream 从游标之后开始读取，游标为空时从头开始
	Stream(ctx context.Context, cursor string) (Stream, error)
	Close() error
}

// Stream 拉取式消息序列
// Next 在流正常结束时返回 io.EOF
type Stream interface {
	Next(ctx context.Context) (*models.BlockMessage, error)
	Close() error
}

// NewFeed 根据配置创建区块流
func NewFeed(ctx context.Context, cfg *config.FeedConfig, logger *logrus.Logger) (Feed, error) {
	if cfg == nil {
		return nil, fmt.Errorf("区块流配置为空")
	}
	switch cfg.Type {
	case config.FeedTypeFile:
		return NewFileFeed(cfg.Path, logger), nil
	case config.FeedTypeKafka:
		if cfg.Kafka == nil {
			return nil, fmt.Errorf("缺少 Kafka 区块流配置")
		}
		return NewKafkaFeed(ctx, cfg.Kafka, logger)
	default:
		return nil, fmt.Errorf("不支持的区块流类型: %s", cfg.Type)
	}
}

// decodeMessage 解析一条区块消息
func decodeMessage(data []byte) (*models.BlockMessage, error) {
	var msg models.BlockMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.ErrFeed.Wrap(err).WithContext("reason", "invalid_message")
	}
	return &msg, nil
}
