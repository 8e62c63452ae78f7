package output

import (
	"context"
	"fmt"

	"eorc20-indexer/internal/config"
	"eorc20-indexer/pkg/models"

	"github.com/sirupsen/logrus"
)

// Output 输出接口，返回 nil 即表示数据已持久化
type Output interface {
	// WriteInscriptions 一次写入整个区块的铭文记录
	WriteInscriptions(ctx context.Context, batch *Batch) error
	// WriteBlock 写入区块元数据
	WriteBlock(ctx context.Context, block *models.BlockRecord) error
	Close() error
}

// NewOutput 根据配置创建输出器
// 连接外部服务时按网络错误重试，ctx 取消则放弃
func NewOutput(ctx context.Context, cfg *config.OutputConfig, logger *logrus.Logger) (Output, error) {
	if cfg == nil {
		return nil, fmt.Errorf("输出配置为空")
	}

	switch cfg.Format {
	case config.OutputFormatFile, "":
		return NewFileOutput(cfg.Directory, logger)
	case config.OutputFormatKafka:
		if cfg.Kafka == nil {
			return nil, fmt.Errorf("缺少 Kafka 输出配置")
		}
		return NewKafkaOutput(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topics, logger)
	case config.OutputFormatPostgres:
		if cfg.Postgres == nil {
			return nil, fmt.Errorf("缺少 PostgreSQL 输出配置")
		}
		return NewPostgresOutput(ctx, cfg.Postgres.DSN, logger)
	default:
		return nil, fmt.Errorf("不支持的输出格式: %s", cfg.Format)
	}
}
