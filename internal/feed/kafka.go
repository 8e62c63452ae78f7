package feed

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"eorc20-indexer/internal/config"
	"eorc20-indexer/internal/errors"
	"eorc20-indexer/internal/retry"
	"eorc20-indexer/pkg/models"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// KafkaFeed 从单个 Kafka 分区消费区块消息
// 游标格式为 "partition:offset"，指向最后一条已处理的消息
type KafkaFeed struct {
	consumer  sarama.Consumer
	topic     string
	partition int32
	logger    *logrus.Logger
}

// NewKafkaFeed 连接 Kafka，连接失败时按网络错误重试
func NewKafkaFeed(ctx context.Context, cfg *config.FeedKafkaConfig, logger *logrus.Logger) (*KafkaFeed, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("Kafka 区块流需要 brokers 与 topic")
	}
	logger.Infof("连接 Kafka 区块流，brokers: %v, topic: %s, partition: %d", cfg.Brokers, cfg.Topic, cfg.Partition)

	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaCfg.Net.DialTimeout = 10 * time.Second
	saramaCfg.Version = sarama.V2_8_0_0

	var consumer sarama.Consumer
	err := retry.RetryNetworkOperation(ctx, "连接Kafka", func() error {
		c, err := sarama.NewConsumer(cfg.Brokers, saramaCfg)
		if err != nil {
			return err
		}
		consumer = c
		return nil
	}, logger)
	if err != nil {
		return nil, errors.ErrFeed.Wrap(err).WithContext("reason", "connect")
	}

	return NewKafkaFeedWithConsumer(consumer, cfg.Topic, cfg.Partition, logger), nil
}

// NewKafkaFeedWithConsumer 使用已有的消费者创建区块流
func NewKafkaFeedWithConsumer(consumer sarama.Consumer, topic string, partition int32, logger *logrus.Logger) *KafkaFeed {
	return &KafkaFeed{
		consumer:  consumer,
		topic:     topic,
		partition: partition,
		logger:    logger,
	}
}

// FormatCursor 生成游标
func FormatCursor(partition int32, offset int64) string {
	return fmt.Sprintf("%d:%d", partition, offset)
}

// ParseCursor 解析游标
func ParseCursor(cursor string) (int32, int64, error) {
	parts := strings.SplitN(cursor, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("无效的Kafka游标: %q", cursor)
	}
	partition, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("无效的Kafka游标分区: %w", err)
	}
	offset, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || offset < 0 {
		return 0, 0, fmt.Errorf("无效的Kafka游标偏移量: %q", parts[1])
	}
	return int32(partition), offset, nil
}

// Stream 从游标的下一条消息开始消费
func (k *KafkaFeed) Stream(ctx context.Context, cursor string) (Stream, error) {
	offset := sarama.OffsetOldest
	if cursor != "" {
		partition, last, err := ParseCursor(cursor)
		if err != nil {
			return nil, errors.ErrFeed.Wrap(err)
		}
		if partition != k.partition {
			return nil, errors.ErrFeed.Wrap(fmt.Errorf("游标分区 %d 与配置分区 %d 不一致", partition, k.partition))
		}
		offset = last + 1
	}

	pc, err := k.consumer.ConsumePartition(k.topic, k.partition, offset)
	if err != nil {
		return nil, errors.ErrFeed.Wrap(err).WithContext("offset", offset)
	}
	k.logger.Infof("开始消费 Kafka topic '%s' 分区 %d，起始偏移量 %d", k.topic, k.partition, offset)
	return &kafkaStream{pc: pc, errCh: pc.Errors()}, nil
}

// Close 关闭消费者
func (k *KafkaFeed) Close() error {
	return k.consumer.Close()
}

type kafkaStream struct {
	pc    sarama.PartitionConsumer
	errCh <-chan *sarama.ConsumerError
}

// Next 阻塞直到收到消息、出错或上下文取消
func (s *kafkaStream) Next(ctx context.Context) (*models.BlockMessage, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case cerr, ok := <-s.errCh:
			if !ok {
				// 错误通道关闭后只等待消息通道
				s.errCh = nil
				continue
			}
			return nil, errors.ErrFeed.Wrap(cerr)
		case m, ok := <-s.pc.Messages():
			if !ok {
				return nil, io.EOF
			}
			msg, err := decodeMessage(m.Value)
			if err != nil {
				if ie, ok := errors.AsIndexerError(err); ok {
					return nil, ie.WithContext("offset", m.Offset)
				}
				return nil, err
			}
			// 游标取自消息位置，忽略消息体中的值
			msg.Cursor = FormatCursor(m.Partition, m.Offset)
			return msg, nil
		}
	}
}

func (s *kafkaStream) Close() error {
	return s.pc.Close()
}
