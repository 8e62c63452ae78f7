package output

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"eorc20-indexer/internal/retry"
	"eorc20-indexer/pkg/models"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

const (
	TopicKeyInscriptions = "inscriptions"
	TopicKeyBlocks       = "blocks"

	defaultInscriptionsTopic = "eorc20_inscriptions"
	defaultBlocksTopic       = "eorc20_blocks"

	// 固定消息key，保证同一topic内记录落在同一分区、保持顺序
	orderingKey = "eorc20"
)

// KafkaOutput Kafka输出器
type KafkaOutput struct {
	logger   *logrus.Logger
	topics   map[string]string // 数据类型到topic的映射
	producer sarama.SyncProducer
}

// NewKafkaOutput 创建Kafka输出器
func NewKafkaOutput(ctx context.Context, brokers []string, topics map[string]string, logger *logrus.Logger) (*KafkaOutput, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("Kafka brokers为空")
	}
	logger.Infof("初始化Kafka输出器，brokers: %v", brokers)

	// 配置Kafka生产者
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Timeout = 5 * time.Second
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	config.Version = sarama.V2_8_0_0

	producer, err := retry.Do(ctx, retry.NewRetrier(retry.NetworkRetryConfig, logger), "创建Kafka生产者", func() (sarama.SyncProducer, error) {
		return sarama.NewSyncProducer(brokers, config)
	})
	if err != nil {
		return nil, fmt.Errorf("创建Kafka生产者失败: %w", err)
	}

	logger.Info("Kafka生产者已创建")
	return NewKafkaOutputWithProducer(producer, topics, logger), nil
}

// NewKafkaOutputWithProducer 使用已有的生产者创建输出器
func NewKafkaOutputWithProducer(producer sarama.SyncProducer, topics map[string]string, logger *logrus.Logger) *KafkaOutput {
	resolved := map[string]string{
		TopicKeyInscriptions: defaultInscriptionsTopic,
		TopicKeyBlocks:       defaultBlocksTopic,
	}
	for k, v := range topics {
		if v != "" {
			resolved[k] = v
		}
	}
	return &KafkaOutput{
		logger:   logger,
		topics:   resolved,
		producer: producer,
	}
}

// WriteInscriptions 一个区块的记录一次批量发送
func (k *KafkaOutput) WriteInscriptions(ctx context.Context, batch *Batch) error {
	if batch == nil || batch.Len() == 0 {
		return nil
	}

	topic := k.topics[TopicKeyInscriptions]
	lines := batch.Lines()
	msgs := make([]*sarama.ProducerMessage, 0, len(lines))
	for _, line := range lines {
		// 复制一份，缓冲区会被复用
		value := make([]byte, len(line))
		copy(value, line)
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: topic,
			Key:   sarama.StringEncoder(orderingKey),
			Value: sarama.ByteEncoder(value),
		})
	}

	if err := k.producer.SendMessages(msgs); err != nil {
		return fmt.Errorf("发送铭文记录到Kafka失败: %w", err)
	}

	k.logger.Debugf("成功发送 %d 条铭文记录到Kafka topic '%s'", len(msgs), topic)
	return nil
}

// WriteBlock 写入区块元数据
func (k *KafkaOutput) WriteBlock(ctx context.Context, block *models.BlockRecord) error {
	if block == nil {
		return nil
	}

	data, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("序列化区块数据失败: %w", err)
	}

	topic := k.topics[TopicKeyBlocks]
	partition, offset, err := k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(orderingKey),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return fmt.Errorf("发送区块数据到Kafka失败: %w", err)
	}

	k.logger.Debugf("成功发送区块到Kafka topic '%s' (partition: %d, offset: %d)", topic, partition, offset)
	return nil
}

// Close 关闭Kafka连接
func (k *KafkaOutput) Close() error {
	if k.producer != nil {
		return k.producer.Close()
	}
	return nil
}
