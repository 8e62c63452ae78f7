package config

import (
	"fmt"
	"strings"
	"time"

	"eorc20-indexer/internal/errors"
	"eorc20-indexer/internal/logging"

	"github.com/spf13/viper"
)

// 环境变量前缀，EORC20_OUTPUT_FORMAT 覆盖 output.format
const EnvPrefix = "EORC20"

const (
	FeedTypeFile  = "file"
	FeedTypeKafka = "kafka"

	OutputFormatFile     = "file"
	OutputFormatKafka    = "kafka"
	OutputFormatPostgres = "postgres"
)

// Config 主配置
type Config struct {
	Feed     *FeedConfig        `mapstructure:"feed"`
	Chain    *ChainConfig       `mapstructure:"chain"`
	Output   *OutputConfig      `mapstructure:"output"`
	Progress *ProgressConfig    `mapstructure:"progress"`
	API      *APIConfig         `mapstructure:"api"`
	Logging  *logging.LogConfig `mapstructure:"logging"`
}

// FeedConfig 区块流配置
type FeedConfig struct {
	Type  string           `mapstructure:"type"`
	Path  string           `mapstructure:"path"` // 回放文件路径
	Kafka *FeedKafkaConfig `mapstructure:"kafka"`
}

// FeedKafkaConfig Kafka区块流配置
type FeedKafkaConfig struct {
	Brokers   []string `mapstructure:"brokers"`
	Topic     string   `mapstructure:"topic"`
	Partition int32    `mapstructure:"partition"`
}

// ChainConfig 链相关配置
type ChainConfig struct {
	Protocol       string `mapstructure:"protocol"`
	PushAction     string `mapstructure:"push_action"`
	ExecutedStatus string `mapstructure:"executed_status"`
	GenesisTime    string `mapstructure:"genesis_time"`
	ChainID        uint64 `mapstructure:"chain_id"` // 0 表示不校验签名链ID
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Brokers []string          `mapstructure:"brokers"`
	Topics  map[string]string `mapstructure:"topics"`
}

// PostgresConfig PostgreSQL配置
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	Format    string          `mapstructure:"format"`
	Directory string          `mapstructure:"directory"`
	Kafka     *KafkaConfig    `mapstructure:"kafka"`
	Postgres  *PostgresConfig `mapstructure:"postgres"`
}

// ProgressConfig 进度存储配置
type ProgressConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// APIConfig 状态接口配置
type APIConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// GetDefaultConfig 获取默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Feed: &FeedConfig{
			Type: FeedTypeFile,
			Path: "./data/blocks.jsonl",
			Kafka: &FeedKafkaConfig{
				Brokers:   []string{"localhost:9092"},
				Topic:     "eos_evm_blocks",
				Partition: 0,
			},
		},
		Chain: &ChainConfig{
			Protocol:       "eorc20",
			PushAction:     "pushtx",
			ExecutedStatus: "TRANSACTIONSTATUS_EXECUTED",
			GenesisTime:    "2023-04-05T02:18:09Z",
			ChainID:        0,
		},
		Output: &OutputConfig{
			Format:    OutputFormatFile,
			Directory: "./outputs",
			Kafka: &KafkaConfig{
				Brokers: []string{"localhost:9092"},
				Topics: map[string]string{
					"inscriptions": "eorc20_inscriptions",
					"blocks":       "eorc20_blocks",
				},
			},
			Postgres: &PostgresConfig{},
		},
		Progress: &ProgressConfig{
			DBPath: "./data/progress.db",
		},
		API: &APIConfig{
			Enabled: false,
			Port:    8080,
		},
		Logging: logging.DefaultLogConfig(),
	}
}

// LoadConfig 加载配置，configPath 为空时只使用默认值与环境变量
func LoadConfig(configPath string) (*Config, error) {
	v := newViper()
	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return &config, nil
}

// LoadConfigFromFile 从文件加载配置
func LoadConfigFromFile(configPath string) (*Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("配置文件路径为空")
	}
	return LoadConfig(configPath)
}

// newViper 注册默认值并开启环境变量覆盖
func newViper() *viper.Viper {
	v := viper.New()
	d := GetDefaultConfig()

	v.SetDefault("feed.type", d.Feed.Type)
	v.SetDefault("feed.path", d.Feed.Path)
	v.SetDefault("feed.kafka.brokers", d.Feed.Kafka.Brokers)
	v.SetDefault("feed.kafka.topic", d.Feed.Kafka.Topic)
	v.SetDefault("feed.kafka.partition", d.Feed.Kafka.Partition)

	v.SetDefault("chain.protocol", d.Chain.Protocol)
	v.SetDefault("chain.push_action", d.Chain.PushAction)
	v.SetDefault("chain.executed_status", d.Chain.ExecutedStatus)
	v.SetDefault("chain.genesis_time", d.Chain.GenesisTime)
	v.SetDefault("chain.chain_id", d.Chain.ChainID)

	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("output.directory", d.Output.Directory)
	v.SetDefault("output.kafka.brokers", d.Output.Kafka.Brokers)
	v.SetDefault("output.kafka.topics", d.Output.Kafka.Topics)
	v.SetDefault("output.postgres.dsn", d.Output.Postgres.DSN)

	v.SetDefault("progress.db_path", d.Progress.DBPath)

	v.SetDefault("api.enabled", d.API.Enabled)
	v.SetDefault("api.port", d.API.Port)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Feed == nil || c.Chain == nil || c.Output == nil || c.Progress == nil {
		return invalid("缺少必需的配置段")
	}

	switch c.Feed.Type {
	case FeedTypeFile:
		if c.Feed.Path == "" {
			return invalid("feed.path 不能为空")
		}
	case FeedTypeKafka:
		if c.Feed.Kafka == nil || len(c.Feed.Kafka.Brokers) == 0 || c.Feed.Kafka.Topic == "" {
			return invalid("feed.kafka 需要 brokers 与 topic")
		}
	default:
		return invalid(fmt.Sprintf("不支持的区块流类型: %s", c.Feed.Type))
	}

	if c.Chain.Protocol == "" || c.Chain.PushAction == "" || c.Chain.ExecutedStatus == "" {
		return invalid("chain.protocol/push_action/executed_status 不能为空")
	}
	if _, err := time.Parse(time.RFC3339, c.Chain.GenesisTime); err != nil {
		return invalid(fmt.Sprintf("chain.genesis_time 无效: %v", err))
	}

	switch c.Output.Format {
	case OutputFormatFile:
		if c.Output.Directory == "" {
			return invalid("output.directory 不能为空")
		}
	case OutputFormatKafka:
		if c.Output.Kafka == nil || len(c.Output.Kafka.Brokers) == 0 {
			return invalid("output.kafka.brokers 不能为空")
		}
	case OutputFormatPostgres:
		if c.Output.Postgres == nil || c.Output.Postgres.DSN == "" {
			return invalid("output.postgres.dsn 不能为空")
		}
	default:
		return invalid(fmt.Sprintf("不支持的输出格式: %s", c.Output.Format))
	}

	if c.Progress.DBPath == "" {
		return invalid("progress.db_path 不能为空")
	}

	if c.API != nil && c.API.Enabled && (c.API.Port <= 0 || c.API.Port > 65535) {
		return invalid(fmt.Sprintf("api.port 无效: %d", c.API.Port))
	}

	if c.Logging != nil {
		if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
			return invalid(err.Error())
		}
	}
	return nil
}

func invalid(msg string) error {
	return errors.ErrConfigInvalid.Wrap(fmt.Errorf("%s", msg))
}
