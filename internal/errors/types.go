package errors

import (
	stderrors "errors"
	"fmt"
	"sync"
	"time"
)

// ErrorType 错误类型
type ErrorType int

const (
	// 输入相关错误（跳过当前交易）
	ErrorTypeDecode ErrorType = iota
	ErrorTypeValidation

	// 外部依赖错误
	ErrorTypeResolver

	// 致命错误
	ErrorTypeStorage
	ErrorTypeCheckpoint
	ErrorTypeFeed
	ErrorTypeConfig
)

// ErrorSeverity 错误严重级别
type ErrorSeverity int

const (
	SeverityLow ErrorSeverity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// IndexerError 自定义错误类型
type IndexerError struct {
	Type        ErrorType              `json:"type"`
	Severity    ErrorSeverity          `json:"severity"`
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	Timestamp   time.Time              `json:"timestamp"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Cause       error                  `json:"-"`
	BlockNumber *uint64                `json:"block_number,omitempty"`
	TxHash      *string                `json:"tx_hash,omitempty"`
}

// Error 实现error接口
func (e *IndexerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 支持errors.Unwrap
func (e *IndexerError) Unwrap() error {
	return e.Cause
}

// Is 按错误码比较，便于 errors.Is(err, ErrStorageWrite)
func (e *IndexerError) Is(target error) bool {
	t, ok := target.(*IndexerError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// IsFatal 是否为致命错误
func (e *IndexerError) IsFatal() bool {
	switch e.Type {
	case ErrorTypeStorage, ErrorTypeCheckpoint, ErrorTypeFeed, ErrorTypeConfig:
		return true
	}
	return false
}

// WithContext 添加上下文信息，返回副本，预定义错误不会被修改
func (e *IndexerError) WithContext(key string, value interface{}) *IndexerError {
	c := e.clone()
	c.Context[key] = value
	return c
}

// WithBlockNumber 添加区块号
func (e *IndexerError) WithBlockNumber(blockNumber uint64) *IndexerError {
	c := e.clone()
	c.BlockNumber = &blockNumber
	return c
}

// WithTxHash 添加交易哈希
func (e *IndexerError) WithTxHash(txHash string) *IndexerError {
	c := e.clone()
	c.TxHash = &txHash
	return c
}

// Wrap 以当前错误为模板包装底层错误
func (e *IndexerError) Wrap(cause error) *IndexerError {
	c := e.clone()
	c.Cause = cause
	c.Timestamp = time.Now()
	return c
}

func (e *IndexerError) clone() *IndexerError {
	c := *e
	c.Context = make(map[string]interface{}, len(e.Context)+1)
	for k, v := range e.Context {
		c.Context[k] = v
	}
	return &c
}

// NewIndexerError 创建新的错误
func NewIndexerError(errorType ErrorType, severity ErrorSeverity, code, message string) *IndexerError {
	return &IndexerError{
		Type:      errorType,
		Severity:  severity,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WrapError 包装现有错误
func WrapError(err error, errorType ErrorType, severity ErrorSeverity, code, message string) *IndexerError {
	e := NewIndexerError(errorType, severity, code, message)
	e.Cause = err
	return e
}

// AsIndexerError 从错误链中取出IndexerError
func AsIndexerError(err error) (*IndexerError, bool) {
	var ie *IndexerError
	if stderrors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// IsFatal 判断错误链中是否包含致命错误，未分类的错误按致命处理
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if ie, ok := AsIndexerError(err); ok {
		return ie.IsFatal()
	}
	return true
}

// 预定义错误
var (
	ErrInvalidTransaction = NewIndexerError(
		ErrorTypeDecode,
		SeverityLow,
		"INVALID_TRANSACTION",
		"交易解码失败",
	)

	ErrInvalidOpCode = NewIndexerError(
		ErrorTypeValidation,
		SeverityLow,
		"INVALID_OPCODE",
		"铭文操作校验失败",
	)

	ErrSenderResolution = NewIndexerError(
		ErrorTypeResolver,
		SeverityMedium,
		"SENDER_RESOLUTION_FAILED",
		"解析交易发送方失败",
	)

	ErrStorageWrite = NewIndexerError(
		ErrorTypeStorage,
		SeverityCritical,
		"STORAGE_WRITE_FAILED",
		"写入存储失败",
	)

	ErrCheckpoint = NewIndexerError(
		ErrorTypeCheckpoint,
		SeverityCritical,
		"CHECKPOINT_FAILED",
		"保存游标失败",
	)

	ErrFeed = NewIndexerError(
		ErrorTypeFeed,
		SeverityHigh,
		"FEED_FAILED",
		"区块流异常",
	)

	ErrConfigInvalid = NewIndexerError(
		ErrorTypeConfig,
		SeverityCritical,
		"CONFIG_INVALID",
		"配置无效",
	)
)

// 错误类型字符串映射
var errorTypeNames = map[ErrorType]string{
	ErrorTypeDecode:     "Decode",
	ErrorTypeValidation: "Validation",
	ErrorTypeResolver:   "Resolver",
	ErrorTypeStorage:    "Storage",
	ErrorTypeCheckpoint: "Checkpoint",
	ErrorTypeFeed:       "Feed",
	ErrorTypeConfig:     "Config",
}

// String 返回错误类型的字符串表示
func (et ErrorType) String() string {
	if name, exists := errorTypeNames[et]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", et)
}

// 严重级别字符串映射
var severityNames = map[ErrorSeverity]string{
	SeverityLow:      "Low",
	SeverityMedium:   "Medium",
	SeverityHigh:     "High",
	SeverityCritical: "Critical",
}

// String 返回严重级别的字符串表示
func (es ErrorSeverity) String() string {
	if name, exists := severityNames[es]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", es)
}

// ErrorStats 错误统计，可并发访问
type ErrorStats struct {
	mu            sync.RWMutex
	total         int
	byType        map[ErrorType]int
	lastError     *IndexerError
	lastErrorTime time.Time
}

// NewErrorStats 创建错误统计
func NewErrorStats() *ErrorStats {
	return &ErrorStats{
		byType: make(map[ErrorType]int),
	}
}

// RecordError 记录错误
func (es *ErrorStats) RecordError(err *IndexerError) {
	if err == nil {
		return
	}
	es.mu.Lock()
	defer es.mu.Unlock()

	es.total++
	es.byType[err.Type]++
	es.lastError = err
	es.lastErrorTime = err.Timestamp
}

// Count 指定类型的错误数
func (es *ErrorStats) Count(errorType ErrorType) int {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return es.byType[errorType]
}

// Total 错误总数
func (es *ErrorStats) Total() int {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return es.total
}

// Snapshot 导出统计信息
func (es *ErrorStats) Snapshot() map[string]interface{} {
	es.mu.RLock()
	defer es.mu.RUnlock()

	byType := make(map[string]int, len(es.byType))
	for t, n := range es.byType {
		byType[t.String()] = n
	}

	stats := map[string]interface{}{
		"total_errors":   es.total,
		"errors_by_type": byType,
	}
	if es.lastError != nil {
		stats["last_error"] = es.lastError.Error()
		stats["last_error_time"] = es.lastErrorTime.Format(time.RFC3339)
	}
	return stats
}
