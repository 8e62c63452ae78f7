package errors

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrorCallback 错误回调函数
type ErrorCallback func(err *IndexerError)

// ErrorHandler 错误处理器：按严重级别记录日志并统计
type ErrorHandler struct {
	logger *logrus.Logger
	stats  *ErrorStats

	mu        sync.RWMutex
	callbacks []ErrorCallback
}

// NewErrorHandler 创建错误处理器
func NewErrorHandler(logger *logrus.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger: logger,
		stats:  NewErrorStats(),
	}
}

// HandleError 处理错误，返回归一化后的IndexerError
func (eh *ErrorHandler) HandleError(err error) *IndexerError {
	if err == nil {
		return nil
	}

	ie, ok := AsIndexerError(err)
	if !ok {
		ie = WrapError(err, ErrorTypeStorage, SeverityHigh, "UNKNOWN_ERROR", "未知错误")
	}

	eh.stats.RecordError(ie)
	eh.log(ie)

	eh.mu.RLock()
	callbacks := make([]ErrorCallback, len(eh.callbacks))
	copy(callbacks, eh.callbacks)
	eh.mu.RUnlock()

	for _, cb := range callbacks {
		cb(ie)
	}

	return ie
}

// log 根据严重级别选择日志级别
func (eh *ErrorHandler) log(err *IndexerError) {
	fields := logrus.Fields{
		"error_type": err.Type.String(),
		"error_code": err.Code,
	}
	if err.BlockNumber != nil {
		fields["block_number"] = *err.BlockNumber
	}
	if err.TxHash != nil {
		fields["tx_hash"] = *err.TxHash
	}
	for k, v := range err.Context {
		fields[k] = v
	}
	entry := eh.logger.WithFields(fields)

	switch err.Severity {
	case SeverityLow:
		entry.Debug(err.Error())
	case SeverityMedium:
		entry.Warn(err.Error())
	default:
		// 致命错误交由调用方决定是否退出进程
		entry.Error(err.Error())
	}
}

// AddCallback 添加错误回调
func (eh *ErrorHandler) AddCallback(callback ErrorCallback) {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	eh.callbacks = append(eh.callbacks, callback)
}

// GetStats 获取错误统计信息
func (eh *ErrorHandler) GetStats() *ErrorStats {
	return eh.stats
}
