package collector

import (
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// Reporter 进度报告，每秒最多输出一次
type Reporter struct {
	logger    *logrus.Logger
	now       func() time.Time
	startTime time.Time

	total      atomic.Uint64
	lastBlock  atomic.Uint64
	lastReport atomic.Int64 // 上次输出的秒级时间戳
}

// NewReporter 创建进度报告器
func NewReporter(logger *logrus.Logger) *Reporter {
	return newReporterWithClock(logger, time.Now)
}

func newReporterWithClock(logger *logrus.Logger, now func() time.Time) *Reporter {
	start := now()
	r := &Reporter{
		logger:    logger,
		now:       now,
		startTime: start,
	}
	r.lastReport.Store(start.Unix())
	return r
}

// Record 记录一条铭文操作，返回本次是否输出了报告
func (r *Reporter) Record(blockNumber uint64) bool {
	total := r.total.Inc()
	r.lastBlock.Store(blockNumber)

	now := r.now().Unix()
	if r.lastReport.Swap(now) == now {
		return false
	}

	r.logger.WithFields(logrus.Fields{
		"total":        total,
		"rate":         r.rate(total, now),
		"block_number": blockNumber,
	}).Infof("已处理 %d 个 EORC-20 操作", total)
	return true
}

// rate 每秒处理的操作数
func (r *Reporter) rate(total uint64, now int64) float64 {
	elapsed := now - r.startTime.Unix()
	if elapsed <= 0 {
		return float64(total)
	}
	return float64(total) / float64(elapsed)
}

// Total 已处理操作总数
func (r *Reporter) Total() uint64 {
	return r.total.Load()
}

// LastBlock 最近一条操作所在区块
func (r *Reporter) LastBlock() uint64 {
	return r.lastBlock.Load()
}

// Rate 当前处理速率
func (r *Reporter) Rate() float64 {
	return r.rate(r.total.Load(), r.now().Unix())
}
