package collector

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"eorc20-indexer/internal/chain"
	"eorc20-indexer/internal/config"
	"eorc20-indexer/internal/decoder"
	"eorc20-indexer/internal/errors"
	"eorc20-indexer/internal/feed"
	"eorc20-indexer/internal/logging"
	"eorc20-indexer/internal/output"
	"eorc20-indexer/internal/validation"
	"eorc20-indexer/pkg/models"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// CursorStore 游标存储
type CursorStore interface {
	LoadCursor() *models.Cursor
	SaveCursor(cursor *models.Cursor) error
}

// Dependencies 采集器依赖
type Dependencies struct {
	Feed      feed.Feed
	Output    output.Output
	Store     CursorStore
	Resolver  decoder.AddressResolver
	Validator *validation.OpCodeValidator
	Clock     *chain.Clock
}

// Collector 铭文采集管道，单协程按顺序处理区块
type Collector struct {
	feed      feed.Feed
	outputter output.Output
	store     CursorStore
	resolver  decoder.AddressResolver
	validator *validation.OpCodeValidator
	clock     *chain.Clock

	pushAction     string
	executedStatus string

	logger   *logrus.Logger
	errors   *errors.ErrorHandler
	reporter *Reporter
	batch    *output.Batch

	// 统计
	blocksProcessed  atomic.Uint64
	heartbeats       atomic.Uint64
	abortedBlocks    atomic.Uint64
	inscriptions     atomic.Uint64
	skippedActions   atomic.Uint64
	lastBlockNumber  atomic.Uint64
	lastEOSBlock     atomic.Uint64
	lastFlushSeconds atomic.Int64
}

// validateDependencies 验证依赖
func validateDependencies(cfg *config.ChainConfig, deps Dependencies, logger *logrus.Logger) error {
	if cfg == nil {
		return fmt.Errorf("链配置不能为空")
	}
	if logger == nil {
		return fmt.Errorf("日志器不能为空")
	}
	if deps.Feed == nil {
		return fmt.Errorf("区块流不能为空")
	}
	if deps.Output == nil {
		return fmt.Errorf("输出器不能为空")
	}
	if deps.Store == nil {
		return fmt.Errorf("游标存储不能为空")
	}
	if deps.Resolver == nil {
		return fmt.Errorf("发送方解析器不能为空")
	}
	return nil
}

// NewCollector 创建采集器
func NewCollector(cfg *config.ChainConfig, deps Dependencies, logger *logrus.Logger) (*Collector, error) {
	if err := validateDependencies(cfg, deps, logger); err != nil {
		return nil, errors.ErrConfigInvalid.Wrap(err)
	}

	clock := deps.Clock
	if clock == nil {
		var err error
		if clock, err = chain.NewClock(cfg.GenesisTime); err != nil {
			return nil, errors.ErrConfigInvalid.Wrap(err)
		}
	}

	validator := deps.Validator
	if validator == nil {
		validator = validation.NewOpCodeValidator(logger, cfg.Protocol)
	}

	pushAction := cfg.PushAction
	if pushAction == "" {
		pushAction = models.PushTxActionName
	}
	executedStatus := cfg.ExecutedStatus
	if executedStatus == "" {
		executedStatus = models.TransactionStatusExecuted
	}

	return &Collector{
		feed:           deps.Feed,
		outputter:      deps.Output,
		store:          deps.Store,
		resolver:       deps.Resolver,
		validator:      validator,
		clock:          clock,
		pushAction:     pushAction,
		executedStatus: executedStatus,
		logger:         logger,
		errors:         errors.NewErrorHandler(logger),
		reporter:       NewReporter(logger),
		batch:          output.NewBatch(),
	}, nil
}

// Run 从已保存的游标处开始消费区块，直到流结束、出错或上下文取消
// 已收到的区块在取消后仍会完成写入与游标保存
func (c *Collector) Run(ctx context.Context) error {
	var token string
	if cursor := c.store.LoadCursor(); !cursor.IsEmpty() {
		token = cursor.Token
		c.logger.WithFields(logging.BlockFields(cursor.BlockNumber, cursor.EOSBlockNumber)).
			Infof("从游标继续: %s", token)
	} else {
		c.logger.Info("没有已保存的游标，从区块流起点开始")
	}

	stream, err := c.feed.Stream(ctx, token)
	if err != nil {
		return c.fatal(fmt.Errorf("打开区块流失败: %w", err))
	}
	defer stream.Close()

	for {
		if err := ctx.Err(); err != nil {
			c.logger.Info("采集已停止")
			return err
		}

		msg, err := stream.Next(ctx)
		if err == io.EOF {
			c.logger.Info("区块流已结束")
			return nil
		}
		if err != nil {
			if ctx.Err() != nil && stderrors.Is(err, ctx.Err()) {
				c.logger.Info("采集已停止")
				return err
			}
			return c.fatal(fmt.Errorf("读取区块流失败: %w", err))
		}

		if err := c.ProcessBlock(context.WithoutCancel(ctx), msg); err != nil {
			return c.fatal(err)
		}
	}
}

// fatal 记录致命错误并返回
func (c *Collector) fatal(err error) error {
	c.errors.HandleError(err)
	return err
}

// ProcessBlock 处理一个区块：解析铭文、写入、保存游标
func (c *Collector) ProcessBlock(ctx context.Context, msg *models.BlockMessage) error {
	if msg == nil {
		return nil
	}
	if !msg.HasTimestamp() {
		// 心跳消息，不写入也不保存游标
		c.heartbeats.Inc()
		c.logger.Debugf("跳过没有时间戳的消息，游标: %s", msg.Cursor)
		return nil
	}

	meta := c.blockMeta(msg)
	fields := logging.BlockFields(meta.Number, meta.EOSBlockNumber)
	c.batch.Reset()

	for _, trace := range msg.TransactionTraces {
		if !trace.HasStatus(c.executedStatus) {
			// 遇到未成功执行的交易即停止处理本区块剩余交易
			c.abortedBlocks.Inc()
			c.logger.WithFields(fields).Debugf("交易 %s 未成功执行，停止处理本区块剩余交易", trace.GetID())
			break
		}

		for _, at := range trace.ActionTraces {
			if !at.IsPushTx(c.pushAction) {
				continue
			}

			record, err := c.processAction(ctx, meta, at.Action)
			if err != nil {
				c.skip(err, meta)
				continue
			}
			if err := c.batch.Append(record); err != nil {
				c.skip(errors.ErrInvalidOpCode.Wrap(err), meta)
				continue
			}
			c.reporter.Record(meta.Number)
			c.logger.WithFields(logging.TxFields(meta.Number, meta.EOSBlockNumber, record.ID)).
				Debugf("收录铭文，类型: %s", record.ContentType)
		}
	}

	return c.flush(ctx, msg, meta)
}

// blockMeta 由消息时钟计算区块信息
func (c *Collector) blockMeta(msg *models.BlockMessage) BlockMeta {
	ts := *msg.Clock.Timestamp
	return BlockMeta{
		Number:         c.clock.BlockNumber(ts),
		Timestamp:      ts.Unix(),
		EOSBlockNumber: uint64(msg.Clock.Number),
		EOSBlockID:     msg.Clock.ID,
	}
}

// processAction 解码 -> 校验 -> 解析发送方 -> 构建记录
func (c *Collector) processAction(ctx context.Context, meta BlockMeta, action *models.Action) (*models.InscriptionRecord, error) {
	var data models.PushTxData
	if err := json.Unmarshal([]byte(action.JSONData), &data); err != nil {
		return nil, errors.ErrInvalidTransaction.Wrap(err).WithContext("reason", "invalid_action_data")
	}

	tx, err := decoder.DecodePushTx(&data)
	if err != nil {
		return nil, err
	}

	content := string(tx.Data)
	op, err := c.validator.Validate(content)
	if err != nil {
		if ie, ok := errors.AsIndexerError(err); ok {
			return nil, ie.WithTxHash(tx.Hash)
		}
		return nil, err
	}

	from, err := c.resolver.Resolve(ctx, tx.Raw)
	if err != nil {
		if ie, ok := errors.AsIndexerError(err); ok && ie.Type == errors.ErrorTypeResolver {
			return nil, ie.WithTxHash(tx.Hash)
		}
		return nil, errors.ErrSenderResolution.Wrap(err).WithTxHash(tx.Hash)
	}

	return BuildRecord(meta, tx, content, op, from)
}

// skip 跳过单笔交易，只记录不中断
func (c *Collector) skip(err error, meta BlockMeta) {
	c.skippedActions.Inc()
	if ie, ok := errors.AsIndexerError(err); ok {
		err = ie.WithBlockNumber(meta.Number).WithContext("eos_block_number", meta.EOSBlockNumber)
	}
	c.errors.HandleError(err)
}

// flush 先写入数据，再保存游标
func (c *Collector) flush(ctx context.Context, msg *models.BlockMessage, meta BlockMeta) error {
	count := c.batch.Len()

	if err := c.outputter.WriteInscriptions(ctx, c.batch); err != nil {
		return errors.ErrStorageWrite.Wrap(err).WithBlockNumber(meta.Number).WithContext("target", "inscriptions")
	}
	c.batch.Reset()

	if err := c.outputter.WriteBlock(ctx, meta.Record()); err != nil {
		return errors.ErrStorageWrite.Wrap(err).WithBlockNumber(meta.Number).WithContext("target", "blocks")
	}

	cursor := &models.Cursor{
		Token:          msg.Cursor,
		BlockNumber:    meta.Number,
		EOSBlockNumber: meta.EOSBlockNumber,
		Timestamp:      meta.Timestamp,
	}
	if err := c.store.SaveCursor(cursor); err != nil {
		return errors.ErrCheckpoint.Wrap(err).WithBlockNumber(meta.Number)
	}

	c.blocksProcessed.Inc()
	c.inscriptions.Add(uint64(count))
	c.lastBlockNumber.Store(meta.Number)
	c.lastEOSBlock.Store(meta.EOSBlockNumber)
	c.lastFlushSeconds.Store(time.Now().Unix())

	if count > 0 {
		c.logger.WithFields(logging.BlockFields(meta.Number, meta.EOSBlockNumber)).
			Debugf("区块写入 %d 条铭文记录", count)
	}
	return nil
}

// GetStats 获取采集统计信息
func (c *Collector) GetStats() map[string]interface{} {
	stats := map[string]interface{}{
		"blocks_processed":   c.blocksProcessed.Load(),
		"heartbeats_skipped": c.heartbeats.Load(),
		"aborted_blocks":     c.abortedBlocks.Load(),
		"inscriptions":       c.inscriptions.Load(),
		"skipped_actions":    c.skippedActions.Load(),
		"last_block_number":  c.lastBlockNumber.Load(),
		"last_eos_block":     c.lastEOSBlock.Load(),
		"operations_per_sec": fmt.Sprintf("%.2f", c.reporter.Rate()),
		"errors":             c.errors.GetStats().Snapshot(),
	}
	if ts := c.lastFlushSeconds.Load(); ts > 0 {
		stats["last_flush_time"] = time.Unix(ts, 0).UTC().Format(time.RFC3339)
	}
	return stats
}

// ErrorStats 错误统计
func (c *Collector) ErrorStats() *errors.ErrorStats {
	return c.errors.GetStats()
}
