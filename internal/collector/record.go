package collector

import (
	"fmt"

	"eorc20-indexer/internal/decoder"
	"eorc20-indexer/internal/errors"
	"eorc20-indexer/pkg/models"
)

// BlockMeta 构建记录所需的区块信息
type BlockMeta struct {
	Number         uint64 // EVM 区块号
	Timestamp      int64  // 秒
	EOSBlockNumber uint64
	EOSBlockID     string
}

// Record 转为区块元数据记录
func (m BlockMeta) Record() *models.BlockRecord {
	return &models.BlockRecord{
		Timestamp:      m.Timestamp,
		BlockNumber:    m.Number,
		EOSBlockNumber: m.EOSBlockNumber,
		EOSBlockID:     m.EOSBlockID,
	}
}

// BuildRecord 构建铭文记录，只有校验通过的操作才会生成记录
func BuildRecord(meta BlockMeta, tx *models.DecodedTransaction, content string, op models.AnyOpCode, from string) (*models.InscriptionRecord, error) {
	if tx == nil || op == nil {
		return nil, errors.ErrInvalidOpCode.Wrap(fmt.Errorf("缺少交易或铭文操作"))
	}
	if from == "" {
		return nil, errors.ErrSenderResolution.WithTxHash(tx.Hash).WithContext("reason", "empty_sender")
	}

	return &models.InscriptionRecord{
		ID:          tx.Hash,
		Block:       meta.Number,
		Timestamp:   meta.Timestamp,
		From:        from,
		To:          tx.To,
		ContentType: decoder.DetectContentType(content),
		Content:     content,
		Value:       tx.ValueString(),
	}, nil
}
