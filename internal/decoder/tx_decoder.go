package decoder

import (
	"fmt"
	"strings"

	"eorc20-indexer/internal/errors"
	"eorc20-indexer/pkg/models"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// DecodeHex 解码pushtx中的rlptx字段，兼容带或不带0x前缀
func DecodeHex(rlptx string) ([]byte, error) {
	s := strings.TrimSpace(rlptx)
	if s == "" {
		return nil, errors.ErrInvalidTransaction.WithContext("reason", "empty_rlptx")
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	raw, err := hexutil.Decode(s)
	if err != nil {
		return nil, errors.ErrInvalidTransaction.Wrap(err).WithContext("reason", "invalid_hex")
	}
	return raw, nil
}

// DecodeTransaction 解码原始交易字节
// 没有接收地址或负载为空的交易不含铭文，直接拒绝
func DecodeTransaction(raw []byte) (*models.DecodedTransaction, error) {
	if len(raw) == 0 {
		return nil, errors.ErrInvalidTransaction.WithContext("reason", "empty")
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, errors.ErrInvalidTransaction.Wrap(err).WithContext("reason", "malformed")
	}

	to := tx.To()
	if to == nil {
		return nil, errors.ErrInvalidTransaction.WithContext("reason", "no_recipient")
	}
	data := tx.Data()
	if len(data) == 0 {
		return nil, errors.ErrInvalidTransaction.WithContext("reason", "empty_data")
	}

	nonce := tx.Nonce()
	decoded := &models.DecodedTransaction{
		Hash:  crypto.Keccak256Hash(raw).Hex(),
		To:    to.Hex(),
		Data:  data,
		Nonce: &nonce,
		Raw:   raw,
	}
	// 零金额视为未设置
	if v := tx.Value(); v != nil && v.Sign() > 0 {
		decoded.Value = v
	}
	return decoded, nil
}

// DecodePushTx 解码pushtx动作中的交易
func DecodePushTx(data *models.PushTxData) (*models.DecodedTransaction, error) {
	if data == nil {
		return nil, errors.ErrInvalidTransaction.WithContext("reason", "no_action_data")
	}
	raw, err := DecodeHex(data.RLPTx)
	if err != nil {
		return nil, err
	}
	tx, err := DecodeTransaction(raw)
	if err != nil {
		return nil, fmt.Errorf("pushtx miner=%s: %w", data.Miner, err)
	}
	return tx, nil
}
