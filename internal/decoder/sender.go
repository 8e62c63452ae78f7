package decoder

import (
	"context"
	"math/big"

	"eorc20-indexer/internal/errors"

	"github.com/ethereum/go-ethereum/core/types"
)

// AddressResolver 从原始交易字节解析发送方地址
type AddressResolver interface {
	Resolve(ctx context.Context, raw []byte) (string, error)
}

// SignatureResolver 通过签名恢复发送方
type SignatureResolver struct {
	chainID *big.Int // 为空时不校验链ID
}

// NewSignatureResolver 创建签名解析器，chainID 为 0 表示不校验
func NewSignatureResolver(chainID uint64) *SignatureResolver {
	r := &SignatureResolver{}
	if chainID > 0 {
		r.chainID = new(big.Int).SetUint64(chainID)
	}
	return r
}

// Resolve 实现 AddressResolver
func (r *SignatureResolver) Resolve(ctx context.Context, raw []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.ErrSenderResolution.Wrap(err)
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return "", errors.ErrSenderResolution.Wrap(err).WithContext("reason", "malformed")
	}

	var signer types.Signer
	if tx.Protected() {
		if r.chainID != nil && tx.ChainId().Cmp(r.chainID) != 0 {
			return "", errors.ErrSenderResolution.
				WithContext("reason", "chain_id_mismatch").
				WithContext("chain_id", tx.ChainId().String())
		}
		signer = types.LatestSignerForChainID(tx.ChainId())
	} else {
		signer = types.HomesteadSigner{}
	}

	from, err := types.Sender(signer, tx)
	if err != nil {
		return "", errors.ErrSenderResolution.Wrap(err).WithTxHash(tx.Hash().Hex())
	}
	return from.Hex(), nil
}
