package models

import (
	"math/big"
)

// PushTxData pushtx动作的jsonData内容
type PushTxData struct {
	Miner string `json:"miner"`
	RLPTx string `json:"rlptx"` // 不带0x前缀的十六进制
}

// DecodedTransaction 解码后的交易
type DecodedTransaction struct {
	Hash  string   // 原始交易字节的keccak256
	To    string   // 接收地址，合约创建交易没有
	Data  []byte   // 交易负载
	Value *big.Int // 可选
	Nonce *uint64  // 可选，0 为合法值
	Raw   []byte   // 原始交易字节，用于解析发送方
}

// ValueString 返回十进制金额，金额为空时返回空串
func (t *DecodedTransaction) ValueString() string {
	if t == nil || t.Value == nil {
		return ""
	}
	return t.Value.String()
}

// InscriptionRecord 铭文记录
type InscriptionRecord struct {
	ID          string `json:"id"`
	Block       uint64 `json:"block"`
	Timestamp   int64  `json:"timestamp"`
	From        string `json:"from"`
	To          string `json:"to"`
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
	Value       string `json:"value,omitempty"`
}
