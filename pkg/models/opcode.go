package models

import (
	"encoding/json"
	"math/big"
	"strconv"
	"strings"
)

// OpKind 铭文操作类型
type OpKind string

const (
	OpDeploy   OpKind = "deploy"
	OpMint     OpKind = "mint"
	OpTransfer OpKind = "transfer"

	// ProtocolEORC20 协议标识
	ProtocolEORC20 = "eorc20"
)

// IsValid 判断操作类型是否可识别
func (k OpKind) IsValid() bool {
	switch k {
	case OpDeploy, OpMint, OpTransfer:
		return true
	}
	return false
}

// AnyOpCode 三种操作的统一接口
type AnyOpCode interface {
	Kind() OpKind
	Protocol() string
	Ticker() string
	// Raw 返回校验通过的原始JSON
	Raw() json.RawMessage
}

// OpHeader 公共头部
type OpHeader struct {
	P    string `json:"p"`
	Op   OpKind `json:"op"`
	Tick string `json:"tick"`
	raw  json.RawMessage
}

func (h *OpHeader) Kind() OpKind         { return h.Op }
func (h *OpHeader) Protocol() string     { return h.P }
func (h *OpHeader) Ticker() string       { return h.Tick }
func (h *OpHeader) Raw() json.RawMessage { return h.raw }

// SetRaw 记录原始JSON
func (h *OpHeader) SetRaw(raw []byte) {
	h.raw = append(json.RawMessage(nil), raw...)
}

// DeployOpCode 部署操作
type DeployOpCode struct {
	OpHeader
	Max *big.Int `json:"-"`
	// lim/prec 在解析阶段不校验范围，原样保留
	Lim  json.RawMessage `json:"lim,omitempty"`
	Prec json.RawMessage `json:"prec,omitempty"`
}

// Limit 解析单次铸造上限
func (d *DeployOpCode) Limit() (*big.Int, bool) {
	if len(d.Lim) == 0 {
		return nil, false
	}
	return ParseAmount(d.Lim)
}

// Precision 解析精度
func (d *DeployOpCode) Precision() (int, bool) {
	if len(d.Prec) == 0 {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(d.Prec, &n); err != nil {
		return 0, false
	}
	v, err := strconv.Atoi(n.String())
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// MintOpCode 铸造操作
type MintOpCode struct {
	OpHeader
	Amt *big.Int `json:"-"`
}

// TransferOpCode 转账操作
type TransferOpCode struct {
	OpHeader
	Amt *big.Int `json:"-"`
}

// ParseAmount 解析非负任意精度整数
//
// 接受十进制数字字符串（如 "210000000000"）或JSON整数字面量，
// 负数、小数、科学计数法、空串一律拒绝。
func ParseAmount(raw json.RawMessage) (*big.Int, bool) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return nil, false
	}
	if text[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, false
		}
		text = strings.TrimSpace(s)
	}
	return ParseAmountString(text)
}

// ParseAmountString 解析十进制非负整数字符串
func ParseAmountString(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	value, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, false
	}
	if value.Sign() < 0 {
		return nil, false
	}
	return value, true
}
