package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// 交易执行状态
const (
	// TransactionStatusExecuted 交易已成功执行
	TransactionStatusExecuted = "TRANSACTIONSTATUS_EXECUTED"

	// PushTxActionName EVM交易推送动作名
	PushTxActionName = "pushtx"
)

// BlockMessage 区块流中的一条消息
type BlockMessage struct {
	Cursor            string              `json:"cursor"`
	Clock             *Clock              `json:"clock,omitempty"`
	TransactionTraces []*TransactionTrace `json:"transactionTraces,omitempty"`
}

// Clock 区块时钟信息
type Clock struct {
	ID        string     `json:"id"`
	Number    Uint64     `json:"number"`
	Timestamp *time.Time `json:"timestamp,omitempty"` // 为空时视为心跳消息
}

// TransactionTrace 交易执行轨迹
type TransactionTrace struct {
	ID           string         `json:"id"`
	Index        Uint64         `json:"index"`
	Receipt      *Receipt       `json:"receipt,omitempty"`
	ActionTraces []*ActionTrace `json:"actionTraces,omitempty"`
}

// Receipt 交易回执
type Receipt struct {
	Status string `json:"status"`
}

// ActionTrace 动作轨迹
type ActionTrace struct {
	Action *Action `json:"action,omitempty"`
}

// Action 链上动作
type Action struct {
	Account  string `json:"account"`
	Name     string `json:"name"`
	JSONData string `json:"jsonData"`
}

// Uint64 64位整数，兼容 protojson 输出的字符串形式（"123"）与数字形式（123）
type Uint64 uint64

// UnmarshalJSON 实现 json.Unmarshaler
func (u *Uint64) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	text := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
	}

	v, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return fmt.Errorf("无效的64位整数 %s: %w", data, err)
	}
	*u = Uint64(v)
	return nil
}

// HasTimestamp 判断消息是否携带时间戳
func (m *BlockMessage) HasTimestamp() bool {
	return m != nil && m.Clock != nil && m.Clock.Timestamp != nil && !m.Clock.Timestamp.IsZero()
}

// GetID 返回交易ID，空轨迹返回空串
func (t *TransactionTrace) GetID() string {
	if t == nil {
		return ""
	}
	return t.ID
}

// HasStatus 判断回执状态
func (t *TransactionTrace) HasStatus(status string) bool {
	return t != nil && t.Receipt != nil && t.Receipt.Status == status
}

// IsPushTx 判断动作是否为交易推送动作
func (a *ActionTrace) IsPushTx(name string) bool {
	if name == "" {
		name = PushTxActionName
	}
	return a != nil && a.Action != nil && a.Action.Name == name
}

// BlockRecord 区块元数据记录（写入blocks存储）
type BlockRecord struct {
	Timestamp      int64  `json:"timestamp"`
	BlockNumber    uint64 `json:"block_number"`
	EOSBlockNumber uint64 `json:"eos_block_number"`
	EOSBlockID     string `json:"eos_block_id"`
}
