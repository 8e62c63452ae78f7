package models

import "time"

// Cursor 续传游标
//
// Token 为区块流下发的不透明游标，其余字段仅用于运维查看。
type Cursor struct {
	Token          string    `json:"cursor"`
	BlockNumber    uint64    `json:"block_number"`
	EOSBlockNumber uint64    `json:"eos_block_number"`
	Timestamp      int64     `json:"timestamp"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IsEmpty 判断是否没有任何进度
func (c *Cursor) IsEmpty() bool {
	return c == nil || c.Token == ""
}
