package chain

import (
	"fmt"
	"time"
)

// DefaultGenesisTime EOS EVM 主网创世时间
const DefaultGenesisTime = "2023-04-05T02:18:09Z"

// Clock EOS EVM 出块时钟，每秒一个 EVM 区块
type Clock struct {
	genesis time.Time
}

// NewClock 根据 RFC3339 创世时间创建时钟，为空时使用主网创世时间
func NewClock(genesis string) (*Clock, error) {
	if genesis == "" {
		genesis = DefaultGenesisTime
	}
	t, err := time.Parse(time.RFC3339, genesis)
	if err != nil {
		return nil, fmt.Errorf("解析创世时间失败: %w", err)
	}
	return &Clock{genesis: t.UTC()}, nil
}

// Genesis 返回创世时间
func (c *Clock) Genesis() time.Time {
	return c.genesis
}

// BlockNumber 由区块时间推算 EVM 区块号，创世时刻为 1 号区块
// 早于创世时间的时间戳返回 0
func (c *Clock) BlockNumber(ts time.Time) uint64 {
	if ts.Before(c.genesis) {
		return 0
	}
	return uint64(ts.Sub(c.genesis)/time.Second) + 1
}
