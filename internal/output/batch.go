package output

import (
	"bytes"
	"encoding/json"
	"fmt"

	"eorc20-indexer/pkg/models"
)

// Batch 单个区块的铭文缓冲区，按加入顺序保存序列化后的记录
type Batch struct {
	buf   bytes.Buffer
	lines []int // 每行结束位置（不含换行符）
}

// NewBatch 创建缓冲区
func NewBatch() *Batch {
	return &Batch{}
}

// Append 序列化记录并追加一行
func (b *Batch) Append(record *models.InscriptionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化铭文记录失败: %w", err)
	}
	b.buf.Write(data)
	b.lines = append(b.lines, b.buf.Len())
	b.buf.WriteByte('\n')
	return nil
}

// Len 记录条数
func (b *Batch) Len() int {
	return len(b.lines)
}

// Bytes 换行分隔的全部内容，一次写入
func (b *Batch) Bytes() []byte {
	return b.buf.Bytes()
}

// Lines 逐条返回记录（不含换行符）
func (b *Batch) Lines() [][]byte {
	data := b.buf.Bytes()
	out := make([][]byte, 0, len(b.lines))
	start := 0
	for _, end := range b.lines {
		out = append(out, data[start:end])
		start = end + 1
	}
	return out
}

// Reset 清空缓冲区
func (b *Batch) Reset() {
	b.buf.Reset()
	b.lines = b.lines[:0]
}
