package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"eorc20-indexer/pkg/models"

	"github.com/sirupsen/logrus"
)

const (
	// InscriptionsFileName 铭文记录文件
	InscriptionsFileName = "eorc20.jsonl"
	// BlocksFileName 区块元数据文件
	BlocksFileName = "blocks.jsonl"
)

// FileOutput 追加写入的 JSONL 文件输出
type FileOutput struct {
	outputDir string
	logger    *logrus.Logger

	mu               sync.Mutex
	inscriptionsFile *os.File
	blocksFile       *os.File
}

// NewFileOutput 打开（或创建）输出文件，并截掉上次崩溃留下的半行
func NewFileOutput(outputDir string, logger *logrus.Logger) (*FileOutput, error) {
	if outputDir == "" {
		return nil, fmt.Errorf("输出目录为空")
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	inscriptionsFile, err := openAppendFile(filepath.Join(outputDir, InscriptionsFileName), logger)
	if err != nil {
		return nil, err
	}
	blocksFile, err := openAppendFile(filepath.Join(outputDir, BlocksFileName), logger)
	if err != nil {
		inscriptionsFile.Close()
		return nil, err
	}

	return &FileOutput{
		outputDir:        outputDir,
		logger:           logger,
		inscriptionsFile: inscriptionsFile,
		blocksFile:       blocksFile,
	}, nil
}

// openAppendFile 以追加模式打开文件
func openAppendFile(path string, logger *logrus.Logger) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("打开文件 %s 失败: %w", path, err)
	}

	dropped, err := truncatePartialLine(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("修复文件 %s 失败: %w", path, err)
	}
	if dropped > 0 && logger != nil {
		logger.WithFields(logrus.Fields{
			"file":          path,
			"dropped_bytes": dropped,
		}).Warn("丢弃文件末尾不完整的行")
	}
	return f, nil
}

// truncatePartialLine 将文件截断到最后一个换行符之后，返回丢弃的字节数
func truncatePartialLine(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := info.Size()
	if size == 0 {
		return 0, nil
	}

	const chunkSize = 4096
	buf := make([]byte, chunkSize)
	end := size
	for end > 0 {
		start := end - chunkSize
		if start < 0 {
			start = 0
		}
		chunk := buf[:end-start]
		if _, err := f.ReadAt(chunk, start); err != nil && err != io.EOF {
			return 0, err
		}
		if idx := bytes.LastIndexByte(chunk, '\n'); idx >= 0 {
			keep := start + int64(idx) + 1
			if keep == size {
				return 0, nil
			}
			return size - keep, truncateAndSync(f, keep)
		}
		end = start
	}
	// 整个文件都没有换行符
	return size, truncateAndSync(f, 0)
}

func truncateAndSync(f *os.File, size int64) error {
	if err := f.Truncate(size); err != nil {
		return err
	}
	return f.Sync()
}

// WriteInscriptions 一次写入整个缓冲区并刷盘
func (o *FileOutput) WriteInscriptions(ctx context.Context, batch *Batch) error {
	if batch == nil || batch.Len() == 0 {
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, err := o.inscriptionsFile.Write(batch.Bytes()); err != nil {
		return fmt.Errorf("写入铭文文件失败: %w", err)
	}
	// 强制刷新到磁盘
	if err := o.inscriptionsFile.Sync(); err != nil {
		return fmt.Errorf("刷新铭文文件失败: %w", err)
	}
	return nil
}

// WriteBlock 写入区块元数据
func (o *FileOutput) WriteBlock(ctx context.Context, block *models.BlockRecord) error {
	if block == nil {
		return nil
	}

	data, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("序列化区块数据失败: %w", err)
	}
	data = append(data, '\n')

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, err := o.blocksFile.Write(data); err != nil {
		return fmt.Errorf("写入区块文件失败: %w", err)
	}
	if err := o.blocksFile.Sync(); err != nil {
		return fmt.Errorf("刷新区块文件失败: %w", err)
	}
	return nil
}

// Close 关闭文件
func (o *FileOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var firstErr error
	for _, f := range []*os.File{o.inscriptionsFile, o.blocksFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	o.inscriptionsFile = nil
	o.blocksFile = nil
	return firstErr
}
