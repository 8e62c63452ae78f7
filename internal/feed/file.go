package feed

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"eorc20-indexer/internal/errors"
	"eorc20-indexer/pkg/models"

	"github.com/sirupsen/logrus"
)

// 单行最大长度
const maxLineSize = 16 * 1024 * 1024

// FileFeed 从 JSONL 文件回放区块消息，每行一条且自带游标
type FileFeed struct {
	path   string
	logger *logrus.Logger
}

// NewFileFeed 创建回放区块流
func NewFileFeed(path string, logger *logrus.Logger) *FileFeed {
	return &FileFeed{path: path, logger: logger}
}

// Stream 打开文件，游标非空时从携带该游标的行之后开始
func (f *FileFeed) Stream(ctx context.Context, cursor string) (Stream, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, errors.ErrFeed.Wrap(err).WithContext("path", f.path)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	s := &fileStream{file: file, scanner: scanner}

	if cursor != "" {
		if err := s.seek(ctx, cursor); err != nil {
			file.Close()
			return nil, err
		}
		f.logger.Infof("从游标 %s 之后继续回放 (第 %d 行)", cursor, s.line)
	}
	return s, nil
}

// Close 实现 Feed
func (f *FileFeed) Close() error {
	return nil
}

type fileStream struct {
	file    *os.File
	scanner *bufio.Scanner
	line    int
}

// seek 跳过游标所在行及之前的所有行
func (s *fileStream) seek(ctx context.Context, cursor string) error {
	for {
		msg, err := s.Next(ctx)
		if err == io.EOF {
			return errors.ErrFeed.Wrap(fmt.Errorf("游标 %s 不在回放文件中", cursor))
		}
		if err != nil {
			return err
		}
		if msg.Cursor == cursor {
			return nil
		}
	}
}

// Next 读取下一条消息，跳过空行
func (s *fileStream) Next(ctx context.Context) (*models.BlockMessage, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, errors.ErrFeed.Wrap(err)
			}
			return nil, io.EOF
		}
		s.line++

		data := bytes.TrimSpace(s.scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		msg, err := decodeMessage(data)
		if err != nil {
			if ie, ok := errors.AsIndexerError(err); ok {
				return nil, ie.WithContext("line", s.line)
			}
			return nil, err
		}
		return msg, nil
	}
}

func (s *fileStream) Close() error {
	return s.file.Close()
}
