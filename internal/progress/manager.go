package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"eorc20-indexer/pkg/models"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	// 默认数据库路径
	DefaultDBPath = "./data/progress.db"

	// 存储桶名称
	ProgressBucket = "progress"

	// 进度键
	CursorKey    = "cursor"
	StartTimeKey = "start_time"
)

// ProgressInfo 进度信息
type ProgressInfo struct {
	Cursor         *models.Cursor `json:"cursor,omitempty"`
	StartTime      time.Time      `json:"start_time"`
	LastUpdateTime time.Time      `json:"last_update_time"`
	TotalBlocks    uint64         `json:"total_blocks"` // 本次运行保存的区块数
	ProcessingRate float64        `json:"processing_rate"`
}

// Manager 进度管理器，游标每次保存时整体覆盖
type Manager struct {
	db     *bolt.DB
	logger *logrus.Logger
	dbPath string
	mu     sync.RWMutex

	// 内存缓存
	cache *ProgressInfo
}

// NewManager 创建进度管理器
func NewManager(dbPath string, logger *logrus.Logger) (*Manager, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}

	// 确保目录存在
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	// 打开BoltDB数据库
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("打开进度数据库失败: %w", err)
	}

	manager := &Manager{
		db:     db,
		logger: logger,
		dbPath: dbPath,
		cache:  &ProgressInfo{},
	}

	if err := manager.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}

	if err := manager.loadCache(); err != nil {
		db.Close()
		return nil, fmt.Errorf("加载进度失败: %w", err)
	}

	logger.Infof("进度管理器已初始化，数据库路径: %s", dbPath)
	return manager, nil
}

// initDB 初始化数据库结构
func (m *Manager) initDB() error {
	return m.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(ProgressBucket)); err != nil {
			return fmt.Errorf("创建进度存储桶失败: %w", err)
		}
		return nil
	})
}

// loadCache 从数据库加载游标
func (m *Manager) loadCache() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(ProgressBucket))
		if bucket == nil {
			return nil
		}

		if data := bucket.Get([]byte(CursorKey)); data != nil {
			var cursor models.Cursor
			if err := json.Unmarshal(data, &cursor); err != nil {
				return fmt.Errorf("解析游标失败: %w", err)
			}
			m.cache.Cursor = &cursor
			m.cache.LastUpdateTime = cursor.UpdatedAt
		}

		if data := bucket.Get([]byte(StartTimeKey)); data != nil {
			var startTime time.Time
			if err := json.Unmarshal(data, &startTime); err == nil {
				m.cache.StartTime = startTime
			}
		}
		return nil
	})
}

// LoadCursor 返回已保存的游标，没有进度时返回 nil
func (m *Manager) LoadCursor() *models.Cursor {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.cache.Cursor == nil {
		return nil
	}
	c := *m.cache.Cursor
	return &c
}

// SaveCursor 持久化游标，返回前已写入磁盘
func (m *Manager) SaveCursor(cursor *models.Cursor) error {
	if cursor.IsEmpty() {
		return fmt.Errorf("游标为空")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	saved := *cursor
	saved.UpdatedAt = now

	data, err := json.Marshal(&saved)
	if err != nil {
		return fmt.Errorf("序列化游标失败: %w", err)
	}

	startTime := m.cache.StartTime
	if startTime.IsZero() {
		startTime = now
	}

	// bbolt 在事务提交时 fsync
	err = m.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(ProgressBucket))
		if bucket == nil {
			return fmt.Errorf("进度存储桶不存在")
		}
		if err := bucket.Put([]byte(CursorKey), data); err != nil {
			return fmt.Errorf("保存游标失败: %w", err)
		}
		if m.cache.StartTime.IsZero() {
			startData, err := json.Marshal(startTime)
			if err != nil {
				return err
			}
			if err := bucket.Put([]byte(StartTimeKey), startData); err != nil {
				return fmt.Errorf("保存开始时间失败: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// 提交成功后再更新缓存
	m.cache.Cursor = &saved
	m.cache.StartTime = startTime
	m.cache.LastUpdateTime = now
	m.cache.TotalBlocks++
	if duration := now.Sub(startTime).Seconds(); duration > 0 {
		m.cache.ProcessingRate = float64(m.cache.TotalBlocks) / duration
	}
	return nil
}

// GetProgress 获取进度信息副本
func (m *Manager) GetProgress() *ProgressInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := *m.cache
	if m.cache.Cursor != nil {
		c := *m.cache.Cursor
		info.Cursor = &c
	}
	return &info
}

// Reset 重置进度
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(ProgressBucket))
		if bucket == nil {
			return nil
		}

		// 清空所有数据
		var keys [][]byte
		if err := bucket.ForEach(func(k, v []byte) error {
			keys = append(keys, append([]byte(nil), k...))
			return nil
		}); err != nil {
			return err
		}
		for _, k := range keys {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("重置进度失败: %w", err)
	}

	m.cache = &ProgressInfo{}
	m.logger.Info("进度已重置")
	return nil
}

// GetDBPath 获取数据库路径
func (m *Manager) GetDBPath() string {
	return m.dbPath
}

// GetStats 获取统计信息
func (m *Manager) GetStats() map[string]interface{} {
	info := m.GetProgress()

	stats := map[string]interface{}{
		"total_blocks":     info.TotalBlocks,
		"processing_rate":  fmt.Sprintf("%.2f blocks/sec", info.ProcessingRate),
		"start_time":       info.StartTime.Format(time.RFC3339),
		"last_update_time": info.LastUpdateTime.Format(time.RFC3339),
	}

	if info.Cursor != nil {
		stats["cursor"] = info.Cursor.Token
		stats["block_number"] = info.Cursor.BlockNumber
		stats["eos_block_number"] = info.Cursor.EOSBlockNumber
		stats["block_timestamp"] = info.Cursor.Timestamp
	}

	if !info.StartTime.IsZero() {
		stats["running_duration"] = time.Since(info.StartTime).String()
	}
	return stats
}

// Close 关闭进度管理器
func (m *Manager) Close() error {
	if m.db != nil {
		m.logger.Info("关闭进度管理器")
		return m.db.Close()
	}
	return nil
}
