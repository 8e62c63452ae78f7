package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"eorc20-indexer/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// 最多保留的日志条数
const maxLogEntries = 1000

// StatsSource 提供统计信息的组件（采集器、游标存储）
type StatsSource interface {
	GetStats() map[string]interface{}
}

// Server 状态API服务器，只读
type Server struct {
	config     *config.Config
	collector  StatsSource
	progress   StatsSource
	logger     *logrus.Logger
	logManager *LogManager
	router     *gin.Engine
	server     *http.Server
	startTime  time.Time
	port       int
}

// NewServer 创建API服务器，并把日志接入内存日志缓冲
func NewServer(cfg *config.Config, collector, progress StatsSource, logger *logrus.Logger) *Server {
	logManager := NewLogManager(maxLogEntries)
	logger.AddHook(NewLogHook(logManager))

	port := 8080
	if cfg != nil && cfg.API != nil && cfg.API.Port > 0 {
		port = cfg.API.Port
	}

	s := &Server{
		config:     cfg,
		collector:  collector,
		progress:   progress,
		logger:     logger,
		logManager: logManager,
		startTime:  time.Now(),
		port:       port,
	}
	s.router = s.newRouter()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler 返回路由，便于测试
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start 启动API服务器，阻塞直到服务器关闭
func (s *Server) Start() error {
	s.logger.Infof("API服务器启动在端口 %d", s.port)
	if err := s.server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop 停止API服务器
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("正在停止API服务器")
	return s.server.Shutdown(ctx)
}

func (s *Server) newRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	router.GET("/health", s.healthCheck)

	api := router.Group("/api/v1")
	{
		api.GET("/progress", s.getProgress)
		api.GET("/stats", s.getStats)
		api.GET("/config", s.getConfig)

		api.GET("/logs", s.getLogs)
		api.DELETE("/logs", s.clearLogs)
	}
	return router
}

// healthCheck 健康检查
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"service":   "eorc20-indexer",
	})
}

// getProgress 已保存的游标
func (s *Server) getProgress(c *gin.Context) {
	if s.progress == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "游标存储未初始化"})
		return
	}
	c.JSON(http.StatusOK, s.progress.GetStats())
}

// getStats 采集统计
func (s *Server) getStats(c *gin.Context) {
	stats := gin.H{
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	}
	if s.collector != nil {
		stats["collector"] = s.collector.GetStats()
	}
	if s.progress != nil {
		stats["progress"] = s.progress.GetStats()
	}
	c.JSON(http.StatusOK, stats)
}

// getConfig 当前配置，隐藏数据库连接串
func (s *Server) getConfig(c *gin.Context) {
	if s.config == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "配置未初始化"})
		return
	}

	redacted := *s.config
	if out := s.config.Output; out != nil && out.Postgres != nil && out.Postgres.DSN != "" {
		outCopy := *out
		pgCopy := *out.Postgres
		pgCopy.DSN = "******"
		outCopy.Postgres = &pgCopy
		redacted.Output = &outCopy
	}
	c.JSON(http.StatusOK, gin.H{"config": redacted})
}

// getLogs 分页获取最近日志
func (s *Server) getLogs(c *gin.Context) {
	level := c.Query("level")

	page := 1
	if p, err := strconv.Atoi(c.Query("page")); err == nil && p > 0 {
		page = p
	}
	pageSize := 20
	if ps, err := strconv.Atoi(c.Query("pageSize")); err == nil && ps > 0 {
		pageSize = ps
	}

	logs, total := s.logManager.GetLogsWithPagination(level, page, pageSize)
	c.JSON(http.StatusOK, gin.H{
		"logs":     logs,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
		"level":    level,
	})
}

// clearLogs 清空日志
func (s *Server) clearLogs(c *gin.Context) {
	s.logManager.ClearLogs()
	c.JSON(http.StatusOK, gin.H{"message": "日志已清空"})
}
