package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"quorum/internal/store"
	"quorum/internal/store/model"
)

type SqliteStore struct {
	db *gorm.DB
}

func NewSqliteStore(path string) (*SqliteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	return newSqliteStore(db)
}

// NewSqliteStoreFromDB 供测试注入内存库。
func NewSqliteStoreFromDB(db *gorm.DB) (*SqliteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db 不能为空")
	}
	return newSqliteStore(db)
}

func newSqliteStore(db *gorm.DB) (*SqliteStore, error) {
	models := []interface{}{
		&model.CycleModel{},
		&model.StageLogModel{},
		&model.OrderModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) SaveCycle(ctx context.Context, rec store.CycleRecord) error {
	m := model.CycleModel{
		CycleID:       rec.CycleID,
		Symbol:        rec.Symbol,
		Price:         rec.Price,
		OpinionsJSON:  rec.Opinions,
		BracketJSON:   rec.Bracket,
		DecisionJSON:  rec.Decision,
		WarningsJSON:  rec.Warnings,
		CreatedAtUnix: time.Now().Unix(),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *SqliteStore) LogStage(ctx context.Context, l store.StageLog) error {
	m := model.StageLogModel{
		CycleID:       l.CycleID,
		Stage:         l.Stage,
		Model:         l.Model,
		Input:         l.Input,
		Output:        l.Output,
		Explanation:   l.Explanation,
		CreatedAtUnix: time.Now().Unix(),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *SqliteStore) SaveOrder(ctx context.Context, rec store.OrderRecord) error {
	m := model.OrderModel{
		CycleID:       rec.CycleID,
		ClientOrderID: rec.ClientOrderID,
		Symbol:        rec.Symbol,
		Side:          rec.Side,
		Size:          rec.Size,
		Price:         rec.Price,
		TakeProfit:    rec.TakeProfit,
		StopLoss:      rec.StopLoss,
		Leverage:      rec.Leverage,
		Status:        rec.Status,
		CreatedAtUnix: time.Now().Unix(),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *SqliteStore) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecentCycles 按时间倒序取最近 n 个周期，供 HTTP 查询接口使用。
func (s *SqliteStore) RecentCycles(ctx context.Context, n int) ([]model.CycleModel, error) {
	if n <= 0 {
		n = 10
	}
	var out []model.CycleModel
	err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(n).Find(&out).Error
	return out, err
}
