package mysql

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"
	"ztuff-backend/internal/repository/interfaces"
	"ztuff-backend/internal/util"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errDuplicateEntry  = 1062
)

// querier 由 *sql.DB 和 *sql.Tx 共同实现
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store 基于 MySQL 的工作单元
type Store struct {
	db              *sql.DB
	lockWaitTimeout int
}

func NewStore(db *sql.DB, lockWaitTimeoutSeconds int) *Store {
	if lockWaitTimeoutSeconds <= 0 {
		lockWaitTimeoutSeconds = 5
	}
	return &Store{db: db, lockWaitTimeout: lockWaitTimeoutSeconds}
}

func newRepositories(q querier) interfaces.Repositories {
	return interfaces.Repositories{
		Inventory: &inventoryRepository{q},
		Catalog:   &catalogRepository{q},
		Orders:    &orderRepository{q},
		Returns:   &returnRepository{q},
		Policies:  &policyRepository{q},
		Users:     &userRepository{q},
	}
}

// Repositories 事务外使用的仓储
func (s *Store) Repositories() interfaces.Repositories {
	return newRepositories(s.db)
}

// WithinTx 在单个事务中执行 fn，fn 返回错误或发生 panic 时回滚
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos interfaces.Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		util.Logger.Error("开始事务失败", zap.Error(err))
		return err
	}
	defer tx.Rollback()

	// 行锁等待有上限，超时后返回可重试错误而不是一直阻塞
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", s.lockWaitTimeout)); err != nil {
		util.Logger.Error("设置锁等待超时失败", zap.Error(err))
		return err
	}

	if err := fn(ctx, newRepositories(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		util.Logger.Error("提交事务失败", zap.Error(err))
		return translateError(err)
	}
	return nil
}

// EnsureSchema 建表，语句均为 IF NOT EXISTS
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			util.Logger.Error("初始化表结构失败", zap.Error(err), zap.String("statement", firstLine(stmt)))
			return err
		}
	}
	util.Logger.Info("表结构检查完成")
	return nil
}

// Ping 健康检查
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// translateError 将 MySQL 错误号转换为仓储层错误
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case errLockWaitTimeout, errDeadlock:
			return fmt.Errorf("%w: %v", interfaces.ErrLockTimeout, err)
		case errDuplicateEntry:
			return fmt.Errorf("%w: %v", interfaces.ErrDuplicate, err)
		}
	}
	return err
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
