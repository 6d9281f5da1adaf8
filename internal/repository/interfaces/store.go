package interfaces

import (
	"context"
	"errors"
)

var (
	// ErrDuplicate 违反唯一约束
	ErrDuplicate = errors.New("duplicate record")
	// ErrLockTimeout 行锁等待超时或死锁
	ErrLockTimeout = errors.New("lock wait timeout")
	// ErrNoRowsAffected 条件更新未命中
	ErrNoRowsAffected = errors.New("no rows affected")
)

// Repositories 同一连接或事务下的一组仓储
type Repositories struct {
	Inventory InventoryRepository
	Catalog   CatalogProvider
	Orders    OrderRepository
	Returns   ReturnRepository
	Policies  PolicyRepository
	Users     UserRepository
}

// UnitOfWork 由服务显式注入，fn 返回错误时整个事务回滚
type UnitOfWork interface {
	Repositories() Repositories
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
