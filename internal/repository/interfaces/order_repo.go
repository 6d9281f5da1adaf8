package interfaces

import (
	"context"
	"time"
	"ztuff-backend/internal/model"
)

type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id int64) (*model.Order, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*model.Order, error)
	GetByOrderNumberForUpdate(ctx context.Context, orderNumber string) (*model.Order, error)
	GetByIdempotencyKey(ctx context.Context, customerID int64, key string) (*model.Order, error)
	UpdateStatus(ctx context.Context, order *model.Order) error
	SetHasActiveReturns(ctx context.Context, orderID int64, active bool) error
	ExpireReturnWindows(ctx context.Context, now time.Time) (int64, error)
}
