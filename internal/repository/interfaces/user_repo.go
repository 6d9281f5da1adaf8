package interfaces

import (
	"context"
	"ztuff-backend/internal/model"
)

// UserRepository 只读访问身份服务同步过来的用户资料和收货地址
type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
	GetAddressByID(ctx context.Context, id int64) (*model.UserAddress, error)
}
