package mysql

import (
	"context"
	"database/sql"
	"ztuff-backend/internal/model"
	"ztuff-backend/internal/util"

	"go.uber.org/zap"
)

// userRepository 只读访问用户资料和地址
type userRepository struct {
	q querier
}

// FindByID 通过ID查找用户，不存在时返回 nil
func (r *userRepository) FindByID(ctx context.Context, id int64) (*model.User, error) {
	query := `SELECT id, username, email, role, created_at FROM users WHERE id = ?`
	var user model.User
	err := r.q.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Username, &user.Email, &user.Role, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		util.Logger.Error("查找用户失败", zap.Int64("user_id", id), zap.Error(err))
		return nil, err
	}
	return &user, nil
}

// GetAddressByID 获取收货地址
func (r *userRepository) GetAddressByID(ctx context.Context, id int64) (*model.UserAddress, error) {
	query := `SELECT id, user_id, receiver_name, phone, province, city, district, detail_address,
			  postal_code, is_default, created_at, updated_at
			  FROM user_addresses WHERE id = ?`
	var a model.UserAddress
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.UserID, &a.ReceiverName, &a.Phone, &a.Province, &a.City, &a.District, &a.DetailAddress,
		&a.PostalCode, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		util.Logger.Error("获取地址失败", zap.Int64("address_id", id), zap.Error(err))
		return nil, err
	}
	return &a, nil
}
