package model

import "time"

// User 用户资料，仅用于通知和地址回填
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAddress 用户保存的收货地址
type UserAddress struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	ReceiverName  string    `json:"receiver_name"`
	Phone         string    `json:"phone"`
	Province      string    `json:"province"`
	City          string    `json:"city"`
	District      string    `json:"district"`
	DetailAddress string    `json:"detail_address"`
	PostalCode    string    `json:"postal_code"`
	IsDefault     bool      `json:"is_default"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Destination 转换为订单收货地址快照
func (a *UserAddress) Destination() Destination {
	return Destination{
		ReceiverName:  a.ReceiverName,
		Phone:         a.Phone,
		Province:      a.Province,
		City:          a.City,
		District:      a.District,
		DetailAddress: a.DetailAddress,
		PostalCode:    a.PostalCode,
	}
}
