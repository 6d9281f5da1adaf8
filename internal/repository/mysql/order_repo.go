package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"
	"ztuff-backend/internal/model"
	"ztuff-backend/internal/util"

	"go.uber.org/zap"
)

type orderRepository struct {
	q querier
}

const orderColumns = `id, order_number, idempotency_key, customer_id,
	receiver_name, phone, province, city, district, detail_address, postal_code,
	subtotal, shipping_cost, discount, total, status, payment_type, payment_reference,
	delivered_at, return_window_expires, is_returnable, has_active_returns, created_at, updated_at`

// Create 写入订单和订单行
func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	util.Logger.Info("开始创建订单",
		zap.Int64("customer_id", order.CustomerID),
		zap.String("order_number", order.OrderNumber),
		zap.Int("lines", len(order.Lines)))

	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now

	query := `INSERT INTO orders (
			order_number, idempotency_key, customer_id,
			receiver_name, phone, province, city, district, detail_address, postal_code,
			subtotal, shipping_cost, discount, total, status,
			is_returnable, has_active_returns, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	d := order.Destination
	result, err := r.q.ExecContext(ctx, query,
		order.OrderNumber, order.IdempotencyKey, order.CustomerID,
		d.ReceiverName, d.Phone, d.Province, d.City, d.District, d.DetailAddress, d.PostalCode,
		order.Subtotal, order.ShippingCost, order.Discount, order.Total, order.Status,
		order.IsReturnable, order.HasActiveReturns, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		util.Logger.Error("创建订单失败", zap.Error(err))
		return translateError(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		util.Logger.Error("获取订单 ID 失败", zap.Error(err))
		return fmt.Errorf("failed to get order ID: %w", err)
	}
	order.ID = id

	lineQuery := `INSERT INTO order_lines (
			order_id, product_id, variation_id, category_id, quantity,
			unit_price, line_total, return_window_days, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for i := range order.Lines {
		line := &order.Lines[i]
		line.OrderID = order.ID
		line.CreatedAt = now
		result, err := r.q.ExecContext(ctx, lineQuery,
			line.OrderID, line.SKU.ProductID, line.SKU.VariationID, line.CategoryID, line.Quantity,
			line.UnitPrice, line.LineTotal, line.ReturnWindowDays, line.CreatedAt)
		if err != nil {
			util.Logger.Error("创建订单行失败", zap.String("sku", line.SKU.String()), zap.Error(err))
			return translateError(err)
		}
		lineID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get order line ID: %w", err)
		}
		line.ID = lineID
	}

	util.Logger.Info("订单创建成功", zap.Int64("order_id", order.ID))
	return nil
}

func (r *orderRepository) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
}

func (r *orderRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ? FOR UPDATE`, id)
}

func (r *orderRepository) GetByOrderNumberForUpdate(ctx context.Context, orderNumber string) (*model.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = ? FOR UPDATE`, orderNumber)
}

func (r *orderRepository) GetByIdempotencyKey(ctx context.Context, customerID int64, key string) (*model.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE customer_id = ? AND idempotency_key = ?`, customerID, key)
}

func (r *orderRepository) getOne(ctx context.Context, query string, args ...interface{}) (*model.Order, error) {
	var (
		order               model.Order
		deliveredAt         sql.NullTime
		returnWindowExpires sql.NullTime
	)
	d := &order.Destination
	err := r.q.QueryRowContext(ctx, query, args...).Scan(
		&order.ID, &order.OrderNumber, &order.IdempotencyKey, &order.CustomerID,
		&d.ReceiverName, &d.Phone, &d.Province, &d.City, &d.District, &d.DetailAddress, &d.PostalCode,
		&order.Subtotal, &order.ShippingCost, &order.Discount, &order.Total, &order.Status,
		&order.PaymentType, &order.PaymentReference,
		&deliveredAt, &returnWindowExpires, &order.IsReturnable, &order.HasActiveReturns,
		&order.CreatedAt, &order.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		util.Logger.Error("查询订单失败", zap.Error(err))
		return nil, translateError(err)
	}
	order.DeliveredAt = timePtr(deliveredAt)
	order.ReturnWindowExpires = timePtr(returnWindowExpires)

	lines, err := r.getLines(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Lines = lines
	return &order, nil
}

func (r *orderRepository) getLines(ctx context.Context, orderID int64) ([]model.OrderLine, error) {
	query := `SELECT id, order_id, product_id, variation_id, category_id, quantity,
			  unit_price, line_total, return_window_days, created_at
			  FROM order_lines WHERE order_id = ? ORDER BY id`
	rows, err := r.q.QueryContext(ctx, query, orderID)
	if err != nil {
		util.Logger.Error("查询订单行失败", zap.Int64("order_id", orderID), zap.Error(err))
		return nil, translateError(err)
	}
	defer rows.Close()

	var lines []model.OrderLine
	for rows.Next() {
		var (
			line       model.OrderLine
			categoryID sql.NullInt64
		)
		if err := rows.Scan(&line.ID, &line.OrderID, &line.SKU.ProductID, &line.SKU.VariationID, &categoryID,
			&line.Quantity, &line.UnitPrice, &line.LineTotal, &line.ReturnWindowDays, &line.CreatedAt); err != nil {
			return nil, err
		}
		line.CategoryID = int64Ptr(categoryID)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// UpdateStatus 持久化状态流转产生的字段
func (r *orderRepository) UpdateStatus(ctx context.Context, order *model.Order) error {
	order.UpdatedAt = time.Now()
	query := `UPDATE orders SET status = ?, payment_type = ?, payment_reference = ?,
			  delivered_at = ?, return_window_expires = ?, is_returnable = ?, updated_at = ?
			  WHERE id = ?`
	_, err := r.q.ExecContext(ctx, query,
		order.Status, order.PaymentType, order.PaymentReference,
		order.DeliveredAt, order.ReturnWindowExpires, order.IsReturnable, order.UpdatedAt,
		order.ID)
	if err != nil {
		util.Logger.Error("更新订单状态失败", zap.Int64("order_id", order.ID), zap.Error(err))
		return translateError(err)
	}
	return nil
}

func (r *orderRepository) SetHasActiveReturns(ctx context.Context, orderID int64, active bool) error {
	query := `UPDATE orders SET has_active_returns = ?, updated_at = ? WHERE id = ?`
	_, err := r.q.ExecContext(ctx, query, active, time.Now(), orderID)
	if err != nil {
		util.Logger.Error("更新订单退货标记失败", zap.Int64("order_id", orderID), zap.Error(err))
		return translateError(err)
	}
	return nil
}

// ExpireReturnWindows 关闭已过退货期的订单
func (r *orderRepository) ExpireReturnWindows(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE orders SET is_returnable = FALSE, updated_at = ?
			  WHERE is_returnable = TRUE AND return_window_expires < ?`
	result, err := r.q.ExecContext(ctx, query, now, now)
	if err != nil {
		util.Logger.Error("关闭过期退货窗口失败", zap.Error(err))
		return 0, translateError(err)
	}
	return result.RowsAffected()
}
