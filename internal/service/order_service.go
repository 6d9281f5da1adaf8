package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
	"ztuff-backend/internal/model"
	"ztuff-backend/internal/observability"
	"ztuff-backend/internal/repository/interfaces"
	svcerrors "ztuff-backend/internal/service/errors"
	"ztuff-backend/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

type OrderService struct {
	uow      interfaces.UnitOfWork
	notifier Notifier
	now      func() time.Time
}

// NewOrderService 创建一个新的 OrderService 实例
func NewOrderService(uow interfaces.UnitOfWork, notifier Notifier) *OrderService {
	return &OrderService{
		uow:      uow,
		notifier: notifier,
		now:      time.Now,
	}
}

// normalizeLines 合并重复 SKU 并按加锁顺序排序
func normalizeLines(lines []model.LineRequest) ([]model.LineRequest, error) {
	if len(lines) == 0 {
		return nil, svcerrors.New(svcerrors.ErrInvalidInput, "order must contain at least one line")
	}
	merged := make(map[model.SKU]int, len(lines))
	for _, l := range lines {
		if l.SKU.ProductID <= 0 || l.SKU.VariationID < 0 {
			return nil, svcerrors.New(svcerrors.ErrInvalidInput, "invalid sku "+l.SKU.String())
		}
		if l.Quantity <= 0 {
			return nil, svcerrors.New(svcerrors.ErrInvalidInput, "quantity must be positive for sku "+l.SKU.String())
		}
		merged[l.SKU] += l.Quantity
	}
	result := make([]model.LineRequest, 0, len(merged))
	for sku, qty := range merged {
		result = append(result, model.LineRequest{SKU: sku, Quantity: qty})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SKU.Less(result[j].SKU) })
	return result, nil
}

func validateDestination(d *model.Destination) error {
	if d == nil {
		return svcerrors.New(svcerrors.ErrInvalidInput, "destination or address_id is required")
	}
	if strings.TrimSpace(d.ReceiverName) == "" || strings.TrimSpace(d.Phone) == "" ||
		strings.TrimSpace(d.City) == "" || strings.TrimSpace(d.DetailAddress) == "" {
		return svcerrors.New(svcerrors.ErrInvalidInput, "destination is incomplete")
	}
	return nil
}

// PlaceOrder 下单：在一个事务内锁定库存、校验、扣减并写入订单
func (s *OrderService) PlaceOrder(ctx context.Context, actor model.Actor, req model.PlaceOrderRequest) (*model.Order, error) {
	ctx, span := observability.Tracer().Start(ctx, "OrderService.PlaceOrder")
	defer span.End()

	util.Logger.Info("开始下单",
		zap.Int64("customer_id", actor.UserID),
		zap.Int("lines", len(req.Lines)))

	if actor.Role != model.RoleCustomer {
		return nil, svcerrors.New(svcerrors.ErrForbidden, "only customers can place orders")
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return nil, svcerrors.New(svcerrors.ErrInvalidInput, "idempotency_key is required")
	}
	if req.ShippingCost < 0 || req.Discount < 0 {
		return nil, svcerrors.New(svcerrors.ErrInvalidInput, "shipping_cost and discount must not be negative")
	}
	lines, err := normalizeLines(req.Lines)
	if err != nil {
		return nil, err
	}

	repos := s.uow.Repositories()
	existing, err := repos.Orders.GetByIdempotencyKey(ctx, actor.UserID, req.IdempotencyKey)
	if err != nil {
		return nil, storeError("failed to check idempotency key", err)
	}
	if existing != nil {
		util.Logger.Info("重复下单请求，返回已有订单",
			zap.Int64("order_id", existing.ID),
			zap.String("idempotency_key", req.IdempotencyKey))
		return existing, nil
	}

	destination, err := s.resolveDestination(ctx, repos, actor, req)
	if err != nil {
		return nil, err
	}

	var order *model.Order
	err = s.uow.WithinTx(ctx, func(ctx context.Context, repos interfaces.Repositories) error {
		skus := make([]model.SKU, len(lines))
		for i, l := range lines {
			skus[i] = l.SKU
		}
		units, err := repos.Inventory.LockUnits(ctx, skus)
		if err != nil {
			return err
		}

		// 先全部校验，任何一行失败都不做任何扣减
		for _, l := range lines {
			unit := units[l.SKU]
			if unit == nil || !unit.IsActive {
				observability.StockConflicts.WithLabelValues("inactive").Inc()
				return &svcerrors.InsufficientStockError{SKU: l.SKU.String(), Requested: l.Quantity, Inactive: true}
			}
			if unit.AvailableQuantity < l.Quantity {
				observability.StockConflicts.WithLabelValues("insufficient").Inc()
				return &svcerrors.InsufficientStockError{
					SKU:       l.SKU.String(),
					Requested: l.Quantity,
					Available: unit.AvailableQuantity,
				}
			}
		}

		order = &model.Order{
			OrderNumber:    util.NewOrderNumber(s.now()),
			IdempotencyKey: req.IdempotencyKey,
			CustomerID:     actor.UserID,
			Destination:    destination,
			ShippingCost:   req.ShippingCost,
			Status:         model.OrderPending,
		}
		for _, l := range lines {
			item, err := repos.Catalog.GetSKU(ctx, l.SKU)
			if err != nil {
				return err
			}
			if item == nil || !item.Active {
				observability.StockConflicts.WithLabelValues("inactive").Inc()
				return &svcerrors.InsufficientStockError{SKU: l.SKU.String(), Requested: l.Quantity, Inactive: true}
			}
			policy, err := ResolvePolicy(ctx, repos.Policies, l.SKU.ProductID, item.CategoryID)
			if err != nil {
				return err
			}
			windowDays := 0
			if returnable(policy) {
				windowDays = policy.ReturnWindowDays
			}
			lineTotal := item.Price * int64(l.Quantity)
			order.Subtotal += lineTotal
			order.Lines = append(order.Lines, model.OrderLine{
				SKU:              l.SKU,
				CategoryID:       item.CategoryID,
				Quantity:         l.Quantity,
				UnitPrice:        item.Price,
				LineTotal:        lineTotal,
				ReturnWindowDays: windowDays,
			})
		}
		order.Discount, order.Total = model.OrderTotals(order.Subtotal, order.ShippingCost, req.Discount)

		for _, l := range lines {
			if err := repos.Inventory.Decrement(ctx, l.SKU, l.Quantity); err != nil {
				if errors.Is(err, interfaces.ErrNoRowsAffected) {
					return &svcerrors.InsufficientStockError{SKU: l.SKU.String(), Requested: l.Quantity, Available: units[l.SKU].AvailableQuantity}
				}
				return err
			}
		}
		return repos.Orders.Create(ctx, order)
	})

	if errors.Is(err, interfaces.ErrDuplicate) {
		// 并发的相同请求已经先提交
		existing, getErr := s.uow.Repositories().Orders.GetByIdempotencyKey(ctx, actor.UserID, req.IdempotencyKey)
		if getErr == nil && existing != nil {
			return existing, nil
		}
		return nil, svcerrors.Wrap(svcerrors.ErrConflict, "duplicate order", err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		util.Logger.Warn("下单失败", zap.Int64("customer_id", actor.UserID), zap.Error(err))
		return nil, storeError("failed to place order", err)
	}

	observability.OrdersPlaced.Inc()
	span.SetAttributes(attribute.String("order.number", order.OrderNumber), attribute.Int64("order.total", order.Total))
	util.Logger.Info("下单成功",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("subtotal", order.Subtotal),
		zap.Int64("total", order.Total))

	notify(ctx, s.notifier, order.CustomerID, TemplateOrderPlaced, map[string]interface{}{
		"order_number": order.OrderNumber,
		"total":        order.Total,
	})
	return order, nil
}

func (s *OrderService) resolveDestination(ctx context.Context, repos interfaces.Repositories, actor model.Actor, req model.PlaceOrderRequest) (model.Destination, error) {
	if req.AddressID > 0 {
		address, err := repos.Users.GetAddressByID(ctx, req.AddressID)
		if err != nil {
			return model.Destination{}, storeError("failed to load address", err)
		}
		if address == nil || address.UserID != actor.UserID {
			return model.Destination{}, svcerrors.New(svcerrors.ErrNotFound, "address not found")
		}
		return address.Destination(), nil
	}
	if err := validateDestination(req.Destination); err != nil {
		return model.Destination{}, err
	}
	return *req.Destination, nil
}

// GetOrder 查询订单，顾客只能查看自己的订单
func (s *OrderService) GetOrder(ctx context.Context, actor model.Actor, orderID int64) (*model.Order, error) {
	order, err := s.uow.Repositories().Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, storeError("failed to load order", err)
	}
	if order == nil {
		return nil, svcerrors.New(svcerrors.ErrNotFound, "order not found")
	}
	if !actor.IsStaff() && !actor.Owns(order.CustomerID) {
		return nil, svcerrors.New(svcerrors.ErrForbidden, "order belongs to another customer")
	}
	return order, nil
}

// TransitionOrderStatus 员工推进订单状态；取消走 CancelOrder
func (s *OrderService) TransitionOrderStatus(ctx context.Context, orderID int64, next model.OrderStatus, actor model.Actor) (*model.Order, error) {
	if next == model.OrderCancelled {
		return s.CancelOrder(ctx, orderID, actor)
	}
	if !actor.IsStaff() {
		return nil, svcerrors.New(svcerrors.ErrForbidden, "only staff can change order status")
	}

	ctx, span := observability.Tracer().Start(ctx, "OrderService.TransitionOrderStatus")
	defer span.End()

	var order *model.Order
	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos interfaces.Repositories) error {
		var err error
		order, err = repos.Orders.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return svcerrors.New(svcerrors.ErrNotFound, "order not found")
		}
		if !order.Status.CanTransitionTo(next) {
			return &svcerrors.InvalidTransitionError{Entity: "order", From: string(order.Status), To: string(next)}
		}
		order.Status = next
		if next == model.OrderDelivered {
			order.StampDelivered(s.now())
		}
		return repos.Orders.UpdateStatus(ctx, order)
	})
	if err != nil {
		span.RecordError(err)
		util.Logger.Warn("订单状态流转失败",
			zap.Int64("order_id", orderID),
			zap.String("to", string(next)),
			zap.Error(err))
		return nil, storeError("failed to update order status", err)
	}

	s.afterTransition(ctx, order)
	return order, nil
}

// CancelOrder 取消订单并在同一事务中恢复全部库存
func (s *OrderService) CancelOrder(ctx context.Context, orderID int64, actor model.Actor) (*model.Order, error) {
	ctx, span := observability.Tracer().Start(ctx, "OrderService.CancelOrder")
	defer span.End()

	var order *model.Order
	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos interfaces.Repositories) error {
		var err error
		order, err = repos.Orders.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return svcerrors.New(svcerrors.ErrNotFound, "order not found")
		}
		if !actor.IsStaff() && !actor.Owns(order.CustomerID) {
			return svcerrors.New(svcerrors.ErrForbidden, "order belongs to another customer")
		}
		return cancelLocked(ctx, repos, order)
	})
	if err != nil {
		span.RecordError(err)
		util.Logger.Warn("取消订单失败", zap.Int64("order_id", orderID), zap.Error(err))
		return nil, storeError("failed to cancel order", err)
	}

	util.Logger.Info("订单已取消", zap.Int64("order_id", order.ID), zap.Int64("actor", actor.UserID))
	s.afterTransition(ctx, order)
	return order, nil
}

// cancelLocked 调用方已持有订单行锁
func cancelLocked(ctx context.Context, repos interfaces.Repositories, order *model.Order) error {
	if !order.Status.CanTransitionTo(model.OrderCancelled) {
		return &svcerrors.InvalidTransitionError{Entity: "order", From: string(order.Status), To: string(model.OrderCancelled)}
	}

	skus := make([]model.SKU, len(order.Lines))
	for i, line := range order.Lines {
		skus[i] = line.SKU
	}
	if _, err := repos.Inventory.LockUnits(ctx, skus); err != nil {
		return err
	}
	lines := make([]model.OrderLine, len(order.Lines))
	copy(lines, order.Lines)
	sort.Slice(lines, func(i, j int) bool { return lines[i].SKU.Less(lines[j].SKU) })
	for _, line := range lines {
		if err := repos.Inventory.Increment(ctx, line.SKU, line.Quantity); err != nil {
			return err
		}
	}

	order.Status = model.OrderCancelled
	return repos.Orders.UpdateStatus(ctx, order)
}

func (s *OrderService) afterTransition(ctx context.Context, order *model.Order) {
	observability.OrderTransitions.WithLabelValues(string(order.Status)).Inc()
	util.Logger.Info("订单状态已更新",
		zap.Int64("order_id", order.ID),
		zap.String("status", string(order.Status)))
	notify(ctx, s.notifier, order.CustomerID, TemplateOrderStatusChanged, map[string]interface{}{
		"order_number": order.OrderNumber,
		"status":       string(order.Status),
	})
}

// ExpireReturnWindows 定时任务：关闭已过退货期订单的可退标记
func (s *OrderService) ExpireReturnWindows(ctx context.Context) (int64, error) {
	affected, err := s.uow.Repositories().Orders.ExpireReturnWindows(ctx, s.now())
	if err != nil {
		return 0, storeError("failed to expire return windows", err)
	}
	if affected > 0 {
		util.Logger.Info("已关闭过期退货窗口", zap.Int64("orders", affected))
	}
	return affected, nil
}

// 支付通知处理结果
const (
	PaymentActionPaid           = "paid"
	PaymentActionCancelled      = "cancelled"
	PaymentActionIgnored        = "ignored"
	PaymentActionAmountMismatch = "amount_mismatch" // 金额不符，订单保持 pending 等待人工核对
)

// paymentAction 根据交易状态和风控状态决定订单动作
func paymentAction(n model.PaymentNotification) string {
	switch n.TransactionStatus {
	case "capture":
		switch n.FraudStatus {
		case "", "accept":
			return PaymentActionPaid
		case "deny":
			return PaymentActionCancelled
		default:
			// challenge 等待人工审核
			return PaymentActionIgnored
		}
	case "settlement":
		return PaymentActionPaid
	case "deny", "cancel", "expire", "failure":
		return PaymentActionCancelled
	default:
		return PaymentActionIgnored
	}
}

// grossMatches 通知未携带金额时不做校验
func grossMatches(gross string, total int64) bool {
	if strings.TrimSpace(gross) == "" {
		return true
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(gross))
	if err != nil {
		return false
	}
	return amount.Equal(decimal.NewFromInt(total))
}

// HandlePaymentNotification 处理支付网关通知，重复通知幂等
func (s *OrderService) HandlePaymentNotification(ctx context.Context, source string, n model.PaymentNotification) (*model.Order, string, error) {
	ctx, span := observability.Tracer().Start(ctx, "OrderService.HandlePaymentNotification")
	defer span.End()

	if strings.TrimSpace(n.OrderNumber) == "" {
		return nil, "", svcerrors.New(svcerrors.ErrInvalidInput, "order number is required")
	}
	action := paymentAction(n)
	util.Logger.Info("收到支付通知",
		zap.String("source", source),
		zap.String("order_number", n.OrderNumber),
		zap.String("transaction_status", n.TransactionStatus),
		zap.String("fraud_status", n.FraudStatus),
		zap.String("action", action))

	var order *model.Order
	changed, mismatch := false, false
	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos interfaces.Repositories) error {
		var err error
		order, err = repos.Orders.GetByOrderNumberForUpdate(ctx, n.OrderNumber)
		if err != nil {
			return err
		}
		if order == nil {
			return svcerrors.New(svcerrors.ErrNotFound, "order not found")
		}
		if order.Status != model.OrderPending {
			// 已处理过或订单已进入后续流程
			return nil
		}
		switch action {
		case PaymentActionPaid:
			if !grossMatches(n.GrossAmount, order.Total) {
				mismatch = true
				return nil
			}
			order.Status = model.OrderPaid
			order.PaymentType = n.PaymentType
			order.PaymentReference = n.PaymentReference
			changed = true
			return repos.Orders.UpdateStatus(ctx, order)
		case PaymentActionCancelled:
			order.PaymentType = n.PaymentType
			order.PaymentReference = n.PaymentReference
			changed = true
			return cancelLocked(ctx, repos, order)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		util.Logger.Error("处理支付通知失败",
			zap.String("order_number", n.OrderNumber),
			zap.Error(err))
		return nil, "", storeError("failed to apply payment notification", err)
	}

	switch {
	case mismatch:
		action = PaymentActionAmountMismatch
		util.Logger.Error("支付金额与订单总额不符",
			zap.String("order_number", n.OrderNumber),
			zap.String("gross_amount", n.GrossAmount),
			zap.Int64("order_total", order.Total))
	case !changed:
		action = PaymentActionIgnored
	}
	observability.PaymentNotifications.WithLabelValues(source, action).Inc()
	if changed {
		s.afterTransition(ctx, order)
	}
	return order, action, nil
}
