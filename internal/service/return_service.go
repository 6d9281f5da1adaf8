package service

import (
	"context"
	"errors"
	"time"
	"ztuff-backend/internal/model"
	"ztuff-backend/internal/observability"
	"ztuff-backend/internal/repository/interfaces"
	svcerrors "ztuff-backend/internal/service/errors"
	"ztuff-backend/internal/util"

	"go.uber.org/zap"
)

// 退货资格不通过的原因
const (
	ReasonNotDelivered      = "order has not been delivered"
	ReasonNotReturnable     = "order is not returnable"
	ReasonWindowExpired     = "return window expired"
	ReasonProductNotAllowed = "product is not returnable"
	ReasonReasonNotAllowed  = "return reason is not allowed by policy"
	ReasonActiveReturn      = "an active return already exists for this order line"
)

// DefaultRefundMethod 未指定时原路退回
const DefaultRefundMethod = "original_payment"

type ReturnService struct {
	uow      interfaces.UnitOfWork
	notifier Notifier
	gateway  PaymentGateway
	locker   Locker
	storage  FileStorage
	now      func() time.Time
}

// NewReturnService 创建一个新的 ReturnService 实例
func NewReturnService(
	uow interfaces.UnitOfWork,
	notifier Notifier,
	gateway PaymentGateway,
	locker Locker,
	storage FileStorage,
) *ReturnService {
	return &ReturnService{
		uow:      uow,
		notifier: notifier,
		gateway:  gateway,
		locker:   locker,
		storage:  storage,
		now:      time.Now,
	}
}

// evaluateEligibility 在调用方已读取的订单上判断某一行是否可退
func (s *ReturnService) evaluateEligibility(
	ctx context.Context,
	repos interfaces.Repositories,
	order *model.Order,
	line *model.OrderLine,
	reasonCode string,
) (*model.Eligibility, error) {
	if order.Status != model.OrderDelivered || order.DeliveredAt == nil {
		return &model.Eligibility{Reason: ReasonNotDelivered}, nil
	}
	expires := line.ReturnExpiry(order.DeliveredAt)
	if !order.IsReturnable || expires == nil {
		return &model.Eligibility{Reason: ReasonNotReturnable}, nil
	}
	now := s.now()
	if now.After(*expires) || (order.ReturnWindowExpires != nil && now.After(*order.ReturnWindowExpires)) {
		return &model.Eligibility{Reason: ReasonWindowExpired, Expires: expires}, nil
	}

	policy, err := ResolvePolicy(ctx, repos.Policies, line.SKU.ProductID, line.CategoryID)
	if err != nil {
		return nil, err
	}
	if !returnable(policy) {
		return &model.Eligibility{Reason: ReasonProductNotAllowed, Expires: expires}, nil
	}
	if !policy.AllowsReason(reasonCode) {
		return &model.Eligibility{Reason: ReasonReasonNotAllowed, Policy: policy, Expires: expires}, nil
	}

	active, err := repos.Returns.HasActiveForLine(ctx, line.ID)
	if err != nil {
		return nil, err
	}
	if active {
		return &model.Eligibility{Reason: ReasonActiveReturn, Policy: policy, Expires: expires}, nil
	}
	return &model.Eligibility{Eligible: true, Policy: policy, Expires: expires}, nil
}

// CheckReturnEligibility 只读检查，不加锁
func (s *ReturnService) CheckReturnEligibility(ctx context.Context, actor model.Actor, orderID, orderLineID int64, reasonCode string) (*model.Eligibility, error) {
	repos := s.uow.Repositories()
	order, err := repos.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, storeError("failed to load order", err)
	}
	if order == nil {
		return nil, svcerrors.New(svcerrors.ErrNotFound, "order not found")
	}
	if !actor.IsStaff() && !actor.Owns(order.CustomerID) {
		return nil, svcerrors.New(svcerrors.ErrForbidden, "order belongs to another customer")
	}
	line := order.Line(orderLineID)
	if line == nil {
		return nil, svcerrors.New(svcerrors.ErrNotFound, "order line not found")
	}
	result, err := s.evaluateEligibility(ctx, repos, order, line, reasonCode)
	if err != nil {
		return nil, storeError("failed to check return eligibility", err)
	}
	return result, nil
}

// CreateReturnRequest 顾客对已签收订单的某一行发起退货
func (s *ReturnService) CreateReturnRequest(ctx context.Context, actor model.Actor, input model.CreateReturnInput) (*model.ReturnRequest, error) {
	ctx, span := observability.Tracer().Start(ctx, "ReturnService.CreateReturnRequest")
	defer span.End()

	if actor.Role != model.RoleCustomer {
		return nil, svcerrors.New(svcerrors.ErrForbidden, "only customers can request returns")
	}
	if !util.IsReasonCode(input.ReasonCode) {
		return nil, svcerrors.New(svcerrors.ErrInvalidInput, "invalid reason code")
	}
	if input.Quantity < 0 {
		return nil, svcerrors.New(svcerrors.ErrInvalidInput, "quantity must not be negative")
	}

	var request *model.ReturnRequest
	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos interfaces.Repositories) error {
		order, err := repos.Orders.GetByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return svcerrors.New(svcerrors.ErrNotFound, "order not found")
		}
		if !actor.Owns(order.CustomerID) {
			return svcerrors.New(svcerrors.ErrForbidden, "order belongs to another customer")
		}
		line := order.Line(input.OrderLineID)
		if line == nil {
			return svcerrors.New(svcerrors.ErrNotFound, "order line not found")
		}

		eligibility, err := s.evaluateEligibility(ctx, repos, order, line, input.ReasonCode)
		if err != nil {
			return err
		}
		if !eligibility.Eligible {
			if eligibility.Reason == ReasonActiveReturn {
				return svcerrors.New(svcerrors.ErrConflict, eligibility.Reason)
			}
			return svcerrors.New(svcerrors.ErrInvalidInput, eligibility.Reason)
		}

		quantity := input.Quantity
		if quantity == 0 {
			quantity = line.Quantity
		}
		if quantity > line.Quantity {
			return svcerrors.New(svcerrors.ErrInvalidInput, "return quantity exceeds ordered quantity")
		}

		policy := eligibility.Policy
		now := s.now()
		requested := line.UnitPrice * int64(quantity)
		request = &model.ReturnRequest{
			ReturnNumber:    util.NewReturnNumber(now),
			OrderID:         order.ID,
			OrderLineID:     line.ID,
			CustomerID:      order.CustomerID,
			SKU:             line.SKU,
			Quantity:        quantity,
			ReasonCode:      input.ReasonCode,
			CustomerNotes:   input.CustomerNotes,
			PolicyID:        policy.ID,
			PolicySnapshot:  *policy,
			RequestedAmount: requested,
			RestockingFee:   model.RestockingFee(requested, policy.RestockingFeePercentage),
			RefundStatus:    model.RefundNone,
			Status:          model.ReturnPending,
			RequestedAt:     now,
		}
		if !policy.RequiresApproval {
			request.Status = model.ReturnApproved
			request.ApprovedAmount = requested
			request.ApprovedAt = &now
		}

		if err := repos.Returns.Create(ctx, request); err != nil {
			if errors.Is(err, interfaces.ErrDuplicate) {
				return svcerrors.Wrap(svcerrors.ErrConflict, ReasonActiveReturn, err)
			}
			return err
		}
		if request.Status == model.ReturnApproved && policy.RequiresQualityCheck {
			if err := s.openQualityCheck(ctx, repos, request); err != nil {
				return err
			}
		}
		return repos.Orders.SetHasActiveReturns(ctx, order.ID, true)
	})
	if err != nil {
		span.RecordError(err)
		util.Logger.Warn("创建退货申请失败",
			zap.Int64("order_id", input.OrderID),
			zap.Int64("order_line_id", input.OrderLineID),
			zap.Error(err))
		return nil, storeError("failed to create return request", err)
	}

	util.Logger.Info("退货申请已创建",
		zap.Int64("return_id", request.ID),
		zap.String("return_number", request.ReturnNumber),
		zap.String("status", string(request.Status)),
		zap.Int64("requested_amount", request.RequestedAmount),
		zap.Int64("restocking_fee", request.RestockingFee))
	s.afterTransition(ctx, request, request.Status)
	return request, nil
}

func (s *ReturnService) openQualityCheck(ctx context.Context, repos interfaces.Repositories, request *model.ReturnRequest) error {
	qc := &model.QualityCheck{
		ReturnRequestID:  request.ID,
		QuantityExpected: request.Quantity,
		Status:           model.QCPending,
	}
	if err := repos.Returns.CreateQualityCheck(ctx, qc); err != nil {
		return err
	}
	request.QualityCheck = qc
	return nil
}

// lockReturn 锁定退货申请；需要同时锁订单时先锁订单
func lockReturn(ctx context.Context, repos interfaces.Repositories, returnID int64) (*model.ReturnRequest, error) {
	request, err := repos.Returns.GetByIDForUpdate(ctx, returnID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, svcerrors.New(svcerrors.ErrNotFound, "return request not found")
	}
	return request, nil
}

// lockOrderAndReturn 先按退货单找到订单，再按订单、退货单的顺序加锁
func lockOrderAndReturn(ctx context.Context, repos interfaces.Repositories, returnID int64) (*model.Order, *model.ReturnRequest, error) {
	current, err := repos.Returns.GetByID(ctx, returnID)
	if err != nil {
		return nil, nil, err
	}
	if current == nil {
		return nil, nil, svcerrors.New(svcerrors.ErrNotFound, "return request not found")
	}
	order, err := repos.Orders.GetByIDForUpdate(ctx, current.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if order == nil {
		return nil, nil, svcerrors.New(svcerrors.ErrNotFound, "order not found")
	}
	request, err := lockReturn(ctx, repos, returnID)
	if err != nil {
		return nil, nil, err
	}
	return order, request, nil
}

func transition(request *model.ReturnRequest, next model.ReturnStatus) error {
	if !request.Status.CanTransitionTo(next) {
		return &svcerrors.InvalidTransitionError{Entity: "return", From: string(request.Status), To: string(next)}
	}
	request.Status = next
	return nil
}

// releaseOrderFlag 退货离开进行中状态后，没有其他进行中的退货时清除订单标记
func releaseOrderFlag(ctx context.Context, repos interfaces.Repositories, orderID int64) error {
	remaining, err := repos.Returns.CountActiveForOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}
	return repos.Orders.SetHasActiveReturns(ctx, orderID, false)
}

// ProcessReturnRequest 员工审批或拒绝待审核的退货
func (s *ReturnService) ProcessReturnRequest(ctx context.Context, returnID int64, actor model.Actor, decision model.ReturnDecision) (*model.ReturnRequest, error) {
	if !actor.IsStaff() {
		return nil, svcerrors.New(svcerrors.ErrForbidden, "only staff can process return requests")
	}

	var request *model.ReturnRequest
	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos interfaces.Repositories) error {
		var err error
		if decision.Approve {
			request, err = lockReturn(ctx, repos, returnID)
		} else {
			_, request, err = lockOrderAndReturn(ctx, repos, returnID)
		}
		if err != nil {
			return err
		}

		now := s.now()
		processor := actor.UserID
		if !decision.Approve {
			if err := transition(request, model.ReturnRejected); err != nil {
				return err
			}
			request.ProcessedBy = &processor
			request.RejectionReason = decision.RejectionReason
			request.RejectedAt = &now
			if err := repos.Returns.Update(ctx, request); err != nil {
				return err
			}
			return releaseOrderFlag(ctx, repos, request.OrderID)
		}

		if err := transition(request, model.ReturnApproved); err != nil {
			return err
		}
		request.ApprovedAmount = request.RequestedAmount
		if decision.ApprovedAmount != nil {
			if *decision.ApprovedAmount < 0 || *decision.ApprovedAmount > request.RequestedAmount {
				return svcerrors.New(svcerrors.ErrInvalidInput, "approved amount must be between 0 and the requested amount")
			}
			request.ApprovedAmount = *decision.ApprovedAmount
		}
		request.ProcessedBy = &processor
		request.ApprovedAt = &now
		if err := repos.Returns.Update(ctx, request); err != nil {
			return err
		}
		if request.PolicySnapshot.RequiresQualityCheck {
			return s.openQualityCheck(ctx, repos, request)
		}
		return nil
	})
	if err != nil {
		util.Logger.Warn("审批退货失败",
			zap.Int64("return_id", returnID),
			zap.Bool("approve", decision.Approve),
			zap.Error(err))
		return nil, storeError("failed to process return request", err)
	}

	util.Logger.Info("退货审批完成",
		zap.Int64("return_id", request.ID),
		zap.String("status", string(request.Status)),
		zap.Int64("processed_by", actor.UserID))
	s.afterTransition(ctx, request, request.Status)
	return request, nil
}

// MarkItemReceived 仓库签收；不需要质检的退货直接进入 quality_check
func (s *ReturnService) MarkItemReceived(ctx context.Context, returnID int64, actor model.Actor, receipt model.ItemReceipt) (*model.ReturnRequest, error) {
	if !actor.IsStaff() {
		return nil, svcerrors.New(svcerrors.ErrForbidden, "only staff can receive returned items")
	}

	var (
		request *model.ReturnRequest
		visited []model.ReturnStatus
	)
	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos interfaces.Repositories) error {
		var err error
		request, err = lockReturn(ctx, repos, returnID)
		if err != nil {
			return err
		}
		if err := transition(request, model.ReturnItemReceived); err != nil {
			return err
		}
		now := s.now()
		request.ItemReceivedAt = &now
		request.TrackingNumber = receipt.TrackingNumber
		request.ReceiptNotes = receipt.Notes
		visited = append(visited, model.ReturnItemReceived)

		if !request.PolicySnapshot.RequiresQualityCheck {
			if err := transition(request, model.ReturnQualityCheck); err != nil {
				return err
			}
			request.QualityCheckAt = &now
			visited = append(visited, model.ReturnQualityCheck)
		}
		return repos.Returns.Update(ctx, request)
	})
	if err != nil {
		util.Logger.Warn("签收退货失败", zap.Int64("return_id", returnID), zap.Error(err))
		return nil, storeError("failed to mark item received", err)
	}

	for _, status := range visited {
		s.afterTransition(ctx, request, status)
	}
	return request, nil
}

// CancelReturnRequest 顾客撤销尚未收货的退货
func (s *ReturnService) CancelReturnRequest(ctx context.Context, returnID int64, actor model.Actor) (*model.ReturnRequest, error) {
	var request *model.ReturnRequest
	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos interfaces.Repositories) error {
		var err error
		_, request, err = lockOrderAndReturn(ctx, repos, returnID)
		if err != nil {
			return err
		}
		if actor.Role != model.RoleCustomer || !actor.Owns(request.CustomerID) {
			return svcerrors.New(svcerrors.ErrForbidden, "only the requesting customer can cancel a return")
		}
		if err := transition(request, model.ReturnCancelled); err != nil {
			return err
		}
		now := s.now()
		request.CancelledAt = &now
		if err := repos.Returns.Update(ctx, request); err != nil {
			return err
		}
		if err := repos.Returns.CancelQualityCheck(ctx, request.ID); err != nil {
			return err
		}
		return releaseOrderFlag(ctx, repos, request.OrderID)
	})
	if err != nil {
		util.Logger.Warn("撤销退货失败", zap.Int64("return_id", returnID), zap.Error(err))
		return nil, storeError("failed to cancel return request", err)
	}

	s.afterTransition(ctx, request, request.Status)
	return request, nil
}

// GetReturnRequest 查询退货详情，包含质检记录和凭证
func (s *ReturnService) GetReturnRequest(ctx context.Context, actor model.Actor, returnID int64) (*model.ReturnRequest, error) {
	repos := s.uow.Repositories()
	request, err := repos.Returns.GetByID(ctx, returnID)
	if err != nil {
		return nil, storeError("failed to load return request", err)
	}
	if request == nil {
		return nil, svcerrors.New(svcerrors.ErrNotFound, "return request not found")
	}
	if !actor.IsStaff() && !actor.Owns(request.CustomerID) {
		return nil, svcerrors.New(svcerrors.ErrForbidden, "return request belongs to another customer")
	}

	qc, err := repos.Returns.GetQualityCheck(ctx, returnID)
	if err != nil {
		return nil, storeError("failed to load quality check", err)
	}
	request.QualityCheck = qc

	evidence, err := repos.Returns.ListEvidence(ctx, returnID)
	if err != nil {
		return nil, storeError("failed to load inspection evidence", err)
	}
	for _, e := range evidence {
		request.Evidence = append(request.Evidence, *e)
	}
	return request, nil
}

func (s *ReturnService) afterTransition(ctx context.Context, request *model.ReturnRequest, status model.ReturnStatus) {
	observability.ReturnTransitions.WithLabelValues(string(status)).Inc()
	notify(ctx, s.notifier, request.CustomerID, TemplateReturnStatusChanged, map[string]interface{}{
		"return_number": request.ReturnNumber,
		"status":        string(status),
		"refund_amount": request.RefundAmount,
	})
}
