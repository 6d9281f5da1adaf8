package service

import (
	"context"
	"errors"
	"ztuff-backend/internal/gateway"
	"ztuff-backend/internal/lock"
	"ztuff-backend/internal/model"
	"ztuff-backend/internal/observability"
	"ztuff-backend/internal/repository/interfaces"
	svcerrors "ztuff-backend/internal/service/errors"
	"ztuff-backend/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SettleRefund 结算退款：事务一记录 processing 和退款键，事务外调用网关，事务二写回结果
func (s *ReturnService) SettleRefund(ctx context.Context, returnID int64, actor model.Actor, input model.SettleInput) (*model.ReturnRequest, error) {
	ctx, span := observability.Tracer().Start(ctx, "ReturnService.SettleRefund")
	defer span.End()

	if !actor.IsStaff() {
		return nil, svcerrors.New(svcerrors.ErrForbidden, "only staff can settle refunds")
	}

	current, err := s.uow.Repositories().Returns.GetByID(ctx, returnID)
	if err != nil {
		return nil, storeError("failed to load return request", err)
	}
	if current == nil {
		return nil, svcerrors.New(svcerrors.ErrNotFound, "return request not found")
	}
	if current.Status == model.ReturnCompleted {
		return current, nil
	}

	unlock, err := s.locker.Lock(ctx, "settle:"+current.ReturnNumber)
	if err != nil {
		if errors.Is(err, lock.ErrLockBusy) {
			return nil, &svcerrors.ServiceError{
				Code:      svcerrors.ErrConflict,
				Message:   "refund settlement is already in progress",
				Err:       err,
				Retryable: true,
			}
		}
		return nil, svcerrors.Wrap(svcerrors.ErrInternal, "failed to acquire settlement lock", err)
	}
	defer unlock()

	var (
		pending   *model.ReturnRequest
		reference string
		completed bool
	)
	err = s.uow.WithinTx(ctx, func(ctx context.Context, repos interfaces.Repositories) error {
		var err error
		pending, err = lockReturn(ctx, repos, returnID)
		if err != nil {
			return err
		}
		if pending.Status == model.ReturnCompleted {
			completed = true
			return nil
		}
		if err := transition(pending, model.ReturnProcessing); err != nil {
			return err
		}
		if pending.RefundKey != "" {
			// 退款键已发给网关，重试必须沿用同一金额和方式
			if input.Amount != nil && *input.Amount != pending.ApprovedAmount {
				return svcerrors.New(svcerrors.ErrConflict, "refund amount cannot change once the refund was sent to the gateway")
			}
			if input.Method != "" && input.Method != pending.RefundMethod {
				return svcerrors.New(svcerrors.ErrConflict, "refund method cannot change once the refund was sent to the gateway")
			}
		} else if input.Amount != nil {
			if *input.Amount < 0 || *input.Amount > pending.RequestedAmount {
				return svcerrors.New(svcerrors.ErrInvalidInput, "refund amount must be between 0 and the requested amount")
			}
			pending.ApprovedAmount = *input.Amount
		}
		pending.RefundAmount = model.RefundAmount(pending.ApprovedAmount, pending.RestockingFee)
		if input.Method != "" {
			pending.RefundMethod = input.Method
		}
		if pending.RefundMethod == "" {
			pending.RefundMethod = DefaultRefundMethod
		}
		if pending.RefundKey == "" {
			pending.RefundKey = util.RefundKey(pending.ReturnNumber)
		}
		pending.RefundStatus = model.RefundProcessing
		processor := actor.UserID
		pending.ProcessedBy = &processor

		order, err := repos.Orders.GetByID(ctx, pending.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return svcerrors.New(svcerrors.ErrNotFound, "order not found")
		}
		reference = order.PaymentReference
		if reference == "" {
			reference = order.OrderNumber
		}
		return repos.Returns.Update(ctx, pending)
	})
	if err != nil {
		span.RecordError(err)
		util.Logger.Warn("退款结算准备失败", zap.Int64("return_id", returnID), zap.Error(err))
		return nil, storeError("failed to prepare refund", err)
	}
	if completed {
		return pending, nil
	}
	s.afterTransition(ctx, pending, model.ReturnProcessing)

	span.SetAttributes(
		attribute.String("refund.key", pending.RefundKey),
		attribute.Int64("refund.amount", pending.RefundAmount))
	result, callErr := s.callGateway(ctx, pending, reference)

	var settled *model.ReturnRequest
	err = s.uow.WithinTx(ctx, func(ctx context.Context, repos interfaces.Repositories) error {
		var err error
		_, settled, err = lockOrderAndReturn(ctx, repos, returnID)
		if err != nil {
			return err
		}
		if settled.Status != model.ReturnProcessing || settled.RefundKey != pending.RefundKey {
			return &svcerrors.InvalidTransitionError{Entity: "return", From: string(settled.Status), To: string(model.ReturnCompleted)}
		}
		if callErr != nil {
			settled.RefundStatus = model.RefundFailed
			settled.RefundNotes = callErr.Error()
			return repos.Returns.Update(ctx, settled)
		}
		if err := transition(settled, model.ReturnCompleted); err != nil {
			return err
		}
		now := s.now()
		settled.RefundStatus = model.RefundCompleted
		settled.RefundedAt = &now
		settled.RefundReference = result.RefundID
		settled.RefundNotes = ""
		settled.CompletedAt = &now
		if err := repos.Returns.Update(ctx, settled); err != nil {
			return err
		}
		return releaseOrderFlag(ctx, repos, settled.OrderID)
	})
	if err != nil {
		span.RecordError(err)
		util.Logger.Error("退款结果写回失败",
			zap.Int64("return_id", returnID),
			zap.String("refund_key", pending.RefundKey),
			zap.Error(err))
		return nil, storeError("failed to record refund result", err)
	}

	if callErr != nil {
		observability.RefundOutcomes.WithLabelValues("failed").Inc()
		util.Logger.Warn("退款失败，等待重试",
			zap.Int64("return_id", settled.ID),
			zap.String("refund_key", settled.RefundKey),
			zap.Error(callErr))
		return settled, svcerrors.Wrap(svcerrors.ErrThirdParty, "refund was declined by the payment gateway", callErr)
	}

	observability.RefundOutcomes.WithLabelValues("completed").Inc()
	util.Logger.Info("退款完成",
		zap.Int64("return_id", settled.ID),
		zap.String("refund_key", settled.RefundKey),
		zap.String("refund_reference", settled.RefundReference),
		zap.Int64("refund_amount", settled.RefundAmount))
	s.afterTransition(ctx, settled, model.ReturnCompleted)
	return settled, nil
}

// callGateway 金额为 0 时无需调用网关
func (s *ReturnService) callGateway(ctx context.Context, request *model.ReturnRequest, reference string) (*gateway.RefundResult, error) {
	if request.RefundAmount == 0 {
		return &gateway.RefundResult{Success: true}, nil
	}
	result, err := s.gateway.Refund(ctx, gateway.RefundRequest{
		Key:              request.RefundKey,
		PaymentReference: reference,
		Amount:           request.RefundAmount,
		Reason:           request.ReasonCode,
	})
	if err != nil {
		return nil, err
	}
	if result == nil || !result.Success {
		message := "refund rejected"
		if result != nil && result.Error != "" {
			message = result.Error
		}
		return nil, errors.New(message)
	}
	return result, nil
}
