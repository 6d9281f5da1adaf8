package service

import (
	"context"
	"errors"
	"mime/multipart"
	"ztuff-backend/internal/model"
	"ztuff-backend/internal/repository/interfaces"
	svcerrors "ztuff-backend/internal/service/errors"
	"ztuff-backend/internal/util"

	"go.uber.org/zap"
)

func validateInspection(result model.InspectionResult, expected int) error {
	if result.Sellable < 0 || result.Damaged < 0 || result.Missing < 0 {
		return svcerrors.New(svcerrors.ErrInvalidInput, "inspected quantities must not be negative")
	}
	if result.Sellable+result.Damaged+result.Missing > expected {
		return svcerrors.New(svcerrors.ErrInvalidInput, "sellable, damaged and missing quantities exceed the returned quantity")
	}
	if result.Damaged == 0 {
		return nil
	}
	switch result.DamageSeverity {
	case model.SeverityMinor, model.SeverityModerate, model.SeveritySevere, model.SeverityTotalLoss:
	default:
		return svcerrors.New(svcerrors.ErrInvalidInput, "damage severity is required for damaged items")
	}
	switch result.DamageDisposition {
	case model.DispositionRepair, model.DispositionSalvage, model.DispositionDispose, model.DispositionReturnToSupplier:
	default:
		return svcerrors.New(svcerrors.ErrInvalidInput, "damaged items need a repair, salvage, dispose or return_to_supplier disposition")
	}
	return nil
}

// CompleteQualityCheck 记录质检结果，可售数量按政策回库，损坏数量记入损坏库存
func (s *ReturnService) CompleteQualityCheck(ctx context.Context, returnID int64, actor model.Actor, result model.InspectionResult) (*model.ReturnRequest, error) {
	if !actor.IsStaff() {
		return nil, svcerrors.New(svcerrors.ErrForbidden, "only staff can complete quality checks")
	}

	var request *model.ReturnRequest
	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos interfaces.Repositories) error {
		var err error
		request, err = lockReturn(ctx, repos, returnID)
		if err != nil {
			return err
		}
		qc, err := repos.Returns.GetQualityCheck(ctx, request.ID)
		if err != nil {
			return err
		}
		if qc == nil {
			return svcerrors.New(svcerrors.ErrNotFound, "quality check not found")
		}
		if qc.Status == model.QCCompleted {
			return svcerrors.New(svcerrors.ErrConflict, "quality check already completed")
		}
		if request.Status != model.ReturnItemReceived {
			return &svcerrors.InvalidTransitionError{Entity: "return", From: string(request.Status), To: string(model.ReturnQualityCheck)}
		}
		if err := validateInspection(result, qc.QuantityExpected); err != nil {
			return err
		}

		now := s.now()
		inspector := actor.UserID
		qc.QuantityReceived = result.Received()
		qc.Condition = result.Condition
		qc.SellableQuantity = result.Sellable
		qc.DamagedQuantity = result.Damaged
		qc.MissingQuantity = result.Missing
		qc.Disposition = result.Disposition
		qc.Notes = result.Notes
		qc.InspectorID = &inspector
		qc.CompletedAt = &now

		if request.PolicySnapshot.AutoRestock && result.Sellable > 0 {
			if _, err := repos.Inventory.LockUnits(ctx, []model.SKU{request.SKU}); err != nil {
				return err
			}
			if err := repos.Inventory.Increment(ctx, request.SKU, result.Sellable); err != nil {
				return err
			}
			qc.RestockedQuantity = result.Sellable
		}

		if err := repos.Returns.CompleteQualityCheck(ctx, qc); err != nil {
			if errors.Is(err, interfaces.ErrNoRowsAffected) {
				return svcerrors.New(svcerrors.ErrConflict, "quality check already completed")
			}
			return err
		}

		if result.Damaged > 0 {
			damaged := &model.DamagedInventory{
				ReturnRequestID: request.ID,
				QualityCheckID:  qc.ID,
				SKU:             request.SKU,
				Quantity:        result.Damaged,
				Severity:        result.DamageSeverity,
				Disposition:     result.DamageDisposition,
				SalvageValue:    result.SalvageValue,
				RepairCost:      result.RepairCost,
				Notes:           result.Notes,
			}
			if err := repos.Returns.CreateDamagedInventory(ctx, damaged); err != nil {
				return err
			}
		}

		if err := transition(request, model.ReturnQualityCheck); err != nil {
			return err
		}
		request.QualityCheckAt = &now
		request.QualityCheck = qc
		return repos.Returns.Update(ctx, request)
	})
	if err != nil {
		util.Logger.Warn("完成质检失败", zap.Int64("return_id", returnID), zap.Error(err))
		return nil, storeError("failed to complete quality check", err)
	}

	util.Logger.Info("质检完成",
		zap.Int64("return_id", request.ID),
		zap.Int("sellable", result.Sellable),
		zap.Int("damaged", result.Damaged),
		zap.Int("missing", result.Missing),
		zap.Int("restocked", request.QualityCheck.RestockedQuantity))
	s.afterTransition(ctx, request, request.Status)
	return request, nil
}

// UploadInspectionEvidence 上传质检照片等凭证
func (s *ReturnService) UploadInspectionEvidence(ctx context.Context, returnID int64, actor model.Actor, file *multipart.FileHeader) (*model.InspectionEvidence, error) {
	if !actor.IsStaff() {
		return nil, svcerrors.New(svcerrors.ErrForbidden, "only staff can upload inspection evidence")
	}
	if file == nil {
		return nil, svcerrors.New(svcerrors.ErrInvalidInput, "file is required")
	}
	if s.storage == nil {
		return nil, svcerrors.New(svcerrors.ErrInternal, "file storage is not configured")
	}

	repos := s.uow.Repositories()
	request, err := repos.Returns.GetByID(ctx, returnID)
	if err != nil {
		return nil, storeError("failed to load return request", err)
	}
	if request == nil {
		return nil, svcerrors.New(svcerrors.ErrNotFound, "return request not found")
	}
	if request.Status == model.ReturnRejected || request.Status == model.ReturnCancelled {
		return nil, svcerrors.New(svcerrors.ErrConflict, "return request is closed")
	}

	path := "returns/" + request.ReturnNumber + "/" + util.GenerateUniqueFilename(file.Filename)
	url, err := s.storage.UploadFile(ctx, file, path)
	if err != nil {
		util.Logger.Error("上传质检凭证失败",
			zap.Int64("return_id", returnID),
			zap.String("path", path),
			zap.Error(err))
		return nil, svcerrors.Wrap(svcerrors.ErrThirdParty, "failed to upload evidence", err)
	}

	evidence := &model.InspectionEvidence{
		ReturnRequestID: request.ID,
		URL:             url,
		UploadedBy:      actor.UserID,
	}
	if err := repos.Returns.AddEvidence(ctx, evidence); err != nil {
		return nil, storeError("failed to save evidence", err)
	}
	util.Logger.Info("质检凭证已保存", zap.Int64("return_id", request.ID), zap.String("url", url))
	return evidence, nil
}
