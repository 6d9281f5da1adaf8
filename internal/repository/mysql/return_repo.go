package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
	"ztuff-backend/internal/model"
	"ztuff-backend/internal/util"

	"go.uber.org/zap"
)

type returnRepository struct {
	q querier
}

const returnColumns = `id, return_number, order_id, order_line_id, customer_id, product_id, variation_id,
	quantity, reason_code, customer_notes, policy_id, policy_snapshot,
	requested_amount, approved_amount, restocking_fee, refund_amount,
	refund_method, refund_status, refund_key, refund_reference, refund_notes,
	status, processed_by, rejection_reason, tracking_number, receipt_notes,
	requested_at, approved_at, rejected_at, item_received_at, quality_checked_at,
	refund_processed_at, completed_at, cancelled_at, updated_at`

// Create 同一订单行已有进行中的退货时，唯一键冲突返回 ErrDuplicate
func (r *returnRepository) Create(ctx context.Context, request *model.ReturnRequest) error {
	snapshot, err := json.Marshal(request.PolicySnapshot)
	if err != nil {
		return fmt.Errorf("failed to encode policy snapshot: %w", err)
	}
	request.UpdatedAt = time.Now()

	query := `INSERT INTO return_requests (
			return_number, order_id, order_line_id, customer_id, product_id, variation_id,
			quantity, reason_code, customer_notes, policy_id, policy_snapshot,
			requested_amount, approved_amount, restocking_fee, refund_amount, refund_status,
			status, processed_by, requested_at, approved_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := r.q.ExecContext(ctx, query,
		request.ReturnNumber, request.OrderID, request.OrderLineID, request.CustomerID,
		request.SKU.ProductID, request.SKU.VariationID,
		request.Quantity, request.ReasonCode, request.CustomerNotes, request.PolicyID, string(snapshot),
		request.RequestedAmount, request.ApprovedAmount, request.RestockingFee, request.RefundAmount, request.RefundStatus,
		request.Status, request.ProcessedBy, request.RequestedAt, request.ApprovedAt, request.UpdatedAt)
	if err != nil {
		util.Logger.Error("创建退货申请失败",
			zap.Int64("order_line_id", request.OrderLineID),
			zap.Error(err))
		return translateError(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get return request ID: %w", err)
	}
	request.ID = id
	return nil
}

func (r *returnRepository) GetByID(ctx context.Context, id int64) (*model.ReturnRequest, error) {
	return r.getOne(ctx, `SELECT `+returnColumns+` FROM return_requests WHERE id = ?`, id)
}

func (r *returnRepository) GetByIDForUpdate(ctx context.Context, id int64) (*model.ReturnRequest, error) {
	return r.getOne(ctx, `SELECT `+returnColumns+` FROM return_requests WHERE id = ? FOR UPDATE`, id)
}

func (r *returnRepository) getOne(ctx context.Context, query string, args ...interface{}) (*model.ReturnRequest, error) {
	var (
		req                                 model.ReturnRequest
		snapshot                            []byte
		customerNotes, refundNotes, receipt sql.NullString
		processedBy                         sql.NullInt64
		approvedAt, rejectedAt, receivedAt  sql.NullTime
		checkedAt, refundedAt, completedAt  sql.NullTime
		cancelledAt                         sql.NullTime
	)
	err := r.q.QueryRowContext(ctx, query, args...).Scan(
		&req.ID, &req.ReturnNumber, &req.OrderID, &req.OrderLineID, &req.CustomerID,
		&req.SKU.ProductID, &req.SKU.VariationID,
		&req.Quantity, &req.ReasonCode, &customerNotes, &req.PolicyID, &snapshot,
		&req.RequestedAmount, &req.ApprovedAmount, &req.RestockingFee, &req.RefundAmount,
		&req.RefundMethod, &req.RefundStatus, &req.RefundKey, &req.RefundReference, &refundNotes,
		&req.Status, &processedBy, &req.RejectionReason, &req.TrackingNumber, &receipt,
		&req.RequestedAt, &approvedAt, &rejectedAt, &receivedAt, &checkedAt,
		&refundedAt, &completedAt, &cancelledAt, &req.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		util.Logger.Error("查询退货申请失败", zap.Error(err))
		return nil, translateError(err)
	}
	if err := json.Unmarshal(snapshot, &req.PolicySnapshot); err != nil {
		return nil, fmt.Errorf("failed to decode policy snapshot: %w", err)
	}

	req.CustomerNotes = customerNotes.String
	req.RefundNotes = refundNotes.String
	req.ReceiptNotes = receipt.String
	req.ProcessedBy = int64Ptr(processedBy)
	req.ApprovedAt = timePtr(approvedAt)
	req.RejectedAt = timePtr(rejectedAt)
	req.ItemReceivedAt = timePtr(receivedAt)
	req.QualityCheckAt = timePtr(checkedAt)
	req.RefundedAt = timePtr(refundedAt)
	req.CompletedAt = timePtr(completedAt)
	req.CancelledAt = timePtr(cancelledAt)
	return &req, nil
}

// Update 持久化状态机流转后的可变字段
func (r *returnRepository) Update(ctx context.Context, request *model.ReturnRequest) error {
	request.UpdatedAt = time.Now()
	query := `UPDATE return_requests SET
			approved_amount = ?, restocking_fee = ?, refund_amount = ?,
			refund_method = ?, refund_status = ?, refund_key = ?, refund_reference = ?, refund_notes = ?,
			status = ?, processed_by = ?, rejection_reason = ?, tracking_number = ?, receipt_notes = ?,
			approved_at = ?, rejected_at = ?, item_received_at = ?, quality_checked_at = ?,
			refund_processed_at = ?, completed_at = ?, cancelled_at = ?, updated_at = ?
		WHERE id = ?`
	_, err := r.q.ExecContext(ctx, query,
		request.ApprovedAmount, request.RestockingFee, request.RefundAmount,
		request.RefundMethod, request.RefundStatus, request.RefundKey, request.RefundReference, request.RefundNotes,
		request.Status, request.ProcessedBy, request.RejectionReason, request.TrackingNumber, request.ReceiptNotes,
		request.ApprovedAt, request.RejectedAt, request.ItemReceivedAt, request.QualityCheckAt,
		request.RefundedAt, request.CompletedAt, request.CancelledAt, request.UpdatedAt,
		request.ID)
	if err != nil {
		util.Logger.Error("更新退货申请失败",
			zap.Int64("return_id", request.ID),
			zap.String("status", string(request.Status)),
			zap.Error(err))
		return translateError(err)
	}
	return nil
}

func (r *returnRepository) HasActiveForLine(ctx context.Context, orderLineID int64) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM return_requests WHERE active_line_id = ?`
	if err := r.q.QueryRowContext(ctx, query, orderLineID).Scan(&count); err != nil {
		return false, translateError(err)
	}
	return count > 0, nil
}

func (r *returnRepository) CountActiveForOrder(ctx context.Context, orderID int64) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM return_requests
			  WHERE order_id = ? AND status NOT IN ('completed', 'cancelled', 'rejected')
			  LOCK IN SHARE MODE`
	if err := r.q.QueryRowContext(ctx, query, orderID).Scan(&count); err != nil {
		return 0, translateError(err)
	}
	return count, nil
}

func (r *returnRepository) CreateQualityCheck(ctx context.Context, qc *model.QualityCheck) error {
	qc.CreatedAt = time.Now()
	if qc.Status == "" {
		qc.Status = model.QCPending
	}
	query := `INSERT INTO quality_checks (return_request_id, quantity_expected, status, created_at)
			  VALUES (?, ?, ?, ?)`
	result, err := r.q.ExecContext(ctx, query, qc.ReturnRequestID, qc.QuantityExpected, qc.Status, qc.CreatedAt)
	if err != nil {
		util.Logger.Error("创建质检记录失败", zap.Int64("return_id", qc.ReturnRequestID), zap.Error(err))
		return translateError(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get quality check ID: %w", err)
	}
	qc.ID = id
	return nil
}

func (r *returnRepository) GetQualityCheck(ctx context.Context, returnID int64) (*model.QualityCheck, error) {
	query := `SELECT id, return_request_id, quantity_expected, quantity_received, item_condition,
			  sellable_quantity, damaged_quantity, missing_quantity, disposition, restocked_quantity,
			  notes, inspector_id, status, created_at, completed_at
			  FROM quality_checks WHERE return_request_id = ?`
	var (
		qc          model.QualityCheck
		notes       sql.NullString
		inspectorID sql.NullInt64
		completedAt sql.NullTime
	)
	err := r.q.QueryRowContext(ctx, query, returnID).Scan(
		&qc.ID, &qc.ReturnRequestID, &qc.QuantityExpected, &qc.QuantityReceived, &qc.Condition,
		&qc.SellableQuantity, &qc.DamagedQuantity, &qc.MissingQuantity, &qc.Disposition, &qc.RestockedQuantity,
		&notes, &inspectorID, &qc.Status, &qc.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		util.Logger.Error("查询质检记录失败", zap.Int64("return_id", returnID), zap.Error(err))
		return nil, translateError(err)
	}
	qc.Notes = notes.String
	qc.InspectorID = int64Ptr(inspectorID)
	qc.CompletedAt = timePtr(completedAt)
	return &qc, nil
}

// CompleteQualityCheck 只更新 pending 状态的记录，已完成的记录不可修改
func (r *returnRepository) CompleteQualityCheck(ctx context.Context, qc *model.QualityCheck) error {
	query := `UPDATE quality_checks SET quantity_received = ?, item_condition = ?,
			  sellable_quantity = ?, damaged_quantity = ?, missing_quantity = ?,
			  disposition = ?, restocked_quantity = ?, notes = ?, inspector_id = ?,
			  status = ?, completed_at = ?
			  WHERE id = ? AND status = ?`
	result, err := r.q.ExecContext(ctx, query,
		qc.QuantityReceived, qc.Condition,
		qc.SellableQuantity, qc.DamagedQuantity, qc.MissingQuantity,
		qc.Disposition, qc.RestockedQuantity, qc.Notes, qc.InspectorID,
		model.QCCompleted, qc.CompletedAt,
		qc.ID, model.QCPending)
	if err != nil {
		util.Logger.Error("完成质检失败", zap.Int64("quality_check_id", qc.ID), zap.Error(err))
		return translateError(err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}
	qc.Status = model.QCCompleted
	return nil
}

func (r *returnRepository) CancelQualityCheck(ctx context.Context, returnID int64) error {
	query := `UPDATE quality_checks SET status = ?, completed_at = ?
			  WHERE return_request_id = ? AND status = ?`
	if _, err := r.q.ExecContext(ctx, query, model.QCCancelled, time.Now(), returnID, model.QCPending); err != nil {
		util.Logger.Error("关闭质检记录失败", zap.Int64("return_id", returnID), zap.Error(err))
		return translateError(err)
	}
	return nil
}

func (r *returnRepository) CreateDamagedInventory(ctx context.Context, item *model.DamagedInventory) error {
	item.CreatedAt = time.Now()
	query := `INSERT INTO damaged_inventory (
			return_request_id, quality_check_id, product_id, variation_id, quantity,
			severity, disposition, salvage_value, repair_cost, notes, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := r.q.ExecContext(ctx, query,
		item.ReturnRequestID, item.QualityCheckID, item.SKU.ProductID, item.SKU.VariationID, item.Quantity,
		item.Severity, item.Disposition, item.SalvageValue, item.RepairCost, item.Notes, item.CreatedAt)
	if err != nil {
		util.Logger.Error("创建损坏库存记录失败", zap.Int64("return_id", item.ReturnRequestID), zap.Error(err))
		return translateError(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get damaged inventory ID: %w", err)
	}
	item.ID = id
	return nil
}

func (r *returnRepository) ListDamagedInventory(ctx context.Context, returnID int64) ([]*model.DamagedInventory, error) {
	query := `SELECT id, return_request_id, quality_check_id, product_id, variation_id, quantity,
			  severity, disposition, salvage_value, repair_cost, notes, created_at
			  FROM damaged_inventory WHERE return_request_id = ? ORDER BY id`
	rows, err := r.q.QueryContext(ctx, query, returnID)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var items []*model.DamagedInventory
	for rows.Next() {
		var (
			item                 model.DamagedInventory
			salvageValue, repair sql.NullInt64
			notes                sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.ReturnRequestID, &item.QualityCheckID,
			&item.SKU.ProductID, &item.SKU.VariationID, &item.Quantity,
			&item.Severity, &item.Disposition, &salvageValue, &repair, &notes, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.SalvageValue = int64Ptr(salvageValue)
		item.RepairCost = int64Ptr(repair)
		item.Notes = notes.String
		items = append(items, &item)
	}
	return items, rows.Err()
}

func (r *returnRepository) AddEvidence(ctx context.Context, evidence *model.InspectionEvidence) error {
	evidence.CreatedAt = time.Now()
	query := `INSERT INTO inspection_evidence (return_request_id, url, uploaded_by, created_at) VALUES (?, ?, ?, ?)`
	result, err := r.q.ExecContext(ctx, query, evidence.ReturnRequestID, evidence.URL, evidence.UploadedBy, evidence.CreatedAt)
	if err != nil {
		util.Logger.Error("保存质检凭证失败", zap.Int64("return_id", evidence.ReturnRequestID), zap.Error(err))
		return translateError(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get evidence ID: %w", err)
	}
	evidence.ID = id
	return nil
}

func (r *returnRepository) ListEvidence(ctx context.Context, returnID int64) ([]*model.InspectionEvidence, error) {
	query := `SELECT id, return_request_id, url, uploaded_by, created_at
			  FROM inspection_evidence WHERE return_request_id = ? ORDER BY id`
	rows, err := r.q.QueryContext(ctx, query, returnID)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var items []*model.InspectionEvidence
	for rows.Next() {
		var e model.InspectionEvidence
		if err := rows.Scan(&e.ID, &e.ReturnRequestID, &e.URL, &e.UploadedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &e)
	}
	return items, rows.Err()
}
