package interfaces

import (
	"context"
	"ztuff-backend/internal/model"
)

type ReturnRepository interface {
	Create(ctx context.Context, request *model.ReturnRequest) error
	GetByID(ctx context.Context, id int64) (*model.ReturnRequest, error)
	GetByIDForUpdate(ctx context.Context, id int64) (*model.ReturnRequest, error)
	Update(ctx context.Context, request *model.ReturnRequest) error
	HasActiveForLine(ctx context.Context, orderLineID int64) (bool, error)
	CountActiveForOrder(ctx context.Context, orderID int64) (int, error)

	CreateQualityCheck(ctx context.Context, qc *model.QualityCheck) error
	GetQualityCheck(ctx context.Context, returnID int64) (*model.QualityCheck, error)
	CompleteQualityCheck(ctx context.Context, qc *model.QualityCheck) error
	// CancelQualityCheck 关闭退货单下仍为 pending 的质检记录，没有则忽略
	CancelQualityCheck(ctx context.Context, returnID int64) error
	CreateDamagedInventory(ctx context.Context, item *model.DamagedInventory) error
	ListDamagedInventory(ctx context.Context, returnID int64) ([]*model.DamagedInventory, error)

	AddEvidence(ctx context.Context, evidence *model.InspectionEvidence) error
	ListEvidence(ctx context.Context, returnID int64) ([]*model.InspectionEvidence, error)
}

type PolicyRepository interface {
	// ListCandidates 返回所有可能适用于该商品的有效政策（商品、分类、全局）
	ListCandidates(ctx context.Context, productID int64, categoryID *int64) ([]*model.ReturnPolicy, error)
}
