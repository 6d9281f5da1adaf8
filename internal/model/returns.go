package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReturnStatus 退货申请状态
type ReturnStatus string

const (
	ReturnPending      ReturnStatus = "pending"
	ReturnApproved     ReturnStatus = "approved"
	ReturnItemReceived ReturnStatus = "item_received"
	ReturnQualityCheck ReturnStatus = "quality_check"
	ReturnProcessing   ReturnStatus = "processing"
	ReturnCompleted    ReturnStatus = "completed"
	ReturnRejected     ReturnStatus = "rejected"
	ReturnCancelled    ReturnStatus = "cancelled"
)

// processing 可重入：退款失败后允许再次结算
var returnTransitions = map[ReturnStatus][]ReturnStatus{
	ReturnPending:      {ReturnApproved, ReturnRejected, ReturnCancelled},
	ReturnApproved:     {ReturnItemReceived, ReturnCancelled},
	ReturnItemReceived: {ReturnQualityCheck},
	ReturnQualityCheck: {ReturnProcessing},
	ReturnProcessing:   {ReturnProcessing, ReturnCompleted},
}

func (s ReturnStatus) CanTransitionTo(next ReturnStatus) bool {
	for _, allowed := range returnTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal completed、rejected、cancelled 为终态
func (s ReturnStatus) IsTerminal() bool {
	return len(returnTransitions[s]) == 0
}

// RefundStatus 退款结算状态
type RefundStatus string

const (
	RefundNone       RefundStatus = "none"
	RefundProcessing RefundStatus = "processing"
	RefundCompleted  RefundStatus = "completed"
	RefundFailed     RefundStatus = "failed"
)

// PolicyScope 退货政策作用范围
type PolicyScope string

const (
	ScopeGlobal   PolicyScope = "global"
	ScopeCategory PolicyScope = "category"
	ScopeProduct  PolicyScope = "product"
)

// ReturnPolicy 退货政策，退货流程中只读
type ReturnPolicy struct {
	ID                      int64           `json:"id"`
	Name                    string          `json:"name"`
	Scope                   PolicyScope     `json:"scope"`
	ScopeID                 *int64          `json:"scope_id,omitempty"`
	ReturnWindowDays        int             `json:"return_window_days"`
	RestockingFeePercentage decimal.Decimal `json:"restocking_fee_percentage"`
	AllowedReasons          []string        `json:"allowed_reasons"`
	ExcludedReasons         []string        `json:"excluded_reasons"`
	RequiresApproval        bool            `json:"requires_approval"`
	RequiresQualityCheck    bool            `json:"requires_quality_check"`
	AutoRestock             bool            `json:"auto_restock"`
	IsReturnable            bool            `json:"is_returnable"`
	IsActive                bool            `json:"is_active"`
	Priority                int             `json:"priority"`
}

// AllowsReason 允许集合为空表示不限制原因，排除集合优先
func (p *ReturnPolicy) AllowsReason(reason string) bool {
	for _, r := range p.ExcludedReasons {
		if r == reason {
			return false
		}
	}
	if len(p.AllowedReasons) == 0 {
		return true
	}
	for _, r := range p.AllowedReasons {
		if r == reason {
			return true
		}
	}
	return false
}

// ReturnRequest 退货申请，只能通过状态机流转，不删除
type ReturnRequest struct {
	ID              int64                `json:"id"`
	ReturnNumber    string               `json:"return_number"`
	OrderID         int64                `json:"order_id"`
	OrderLineID     int64                `json:"order_line_id"`
	CustomerID      int64                `json:"customer_id"`
	SKU             SKU                  `json:"sku"`
	Quantity        int                  `json:"quantity"`
	ReasonCode      string               `json:"reason_code"`
	CustomerNotes   string               `json:"customer_notes,omitempty"`
	PolicyID        int64                `json:"policy_id"`
	PolicySnapshot  ReturnPolicy         `json:"policy_snapshot"`
	RequestedAmount int64                `json:"requested_amount"`
	ApprovedAmount  int64                `json:"approved_amount"`
	RestockingFee   int64                `json:"restocking_fee"`
	RefundAmount    int64                `json:"refund_amount"`
	RefundMethod    string               `json:"refund_method,omitempty"`
	RefundStatus    RefundStatus         `json:"refund_status"`
	RefundKey       string               `json:"refund_key,omitempty"`
	RefundReference string               `json:"refund_reference,omitempty"`
	RefundNotes     string               `json:"refund_notes,omitempty"`
	Status          ReturnStatus         `json:"status"`
	ProcessedBy     *int64               `json:"processed_by,omitempty"`
	RejectionReason string               `json:"rejection_reason,omitempty"`
	TrackingNumber  string               `json:"tracking_number,omitempty"`
	ReceiptNotes    string               `json:"receipt_notes,omitempty"`
	RequestedAt     time.Time            `json:"requested_at"`
	ApprovedAt      *time.Time           `json:"approved_at,omitempty"`
	RejectedAt      *time.Time           `json:"rejected_at,omitempty"`
	ItemReceivedAt  *time.Time           `json:"item_received_at,omitempty"`
	QualityCheckAt  *time.Time           `json:"quality_checked_at,omitempty"`
	RefundedAt      *time.Time           `json:"refund_processed_at,omitempty"`
	CompletedAt     *time.Time           `json:"completed_at,omitempty"`
	CancelledAt     *time.Time           `json:"cancelled_at,omitempty"`
	UpdatedAt       time.Time            `json:"updated_at"`
	QualityCheck    *QualityCheck        `json:"quality_check,omitempty"`
	Evidence        []InspectionEvidence `json:"evidence,omitempty"`
}

// ItemCondition 质检成色
type ItemCondition string

const (
	ConditionNew     ItemCondition = "new"
	ConditionLikeNew ItemCondition = "like_new"
	ConditionGood    ItemCondition = "good"
	ConditionFair    ItemCondition = "fair"
	ConditionPoor    ItemCondition = "poor"
	ConditionDamaged ItemCondition = "damaged"
)

// Disposition 处置方式
type Disposition string

const (
	DispositionRestock          Disposition = "restock"
	DispositionRepair           Disposition = "repair"
	DispositionSalvage          Disposition = "salvage"
	DispositionDispose          Disposition = "dispose"
	DispositionReturnToSupplier Disposition = "return_to_supplier"
)

// DamageSeverity 损坏程度
type DamageSeverity string

const (
	SeverityMinor     DamageSeverity = "minor"
	SeverityModerate  DamageSeverity = "moderate"
	SeveritySevere    DamageSeverity = "severe"
	SeverityTotalLoss DamageSeverity = "total_loss"
)

// QualityCheckStatus 质检记录状态
type QualityCheckStatus string

const (
	QCPending   QualityCheckStatus = "pending"
	QCCompleted QualityCheckStatus = "completed"
	QCCancelled QualityCheckStatus = "cancelled"
)

// QualityCheck 质检记录，完成后不可修改
type QualityCheck struct {
	ID                int64              `json:"id"`
	ReturnRequestID   int64              `json:"return_request_id"`
	QuantityExpected  int                `json:"quantity_expected"`
	QuantityReceived  int                `json:"quantity_received"`
	Condition         ItemCondition      `json:"condition,omitempty"`
	SellableQuantity  int                `json:"sellable_quantity"`
	DamagedQuantity   int                `json:"damaged_quantity"`
	MissingQuantity   int                `json:"missing_quantity"`
	Disposition       Disposition        `json:"disposition,omitempty"`
	RestockedQuantity int                `json:"restocked_quantity"`
	Notes             string             `json:"notes,omitempty"`
	InspectorID       *int64             `json:"inspector_id,omitempty"`
	Status            QualityCheckStatus `json:"status"`
	CreatedAt         time.Time          `json:"created_at"`
	CompletedAt       *time.Time         `json:"completed_at,omitempty"`
}

// InspectionResult 质检录入
type InspectionResult struct {
	Condition         ItemCondition  `json:"condition" binding:"required,item_condition"`
	Sellable          int            `json:"sellable" binding:"gte=0"`
	Damaged           int            `json:"damaged" binding:"gte=0"`
	Missing           int            `json:"missing" binding:"gte=0"`
	Disposition       Disposition    `json:"disposition" binding:"required,disposition"`
	DamageSeverity    DamageSeverity `json:"damage_severity,omitempty"`
	DamageDisposition Disposition    `json:"damage_disposition,omitempty"`
	SalvageValue      *int64         `json:"salvage_value,omitempty"`
	RepairCost        *int64         `json:"repair_cost,omitempty"`
	Notes             string         `json:"notes"`
}

// Received 实际收到的数量
func (r InspectionResult) Received() int {
	return r.Sellable + r.Damaged
}

// DamagedInventory 损坏库存，不回流到可售库存
type DamagedInventory struct {
	ID              int64          `json:"id"`
	ReturnRequestID int64          `json:"return_request_id"`
	QualityCheckID  int64          `json:"quality_check_id"`
	SKU             SKU            `json:"sku"`
	Quantity        int            `json:"quantity"`
	Severity        DamageSeverity `json:"severity"`
	Disposition     Disposition    `json:"disposition"`
	SalvageValue    *int64         `json:"salvage_value,omitempty"`
	RepairCost      *int64         `json:"repair_cost,omitempty"`
	Notes           string         `json:"notes,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// InspectionEvidence 质检凭证（照片等）
type InspectionEvidence struct {
	ID              int64     `json:"id"`
	ReturnRequestID int64     `json:"return_request_id"`
	URL             string    `json:"url"`
	UploadedBy      int64     `json:"uploaded_by"`
	CreatedAt       time.Time `json:"created_at"`
}

// Eligibility 退货资格检查结果
type Eligibility struct {
	Eligible bool          `json:"eligible"`
	Reason   string        `json:"reason,omitempty"`
	Policy   *ReturnPolicy `json:"policy,omitempty"`
	Expires  *time.Time    `json:"expires,omitempty"`
}

// CreateReturnInput 顾客发起退货；Quantity 为 0 时退整行
type CreateReturnInput struct {
	OrderID       int64  `json:"order_id" binding:"required"`
	OrderLineID   int64  `json:"order_line_id" binding:"required"`
	Quantity      int    `json:"quantity" binding:"gte=0"`
	ReasonCode    string `json:"reason_code" binding:"required,reason_code"`
	CustomerNotes string `json:"customer_notes" binding:"max=1000"`
}

// ReturnDecision 员工审批
type ReturnDecision struct {
	Approve         bool   `json:"approve"`
	ApprovedAmount  *int64 `json:"approved_amount,omitempty" binding:"omitempty,gte=0"`
	RejectionReason string `json:"rejection_reason" binding:"max=500"`
}

// ItemReceipt 仓库签收退货
type ItemReceipt struct {
	TrackingNumber string `json:"tracking_number" binding:"max=100"`
	Notes          string `json:"notes" binding:"max=1000"`
}

// SettleInput 结算退款，Amount 为空时使用审批金额
type SettleInput struct {
	Amount *int64 `json:"amount,omitempty" binding:"omitempty,gte=0"`
	Method string `json:"method" binding:"max=50"`
}
