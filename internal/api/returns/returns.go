package returns

import (
	"context"
	"mime/multipart"
	"net/http"
	"strconv"
	"ztuff-backend/internal/errors"
	"ztuff-backend/internal/middleware"
	"ztuff-backend/internal/model"
	"ztuff-backend/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ReturnServiceInterface 退货处理器依赖的服务方法
type ReturnServiceInterface interface {
	CheckReturnEligibility(ctx context.Context, actor model.Actor, orderID, orderLineID int64, reasonCode string) (*model.Eligibility, error)
	CreateReturnRequest(ctx context.Context, actor model.Actor, input model.CreateReturnInput) (*model.ReturnRequest, error)
	GetReturnRequest(ctx context.Context, actor model.Actor, returnID int64) (*model.ReturnRequest, error)
	CancelReturnRequest(ctx context.Context, returnID int64, actor model.Actor) (*model.ReturnRequest, error)
	ProcessReturnRequest(ctx context.Context, returnID int64, actor model.Actor, decision model.ReturnDecision) (*model.ReturnRequest, error)
	MarkItemReceived(ctx context.Context, returnID int64, actor model.Actor, receipt model.ItemReceipt) (*model.ReturnRequest, error)
	CompleteQualityCheck(ctx context.Context, returnID int64, actor model.Actor, result model.InspectionResult) (*model.ReturnRequest, error)
	UploadInspectionEvidence(ctx context.Context, returnID int64, actor model.Actor, file *multipart.FileHeader) (*model.InspectionEvidence, error)
	SettleRefund(ctx context.Context, returnID int64, actor model.Actor, input model.SettleInput) (*model.ReturnRequest, error)
}

type ReturnHandler struct {
	returnService ReturnServiceInterface
}

func NewReturnHandler(returnService ReturnServiceInterface) *ReturnHandler {
	return &ReturnHandler{returnService: returnService}
}

func (h *ReturnHandler) RegisterRoutes(authorized, staff *gin.RouterGroup) {
	authorized.GET("/returns/eligibility", h.CheckEligibility)
	authorized.POST("/returns", h.CreateReturn)
	authorized.GET("/returns/:id", h.GetReturn)
	authorized.POST("/returns/:id/cancel", h.CancelReturn)

	staff.POST("/returns/:id/decision", h.Decide)
	staff.POST("/returns/:id/receive", h.MarkReceived)
	staff.POST("/returns/:id/quality-check", h.CompleteQualityCheck)
	staff.POST("/returns/:id/evidence", h.UploadEvidence)
	staff.POST("/returns/:id/refund", h.SettleRefund)
}

// request 解析操作者和路径中的退货单 ID，失败时已写入响应
func request(c *gin.Context) (model.Actor, int64, bool) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		errors.HandleError(c, errors.New(errors.ErrUnauthorized, "Authentication required"))
		return model.Actor{}, 0, false
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		errors.HandleError(c, errors.New(errors.ErrBadRequest, "Invalid return ID"))
		return model.Actor{}, 0, false
	}
	return actor, id, true
}

func bind(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		util.Logger.Warn("无效的请求数据", zap.String("path", c.FullPath()), zap.Error(err))
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "Invalid input data", err))
		return false
	}
	return true
}

// CheckEligibility 查询订单行是否可退，?order_id=&line_id=&reason=
func (h *ReturnHandler) CheckEligibility(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		errors.HandleError(c, errors.New(errors.ErrUnauthorized, "Authentication required"))
		return
	}

	var query struct {
		OrderID int64  `form:"order_id" binding:"required,gt=0"`
		LineID  int64  `form:"line_id" binding:"required,gt=0"`
		Reason  string `form:"reason"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "order_id and line_id are required", err))
		return
	}

	eligibility, err := h.returnService.CheckReturnEligibility(c.Request.Context(), actor, query.OrderID, query.LineID, query.Reason)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, eligibility, "")
}

func (h *ReturnHandler) CreateReturn(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		errors.HandleError(c, errors.New(errors.ErrUnauthorized, "Authentication required"))
		return
	}

	var input model.CreateReturnInput
	if !bind(c, &input) {
		return
	}

	created, err := h.returnService.CreateReturnRequest(c.Request.Context(), actor, input)
	if err != nil {
		errors.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code":    201,
		"message": "Return request created",
		"data":    created,
	})
}

func (h *ReturnHandler) GetReturn(c *gin.Context) {
	actor, id, ok := request(c)
	if !ok {
		return
	}
	found, err := h.returnService.GetReturnRequest(c.Request.Context(), actor, id)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, found, "")
}

func (h *ReturnHandler) CancelReturn(c *gin.Context) {
	actor, id, ok := request(c)
	if !ok {
		return
	}
	cancelled, err := h.returnService.CancelReturnRequest(c.Request.Context(), id, actor)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, cancelled, "Return request cancelled")
}

// Decide 员工审批或拒绝退货申请
func (h *ReturnHandler) Decide(c *gin.Context) {
	actor, id, ok := request(c)
	if !ok {
		return
	}
	var decision model.ReturnDecision
	if !bind(c, &decision) {
		return
	}
	updated, err := h.returnService.ProcessReturnRequest(c.Request.Context(), id, actor, decision)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, updated, "Return request processed")
}

func (h *ReturnHandler) MarkReceived(c *gin.Context) {
	actor, id, ok := request(c)
	if !ok {
		return
	}
	var receipt model.ItemReceipt
	if c.Request.ContentLength > 0 && !bind(c, &receipt) {
		return
	}
	updated, err := h.returnService.MarkItemReceived(c.Request.Context(), id, actor, receipt)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, updated, "Item received")
}

func (h *ReturnHandler) CompleteQualityCheck(c *gin.Context) {
	actor, id, ok := request(c)
	if !ok {
		return
	}
	var result model.InspectionResult
	if !bind(c, &result) {
		return
	}
	updated, err := h.returnService.CompleteQualityCheck(c.Request.Context(), id, actor, result)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, updated, "Quality check completed")
}

// UploadEvidence 表单字段 file
func (h *ReturnHandler) UploadEvidence(c *gin.Context) {
	actor, id, ok := request(c)
	if !ok {
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrBadRequest, "No file uploaded", err))
		return
	}
	evidence, err := h.returnService.UploadInspectionEvidence(c.Request.Context(), id, actor, file)
	if err != nil {
		errors.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code":    201,
		"message": "Evidence uploaded",
		"data":    evidence,
	})
}

// SettleRefund 网关拒绝时返回 502，退货单保持 processing 可重试
func (h *ReturnHandler) SettleRefund(c *gin.Context) {
	actor, id, ok := request(c)
	if !ok {
		return
	}
	var input model.SettleInput
	if c.Request.ContentLength > 0 && !bind(c, &input) {
		return
	}
	settled, err := h.returnService.SettleRefund(c.Request.Context(), id, actor, input)
	if err != nil {
		if settled != nil {
			util.Logger.Warn("退款未完成",
				zap.Int64("return_id", settled.ID),
				zap.String("refund_status", string(settled.RefundStatus)))
		}
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, settled, "Refund settled")
}
