package order

import (
	"context"
	"net/http"
	"strconv"
	"ztuff-backend/internal/errors"
	"ztuff-backend/internal/middleware"
	"ztuff-backend/internal/model"
	"ztuff-backend/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// OrderServiceInterface 订单处理器依赖的服务方法
type OrderServiceInterface interface {
	PlaceOrder(ctx context.Context, actor model.Actor, req model.PlaceOrderRequest) (*model.Order, error)
	GetOrder(ctx context.Context, actor model.Actor, orderID int64) (*model.Order, error)
	TransitionOrderStatus(ctx context.Context, orderID int64, next model.OrderStatus, actor model.Actor) (*model.Order, error)
	CancelOrder(ctx context.Context, orderID int64, actor model.Actor) (*model.Order, error)
}

type OrderHandler struct {
	orderService OrderServiceInterface
}

func NewOrderHandler(orderService OrderServiceInterface) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

// RegisterRoutes 客户与员工共用的订单路由，员工路由单独挂载
func (h *OrderHandler) RegisterRoutes(authorized, staff *gin.RouterGroup) {
	authorized.POST("/orders", h.PlaceOrder)
	authorized.GET("/orders/:id", h.GetOrder)
	authorized.POST("/orders/:id/cancel", h.CancelOrder)
	staff.PUT("/orders/:id/status", h.UpdateStatus)
}

func orderID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		errors.HandleError(c, errors.New(errors.ErrBadRequest, "Invalid order ID"))
		return 0, false
	}
	return id, true
}

func actorOf(c *gin.Context) (model.Actor, bool) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		errors.HandleError(c, errors.New(errors.ErrUnauthorized, "Authentication required"))
	}
	return actor, ok
}

// PlaceOrder 下单，同一幂等键重复提交返回同一订单
func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}

	var req model.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Logger.Warn("无效的下单请求", zap.Error(err))
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "Invalid input data", err))
		return
	}

	order, err := h.orderService.PlaceOrder(c.Request.Context(), actor, req)
	if err != nil {
		errors.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code":    201,
		"message": "Order placed successfully",
		"data":    order,
	})
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := orderID(c)
	if !ok {
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), actor, id)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, order, "")
}

func (h *OrderHandler) CancelOrder(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := orderID(c)
	if !ok {
		return
	}

	order, err := h.orderService.CancelOrder(c.Request.Context(), id, actor)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, order, "Order cancelled")
}

// UpdateStatus 员工推进订单状态
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	actor, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := orderID(c)
	if !ok {
		return
	}

	var input struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "Invalid input data", err))
		return
	}
	next, err := model.ParseOrderStatus(input.Status)
	if err != nil {
		errors.HandleError(c, errors.Wrap(errors.ErrValidation, "Invalid order status", err))
		return
	}

	order, err := h.orderService.TransitionOrderStatus(c.Request.Context(), id, next, actor)
	if err != nil {
		util.Logger.Warn("订单状态更新失败",
			zap.Int64("order_id", id),
			zap.String("status", input.Status),
			zap.Error(err))
		errors.HandleError(c, err)
		return
	}
	errors.HandleSuccess(c, order, "Order status updated")
}
