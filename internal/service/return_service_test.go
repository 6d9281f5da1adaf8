package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"testing"
	"time"
	"ztuff-backend/internal/gateway"
	"ztuff-backend/internal/lock"
	"ztuff-backend/internal/model"
	svcerrors "ztuff-backend/internal/service/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockStorage 是 FileStorage 接口的模拟实现
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) UploadFile(ctx context.Context, file *multipart.FileHeader, path string) (string, error) {
	args := m.Called(ctx, file, path)
	return args.String(0), args.Error(1)
}

type returnFixture struct {
	returns  *ReturnService
	orders   *OrderService
	store    *memStore
	gateway  *MockGateway
	locker   *MockLocker
	storage  *MockStorage
	notifier *MockNotifier
	now      time.Time
	keys     int
}

func newReturnFixture(t *testing.T) *returnFixture {
	t.Helper()
	f := &returnFixture{
		store:    newMemStore(),
		gateway:  new(MockGateway),
		locker:   new(MockLocker),
		storage:  new(MockStorage),
		notifier: new(MockNotifier),
		now:      day0,
	}
	seedCatalog(f.store)
	f.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	f.locker.On("Lock", mock.Anything, mock.Anything).Return(lock.Unlock(func() {}), nil).Maybe()

	f.orders = NewOrderService(f.store, f.notifier)
	f.orders.now = func() time.Time { return day0 }
	f.returns = NewReturnService(f.store, f.notifier, f.gateway, f.locker, f.storage)
	f.returns.now = func() time.Time { return f.now }
	return f
}

// deliveredOrder 下单并推进到已签收
func (f *returnFixture) deliveredOrder(t *testing.T, lines ...model.LineRequest) *model.Order {
	t.Helper()
	f.keys++
	order, err := f.orders.PlaceOrder(context.Background(), customer, placeRequest(fmt.Sprintf("k-%d", f.keys), lines...))
	require.NoError(t, err)
	for _, next := range []model.OrderStatus{model.OrderPaid, model.OrderProcessing, model.OrderShipped, model.OrderDelivered} {
		order, err = f.orders.TransitionOrderStatus(context.Background(), order.ID, next, staff)
		require.NoError(t, err)
	}
	return order
}

func (f *returnFixture) create(t *testing.T, order *model.Order) *model.ReturnRequest {
	t.Helper()
	request, err := f.returns.CreateReturnRequest(context.Background(), customer, model.CreateReturnInput{
		OrderID:     order.ID,
		OrderLineID: order.Lines[0].ID,
		ReasonCode:  "defective",
	})
	require.NoError(t, err)
	return request
}

// receivedReturn 创建、审批并签收
func (f *returnFixture) receivedReturn(t *testing.T, order *model.Order) *model.ReturnRequest {
	t.Helper()
	request := f.create(t, order)
	_, err := f.returns.ProcessReturnRequest(context.Background(), request.ID, staff, model.ReturnDecision{Approve: true})
	require.NoError(t, err)
	request, err = f.returns.MarkItemReceived(context.Background(), request.ID, staff, model.ItemReceipt{TrackingNumber: "JNE123"})
	require.NoError(t, err)
	return request
}

func TestCheckReturnEligibility_WindowExpiredOnDayEight(t *testing.T) {
	f := newReturnFixture(t)
	order := f.deliveredOrder(t, model.LineRequest{SKU: skuA, Quantity: 2})

	f.now = day0.AddDate(0, 0, 7)
	result, err := f.returns.CheckReturnEligibility(context.Background(), customer, order.ID, order.Lines[0].ID, "defective")
	require.NoError(t, err)
	assert.True(t, result.Eligible)

	f.now = day0.AddDate(0, 0, 8)
	result, err = f.returns.CheckReturnEligibility(context.Background(), customer, order.ID, order.Lines[0].ID, "defective")
	require.NoError(t, err)
	assert.False(t, result.Eligible)
	assert.Equal(t, ReasonWindowExpired, result.Reason)

	_, err = f.returns.CreateReturnRequest(context.Background(), customer, model.CreateReturnInput{
		OrderID: order.ID, OrderLineID: order.Lines[0].ID, ReasonCode: "defective",
	})
	require.Error(t, err)
	assert.Equal(t, svcerrors.ErrInvalidInput, svcerrors.GetErrorCode(err))
	assert.Contains(t, err.Error(), "window expired")
	assert.Empty(t, f.store.snapshot().returns)
}

func TestCreateReturnRequest_NotDelivered(t *testing.T) {
	f := newReturnFixture(t)
	order, err := f.orders.PlaceOrder(context.Background(), customer, placeRequest("k1", model.LineRequest{SKU: skuA, Quantity: 1}))
	require.NoError(t, err)

	_, err = f.returns.CreateReturnRequest(context.Background(), customer, model.CreateReturnInput{
		OrderID: order.ID, OrderLineID: order.Lines[0].ID, ReasonCode: "defective",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ReasonNotDelivered)
}

func TestCreateReturnRequest_ComputesAmounts(t *testing.T) {
	f := newReturnFixture(t)
	order := f.deliveredOrder(t, model.LineRequest{SKU: skuA, Quantity: 2})

	request := f.create(t, order)

	assert.Equal(t, model.ReturnPending, request.Status)
	assert.Equal(t, int64(20000), request.RequestedAmount)
	assert.Equal(t, int64(2000), request.RestockingFee)
	assert.Equal(t, 2, request.Quantity)
	assert.Equal(t, int64(1), request.PolicyID)
	assert.Equal(t, model.RefundNone, request.RefundStatus)
	assert.True(t, f.store.snapshot().orders[order.ID].HasActiveReturns)
}

func TestCreateReturnRequest_RejectsSecondActiveReturn(t *testing.T) {
	f := newReturnFixture(t)
	order := f.deliveredOrder(t, model.LineRequest{SKU: skuA, Quantity: 2})
	first := f.create(t, order)

	_, err := f.returns.CreateReturnRequest(context.Background(), customer, model.CreateReturnInput{
		OrderID: order.ID, OrderLineID: order.Lines[0].ID, ReasonCode: "defective",
	})
	assert.Equal(t, svcerrors.ErrConflict, svcerrors.GetErrorCode(err))

	cancelled, err := f.returns.CancelReturnRequest(context.Background(), first.ID, customer)
	require.NoError(t, err)
	assert.Equal(t, model.ReturnCancelled, cancelled.Status)
	assert.False(t, f.store.snapshot().orders[order.ID].HasActiveReturns)

	second := f.create(t, order)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestCancelReturnRequest_ClosesPendingQualityCheck(t *testing.T) {
	f := newReturnFixture(t)
	order := f.deliveredOrder(t, model.LineRequest{SKU: skuA, Quantity: 1})
	request := f.create(t, order)
	_, err := f.returns.ProcessReturnRequest(context.Background(), request.ID, staff, model.ReturnDecision{Approve: true})
	require.NoError(t, err)
	require.Equal(t, model.QCPending, f.store.snapshot().qcs[request.ID].Status)

	cancelled, err := f.returns.CancelReturnRequest(context.Background(), request.ID, customer)
	require.NoError(t, err)
	assert.Equal(t, model.ReturnCancelled, cancelled.Status)

	qc := f.store.snapshot().qcs[request.ID]
	assert.Equal(t, model.QCCancelled, qc.Status)
	assert.NotNil(t, qc.CompletedAt)
	assert.False(t, f.store.snapshot().orders[order.ID].HasActiveReturns)
}

func TestCreateReturnRequest_Permissions(t *testing.T) {
	f := newReturnFixture(t)
	order := f.deliveredOrder(t, model.LineRequest{SKU: skuA, Quantity: 1})
	input := model.CreateReturnInput{OrderID: order.ID, OrderLineID: order.Lines[0].ID, ReasonCode: "defective"}

	_, err := f.returns.CreateReturnRequest(context.Background(), otherCustomer, input)
	assert.Equal(t, svcerrors.ErrForbidden, svcerrors.GetErrorCode(err))

	_, err = f.returns.CreateReturnRequest(context.Background(), staff, input)
	assert.Equal(t, svcerrors.ErrForbidden, svcerrors.GetErrorCode(err))

	input.ReasonCode = "Not A Code"
	_, err = f.returns.CreateReturnRequest(context.Background(), customer, input)
	assert.Equal(t, svcerrors.ErrInvalidInput, svcerrors.GetErrorCode(err))
}

func TestCreateReturnRequest_ExcludedReason(t *testing.T) {
	f := newReturnFixture(t)
	f.store.seed(func(s *memState) {
		s.policies[0].ExcludedReasons = []string{"changed_mind"}
	})
	order := f.deliveredOrder(t, model.LineRequest{SKU: skuA, Quantity: 1})

	result, err := f.returns.CheckReturnEligibility(context.Background(), customer, order.ID, order.Lines[0].ID, "changed_mind")
	require.NoError(t, err)
	assert.False(t, result.Eligible)
	assert.Equal(t, ReasonReasonNotAllowed, result.Reason)
}

func TestReturnLifecycle_RefundOf18000(t *testing.T) {
	f := newReturnFixture(t)
	order := f.deliveredOrder(t, model.LineRequest{SKU: skuA, Quantity: 2})
	request := f.receivedReturn(t, order)
	assert.Equal(t, model.ReturnItemReceived, request.Status)
	assert.Equal(t, "JNE123", request.TrackingNumber)

	request, err := f.returns.CompleteQualityCheck(context.Background(), request.ID, staff, model.InspectionResult{
		Condition:   model.ConditionLikeNew,
		Sellable:    2,
		Disposition: model.DispositionRestock,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ReturnQualityCheck, request.Status)
	assert.Equal(t, 5, f.store.snapshot().units[skuA].AvailableQuantity)

	f.gateway.On("Refund", mock.Anything, mock.MatchedBy(func(r gateway.RefundRequest) bool {
		return r.Amount == 18000 &&
			r.Key == "REF-"+request.ReturnNumber &&
			r.PaymentReference == order.OrderNumber
	})).Return(&gateway.RefundResult{Success: true, RefundID: "rf-1"}, nil).Once()

	settled, err := f.returns.SettleRefund(context.Background(), request.ID, staff, model.SettleInput{})
	require.NoError(t, err)
	assert.Equal(t, model.ReturnCompleted, settled.Status)
	assert.Equal(t, model.RefundCompleted, settled.RefundStatus)
	assert.Equal(t, int64(18000), settled.RefundAmount)
	assert.Equal(t, "rf-1", settled.RefundReference)
	assert.Equal(t, DefaultRefundMethod, settled.RefundMethod)
	assert.NotNil(t, settled.CompletedAt)
	assert.False(t, f.store.snapshot().orders[order.ID].HasActiveReturns)
	f.gateway.AssertExpectations(t)

	again, err := f.returns.SettleRefund(context.Background(), request.ID, staff, model.SettleInput{})
	require.NoError(t, err)
	assert.Equal(t, model.ReturnCompleted, again.Status)
	f.gateway.AssertNumberOfCalls(t, "Refund", 1)
}

func TestCompleteQualityCheck_OneDamagedRecord(t *testing.T) {
	f := newReturnFixture(t)
	order := f.deliveredOrder(t, model.LineRequest{SKU: skuA, Quantity: 3})
	request := f.receivedReturn(t, order)

	request, err := f.returns.CompleteQualityCheck(context.Background(), request.ID, staff, model.InspectionResult{
		Condition:         model.ConditionGood,
		Sellable:          2,
		Damaged:           1,
		Disposition:       model.DispositionRestock,
		DamageSeverity:    model.SeverityModerate,
		DamageDisposition: model.DispositionRepair,
		RepairCost:        int64p(1500),
	})
	require.NoError(t, err)

	state := f.store.snapshot()
	require.Len(t, state.damaged, 1)
	assert.Equal(t, 1, state.damaged[0].Quantity)
	assert.Equal(t, model.DispositionRepair, state.damaged[0].Disposition)
	assert.Equal(t, request.QualityCheck.ID, state.damaged[0].QualityCheckID)
	assert.Equal(t, 4, state.units[skuA].AvailableQuantity)

	qc := state.qcs[request.ID]
	assert.Equal(t, model.QCCompleted, qc.Status)
	assert.Equal(t, 3, qc.QuantityExpected)
	assert.Equal(t, 3, qc.QuantityReceived)
	assert.Equal(t, 2, qc.RestockedQuantity)

	_, err = f.returns.CompleteQualityCheck(context.Background(), request.ID, staff, model.InspectionResult{
		Condition: model.ConditionGood, Sellable: 3, Disposition: model.DispositionRestock,
	})
	assert.Equal(t, svcerrors.ErrConflict, svcerrors.GetErrorCode(err))
	assert.Len(t, f.store.snapshot().damaged, 1)
}

func TestCompleteQualityCheck_Validation(t *testing.T) {
	f := newReturnFixture(t)
	order := f.deliveredOrder(t, model.LineRequest{SKU: skuA, Quantity: 3})
	request := f.receivedReturn(t, order)

	tests := []struct {
		name   string
		result model.InspectionResult
	}{
		{"split exceeds expected", model.InspectionResult{Condition: model.ConditionGood, Sellable: 3, Missing: 1, Disposition: model.DispositionRestock}},
		{"damage without severity", model.InspectionResult{Condition: model.ConditionDamaged, Damaged: 1, Disposition: model.DispositionDispose, DamageDisposition: model.DispositionDispose}},
		{"damage restocked", model.InspectionResult{Condition: model.ConditionDamaged, Damaged: 1, Disposition: model.DispositionDispose, DamageSeverity: model.SeverityMinor, DamageDisposition: model.DispositionRestock}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.returns.CompleteQualityCheck(context.Background(), request.ID, staff, tt.result)
			assert.Equal(t, svcerrors.ErrInvalidInput, svcerrors.GetErrorCode(err))
		})
	}
	assert.Equal(t, model.QCPending, f.store.snapshot().qcs[request.ID].Status)
	assert.Equal(t, 2, f.store.snapshot().units[skuA].AvailableQuantity)
}

func TestCompleteQualityCheck_WithoutAutoRestock(t *testing.T) {
	f := newReturnFixture(t)
	f.store.seed(func(s *memState) { s.policies[0].AutoRestock = false })
	order := f.deliveredOrder(t, model.LineRequest{SKU: skuA, Quantity: 2})
	request := f.receivedReturn(t, order)

	request, err := f.returns.CompleteQualityCheck(context.Background(), request.ID, staff, model.InspectionResult{
		Condition: model.ConditionNew, Sellable: 2, Disposition: model.DispositionRestock,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, request.QualityCheck.RestockedQuantity)
	assert.Equal(t, 3, f.store.snapshot().units[skuA].AvailableQuantity)
}

func TestSettleRefund_FailedThenRetriedWithSameKey(t *testing.T) {
	f := newReturnFixture(t)
	order := f.deliveredOrder(t, model.LineRequest{SKU: skuA, Quantity: 2})
	request := f.receivedReturn(t, order)
	_, err := f.returns.CompleteQualityCheck(context.Background(), request.ID, staff, model.InspectionResult{
		Condition: model.ConditionGood, Sellable: 2, Disposition: model.DispositionRestock,
	})
	require.NoError(t, err)

	key := "REF-" + request.ReturnNumber
	sameKey := mock.MatchedBy(func(r gateway.RefundRequest) bool { return r.Key == key })
	f.gateway.On("Refund", mock.Anything, sameKey).Return(nil, errGatewayDown).Once()
	f.gateway.On("Refund", mock.Anything, sameKey).Return(&gateway.RefundResult{Success: true, RefundID: "rf-9"}, nil).Once()

	failed, err := f.returns.SettleRefund(context.Background(), request.ID, staff, model.SettleInput{})
	require.Error(t, err)
	assert.Equal(t, svcerrors.ErrThirdParty, svcerrors.GetErrorCode(err))
	assert.Equal(t, model.ReturnProcessing, failed.Status)
	assert.Equal(t, model.RefundFailed, failed.RefundStatus)
	assert.Contains(t, failed.RefundNotes, "gateway unavailable")
	assert.True(t, f.store.snapshot().orders[order.ID].HasActiveReturns)

	settled, err := f.returns.SettleRefund(context.Background(), request.ID, staff, model.SettleInput{})
	require.NoError(t, err)
	assert.Equal(t, model.ReturnCompleted, settled.Status)
	assert.Equal(t, key, settled.RefundKey)
	assert.Equal(t, "rf-9", settled.RefundReference)
	f.gateway.AssertExpectations(t)
}

func TestSettleRefund_RetryCannotChangeAmount(t *testing.T) {
	f := newReturnFixture(t)
	order := f.deliveredOrder(t, model.LineRequest{SKU: skuA, Quantity: 2})
	request := f.receivedReturn(t, order)
	_, err := f.returns.CompleteQualityCheck(context.Background(), request.ID, staff, model.InspectionResult{
		Condition: model.ConditionGood, Sellable: 2, Disposition: model.DispositionRestock,
	})
	require.NoError(t, err)

	var sent []gateway.RefundRequest
	record := func(args mock.Arguments) { sent = append(sent, args.Get(1).(gateway.RefundRequest)) }
	f.gateway.On("Refund", mock.Anything, mock.Anything).Return(nil, errGatewayDown).Run(record).Once()
	f.gateway.On("Refund", mock.Anything, mock.Anything).Return(&gateway.RefundResult{Success: true, RefundID: "rf-10"}, nil).Run(record).Once()

	_, err = f.returns.SettleRefund(context.Background(), request.ID, staff, model.SettleInput{})
	require.Error(t, err)

	_, err = f.returns.SettleRefund(context.Background(), request.ID, staff, model.SettleInput{Amount: int64p(1000)})
	assert.Equal(t, svcerrors.ErrConflict, svcerrors.GetErrorCode(err))
	_, err = f.returns.SettleRefund(context.Background(), request.ID, staff, model.SettleInput{Method: "store_credit"})
	assert.Equal(t, svcerrors.ErrConflict, svcerrors.GetErrorCode(err))
	require.Len(t, sent, 1)

	stored := f.store.snapshot().returns[request.ID]
	assert.Equal(t, int64(20000), stored.ApprovedAmount)
	assert.Equal(t, model.RefundFailed, stored.RefundStatus)

	settled, err := f.returns.SettleRefund(context.Background(), request.ID, staff, model.SettleInput{Amount: int64p(20000)})
	require.NoError(t, err)
	assert.Equal(t, model.ReturnCompleted, settled.Status)
	require.Len(t, sent, 2)
	assert.Equal(t, sent[0], sent[1])
	assert.Equal(t, int64(18000), settled.RefundAmount)
}

func TestSettleRefund_ZeroAmountSkipsGateway(t *testing.T) {
	f := newReturnFixture(t)
	order := f.deliveredOrder(t, model.LineRequest{SKU: skuA, Quantity: 1})
	request := f.receivedReturn(t, order)
	_, err := f.returns.CompleteQualityCheck(context.Background(), request.ID, staff, model.InspectionResult{
		Condition: model.ConditionPoor, Missing: 1, Disposition: model.DispositionDispose,
	})
	require.NoError(t, err)

	settled, err := f.returns.SettleRefund(context.Background(), request.ID, staff, model.SettleInput{Amount: int64p(0)})
	require.NoError(t, err)
	assert.Equal(t, model.ReturnCompleted, settled.Status)
	assert.Zero(t, settled.RefundAmount)
	f.gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)

	_, err = f.returns.SettleRefund(context.Background(), request.ID, otherCustomer, model.SettleInput{})
	assert.Equal(t, svcerrors.ErrForbidden, svcerrors.GetErrorCode(err))
}

func TestSettleRefund_AmountAboveRequested(t *testing.T) {
	f := newReturnFixture(t)
	order := f.deliveredOrder(t, model.LineRequest{SKU: skuA, Quantity: 1})
	request := f.receivedReturn(t, order)
	_, err := f.returns.CompleteQualityCheck(context.Background(), request.ID, staff, model.InspectionResult{
		Condition: model.ConditionNew, Sellable: 1, Disposition: model.DispositionRestock,
	})
	require.NoError(t, err)

	_, err = f.returns.SettleRefund(context.Background(), request.ID, staff, model.SettleInput{Amount: int64p(99999)})
	assert.Equal(t, svcerrors.ErrInvalidInput, svcerrors.GetErrorCode(err))
	assert.Equal(t, model.ReturnQualityCheck, f.store.snapshot().returns[request.ID].Status)
}

func TestSettleRefund_LockBusy(t *testing.T) {
	f := newReturnFixture(t)
	order := f.deliveredOrder(t, model.LineRequest{SKU: skuA, Quantity: 1})
	request := f.create(t, order)

	busy := new(MockLocker)
	busy.On("Lock", mock.Anything, "settle:"+request.ReturnNumber).Return(nil, fmt.Errorf("acquire: %w", lock.ErrLockBusy))
	f.returns.locker = busy

	_, err := f.returns.SettleRefund(context.Background(), request.ID, staff, model.SettleInput{})
	assert.Equal(t, svcerrors.ErrConflict, svcerrors.GetErrorCode(err))
	assert.True(t, svcerrors.IsRetryable(err))
}

func TestReturnTransitions_AreMonotonic(t *testing.T) {
	f := newReturnFixture(t)
	order := f.deliveredOrder(t, model.LineRequest{SKU: skuA, Quantity: 1})
	request := f.create(t, order)

	_, err := f.returns.MarkItemReceived(context.Background(), request.ID, staff, model.ItemReceipt{})
	var transitionErr *svcerrors.InvalidTransitionError
	require.True(t, errors.As(err, &transitionErr))
	assert.Equal(t, "pending", transitionErr.From)

	_, err = f.returns.SettleRefund(context.Background(), request.ID, staff, model.SettleInput{})
	require.True(t, errors.As(err, &transitionErr))

	request = f.receivedReturn(t, f.deliveredOrder(t, model.LineRequest{SKU: skuA, Quantity: 1}))
	_, err = f.returns.ProcessReturnRequest(context.Background(), request.ID, staff, model.ReturnDecision{Approve: true})
	require.True(t, errors.As(err, &transitionErr))
	_, err = f.returns.CancelReturnRequest(context.Background(), request.ID, customer)
	require.True(t, errors.As(err, &transitionErr))
	assert.Equal(t, model.ReturnItemReceived, f.store.snapshot().returns[request.ID].Status)
}

func TestProcessReturnRequest_RejectClearsOrderFlag(t *testing.T) {
	f := newReturnFixture(t)
	order := f.deliveredOrder(t, model.LineRequest{SKU: skuA, Quantity: 1}, model.LineRequest{SKU: skuB, Quantity: 1})
	first := f.create(t, order)
	second, err := f.returns.CreateReturnRequest(context.Background(), customer, model.CreateReturnInput{
		OrderID: order.ID, OrderLineID: order.Lines[1].ID, ReasonCode: "wrong_size",
	})
	require.NoError(t, err)

	_, err = f.returns.ProcessReturnRequest(context.Background(), first.ID, customer, model.ReturnDecision{})
	assert.Equal(t, svcerrors.ErrForbidden, svcerrors.GetErrorCode(err))

	rejected, err := f.returns.ProcessReturnRequest(context.Background(), first.ID, staff, model.ReturnDecision{RejectionReason: "used"})
	require.NoError(t, err)
	assert.Equal(t, model.ReturnRejected, rejected.Status)
	assert.Equal(t, staff.UserID, *rejected.ProcessedBy)
	assert.True(t, f.store.snapshot().orders[order.ID].HasActiveReturns)

	_, err = f.returns.ProcessReturnRequest(context.Background(), second.ID, staff, model.ReturnDecision{})
	require.NoError(t, err)
	assert.False(t, f.store.snapshot().orders[order.ID].HasActiveReturns)
}

func TestProcessReturnRequest_ApprovedAmountAdjustment(t *testing.T) {
	f := newReturnFixture(t)
	order := f.deliveredOrder(t, model.LineRequest{SKU: skuA, Quantity: 2})
	request := f.create(t, order)

	_, err := f.returns.ProcessReturnRequest(context.Background(), request.ID, staff, model.ReturnDecision{Approve: true, ApprovedAmount: int64p(30000)})
	assert.Equal(t, svcerrors.ErrInvalidInput, svcerrors.GetErrorCode(err))

	approved, err := f.returns.ProcessReturnRequest(context.Background(), request.ID, staff, model.ReturnDecision{Approve: true, ApprovedAmount: int64p(15000)})
	require.NoError(t, err)
	assert.Equal(t, int64(15000), approved.ApprovedAmount)
	require.NotNil(t, approved.QualityCheck)
	assert.Equal(t, 2, approved.QualityCheck.QuantityExpected)
}

func TestAutoApprovedReturnSkipsInspection(t *testing.T) {
	f := newReturnFixture(t)
	f.store.seed(func(s *memState) {
		s.policies = append(s.policies, model.ReturnPolicy{
			ID:                      2,
			Name:                    "easy returns",
			Scope:                   model.ScopeProduct,
			ScopeID:                 int64p(skuB.ProductID),
			ReturnWindowDays:        30,
			RestockingFeePercentage: decimal.Zero,
			IsReturnable:            true,
			IsActive:                true,
		})
	})
	order := f.deliveredOrder(t, model.LineRequest{SKU: skuB, Quantity: 1})
	assert.Equal(t, 30, order.Lines[0].ReturnWindowDays)

	request := f.create(t, order)
	assert.Equal(t, model.ReturnApproved, request.Status)
	assert.Equal(t, int64(5000), request.ApprovedAmount)
	assert.Nil(t, request.QualityCheck)

	request, err := f.returns.MarkItemReceived(context.Background(), request.ID, staff, model.ItemReceipt{Notes: "box intact"})
	require.NoError(t, err)
	assert.Equal(t, model.ReturnQualityCheck, request.Status)
	assert.NotNil(t, request.ItemReceivedAt)
	assert.NotNil(t, request.QualityCheckAt)
	f.notifier.AssertCalled(t, "Notify", mock.Anything, customer.UserID, TemplateReturnStatusChanged,
		mock.MatchedBy(func(data map[string]interface{}) bool { return data["status"] == "item_received" }))
}

func TestUploadInspectionEvidence(t *testing.T) {
	f := newReturnFixture(t)
	order := f.deliveredOrder(t, model.LineRequest{SKU: skuA, Quantity: 1})
	request := f.receivedReturn(t, order)
	file := &multipart.FileHeader{Filename: "scratch.jpg"}

	f.storage.On("UploadFile", mock.Anything, file, mock.MatchedBy(func(path string) bool {
		return len(path) > 0 && path[:len("returns/"+request.ReturnNumber)] == "returns/"+request.ReturnNumber
	})).Return("/uploads/returns/scratch.jpg", nil).Once()

	_, err := f.returns.UploadInspectionEvidence(context.Background(), request.ID, customer, file)
	assert.Equal(t, svcerrors.ErrForbidden, svcerrors.GetErrorCode(err))

	evidence, err := f.returns.UploadInspectionEvidence(context.Background(), request.ID, staff, file)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/returns/scratch.jpg", evidence.URL)

	got, err := f.returns.GetReturnRequest(context.Background(), customer, request.ID)
	require.NoError(t, err)
	require.Len(t, got.Evidence, 1)
	require.NotNil(t, got.QualityCheck)
	assert.Equal(t, model.QCPending, got.QualityCheck.Status)

	_, err = f.returns.GetReturnRequest(context.Background(), otherCustomer, request.ID)
	assert.Equal(t, svcerrors.ErrForbidden, svcerrors.GetErrorCode(err))
	f.storage.AssertExpectations(t)
}
