package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
	"ztuff-backend/internal/gateway"
	"ztuff-backend/internal/lock"
	"ztuff-backend/internal/model"
	"ztuff-backend/internal/repository/interfaces"

	"github.com/stretchr/testify/mock"
)

// memState 内存数据，事务提交前在副本上修改
type memState struct {
	units     map[model.SKU]model.InventoryUnit
	catalog   map[model.SKU]model.CatalogSKU
	orders    map[int64]model.Order
	returns   map[int64]model.ReturnRequest
	qcs       map[int64]model.QualityCheck
	damaged   []model.DamagedInventory
	evidence  []model.InspectionEvidence
	policies  []model.ReturnPolicy
	addresses map[int64]model.UserAddress
	nextID    int64
}

func newMemState() *memState {
	return &memState{
		units:     map[model.SKU]model.InventoryUnit{},
		catalog:   map[model.SKU]model.CatalogSKU{},
		orders:    map[int64]model.Order{},
		returns:   map[int64]model.ReturnRequest{},
		qcs:       map[int64]model.QualityCheck{},
		addresses: map[int64]model.UserAddress{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.units {
		c.units[k] = v
	}
	for k, v := range s.catalog {
		c.catalog[k] = v
	}
	for k, v := range s.orders {
		v.Lines = append([]model.OrderLine(nil), v.Lines...)
		c.orders[k] = v
	}
	for k, v := range s.returns {
		c.returns[k] = v
	}
	for k, v := range s.qcs {
		c.qcs[k] = v
	}
	for k, v := range s.addresses {
		c.addresses[k] = v
	}
	c.damaged = append(c.damaged, s.damaged...)
	c.evidence = append(c.evidence, s.evidence...)
	c.policies = append(c.policies, s.policies...)
	c.nextID = s.nextID
	return c
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

// memStore 事务串行执行，失败时丢弃副本
type memStore struct {
	txMu  sync.Mutex
	mu    sync.Mutex
	state *memState
}

func newMemStore() *memStore {
	return &memStore{state: newMemState()}
}

func (m *memStore) Repositories() interfaces.Repositories {
	return m.repos(nil)
}

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos interfaces.Repositories) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	working := m.state.clone()
	m.mu.Unlock()

	if err := fn(ctx, m.repos(working)); err != nil {
		return err
	}

	m.mu.Lock()
	m.state = working
	m.mu.Unlock()
	return nil
}

func (m *memStore) repos(tx *memState) interfaces.Repositories {
	r := &memRepos{store: m, tx: tx}
	return interfaces.Repositories{
		Inventory: r,
		Catalog:   r,
		Orders:    (*memOrders)(r),
		Returns:   (*memReturns)(r),
		Policies:  r,
		Users:     r,
	}
}

// snapshot 测试断言用
func (m *memStore) snapshot() *memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

func (m *memStore) seed(fn func(s *memState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.state)
}

type memRepos struct {
	store *memStore
	tx    *memState
}

func (r *memRepos) with(fn func(s *memState) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return fn(r.store.state)
}

func (r *memRepos) LockUnits(ctx context.Context, skus []model.SKU) (map[model.SKU]*model.InventoryUnit, error) {
	result := make(map[model.SKU]*model.InventoryUnit, len(skus))
	err := r.with(func(s *memState) error {
		for _, sku := range skus {
			if unit, ok := s.units[sku]; ok {
				u := unit
				result[sku] = &u
			}
		}
		return nil
	})
	return result, err
}

func (r *memRepos) Decrement(ctx context.Context, sku model.SKU, quantity int) error {
	return r.with(func(s *memState) error {
		unit, ok := s.units[sku]
		if !ok || unit.AvailableQuantity < quantity {
			return interfaces.ErrNoRowsAffected
		}
		unit.AvailableQuantity -= quantity
		s.units[sku] = unit
		return nil
	})
}

func (r *memRepos) Increment(ctx context.Context, sku model.SKU, quantity int) error {
	return r.with(func(s *memState) error {
		unit, ok := s.units[sku]
		if !ok {
			return interfaces.ErrNoRowsAffected
		}
		unit.AvailableQuantity += quantity
		s.units[sku] = unit
		return nil
	})
}

func (r *memRepos) GetUnit(ctx context.Context, sku model.SKU) (*model.InventoryUnit, error) {
	var result *model.InventoryUnit
	err := r.with(func(s *memState) error {
		if unit, ok := s.units[sku]; ok {
			result = &unit
		}
		return nil
	})
	return result, err
}

func (r *memRepos) GetSKU(ctx context.Context, sku model.SKU) (*model.CatalogSKU, error) {
	var result *model.CatalogSKU
	err := r.with(func(s *memState) error {
		if item, ok := s.catalog[sku]; ok {
			result = &item
		}
		return nil
	})
	return result, err
}

func (r *memRepos) ListCandidates(ctx context.Context, productID int64, categoryID *int64) ([]*model.ReturnPolicy, error) {
	var result []*model.ReturnPolicy
	err := r.with(func(s *memState) error {
		for _, p := range s.policies {
			policy := p
			result = append(result, &policy)
		}
		return nil
	})
	return result, err
}

func (r *memRepos) FindByID(ctx context.Context, id int64) (*model.User, error) {
	return &model.User{ID: id, Email: "customer@example.com", Role: model.RoleCustomer}, nil
}

func (r *memRepos) GetAddressByID(ctx context.Context, id int64) (*model.UserAddress, error) {
	var result *model.UserAddress
	err := r.with(func(s *memState) error {
		if a, ok := s.addresses[id]; ok {
			result = &a
		}
		return nil
	})
	return result, err
}

type memOrders memRepos

func (o *memOrders) with(fn func(s *memState) error) error { return (*memRepos)(o).with(fn) }

func copyOrder(order model.Order) *model.Order {
	order.Lines = append([]model.OrderLine(nil), order.Lines...)
	return &order
}

func (o *memOrders) Create(ctx context.Context, order *model.Order) error {
	return o.with(func(s *memState) error {
		for _, existing := range s.orders {
			if existing.CustomerID == order.CustomerID && existing.IdempotencyKey == order.IdempotencyKey {
				return interfaces.ErrDuplicate
			}
		}
		now := time.Now()
		order.ID = s.id()
		order.CreatedAt, order.UpdatedAt = now, now
		for i := range order.Lines {
			order.Lines[i].ID = s.id()
			order.Lines[i].OrderID = order.ID
			order.Lines[i].CreatedAt = now
		}
		s.orders[order.ID] = *copyOrder(*order)
		return nil
	})
}

func (o *memOrders) find(match func(model.Order) bool) (*model.Order, error) {
	var result *model.Order
	err := o.with(func(s *memState) error {
		for _, order := range s.orders {
			if match(order) {
				result = copyOrder(order)
				return nil
			}
		}
		return nil
	})
	return result, err
}

func (o *memOrders) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	return o.find(func(order model.Order) bool { return order.ID == id })
}

func (o *memOrders) GetByIDForUpdate(ctx context.Context, id int64) (*model.Order, error) {
	return o.GetByID(ctx, id)
}

func (o *memOrders) GetByOrderNumberForUpdate(ctx context.Context, orderNumber string) (*model.Order, error) {
	return o.find(func(order model.Order) bool { return order.OrderNumber == orderNumber })
}

func (o *memOrders) GetByIdempotencyKey(ctx context.Context, customerID int64, key string) (*model.Order, error) {
	return o.find(func(order model.Order) bool {
		return order.CustomerID == customerID && order.IdempotencyKey == key
	})
}

func (o *memOrders) UpdateStatus(ctx context.Context, order *model.Order) error {
	return o.with(func(s *memState) error {
		stored, ok := s.orders[order.ID]
		if !ok {
			return interfaces.ErrNoRowsAffected
		}
		stored.Status = order.Status
		stored.PaymentType = order.PaymentType
		stored.PaymentReference = order.PaymentReference
		stored.DeliveredAt = order.DeliveredAt
		stored.ReturnWindowExpires = order.ReturnWindowExpires
		stored.IsReturnable = order.IsReturnable
		stored.UpdatedAt = time.Now()
		s.orders[order.ID] = stored
		return nil
	})
}

func (o *memOrders) SetHasActiveReturns(ctx context.Context, orderID int64, active bool) error {
	return o.with(func(s *memState) error {
		stored := s.orders[orderID]
		stored.HasActiveReturns = active
		s.orders[orderID] = stored
		return nil
	})
}

func (o *memOrders) ExpireReturnWindows(ctx context.Context, now time.Time) (int64, error) {
	var affected int64
	err := o.with(func(s *memState) error {
		for id, order := range s.orders {
			if order.IsReturnable && order.ReturnWindowExpires != nil && order.ReturnWindowExpires.Before(now) {
				order.IsReturnable = false
				s.orders[id] = order
				affected++
			}
		}
		return nil
	})
	return affected, err
}

type memReturns memRepos

func (r *memReturns) with(fn func(s *memState) error) error { return (*memRepos)(r).with(fn) }

func (r *memReturns) Create(ctx context.Context, request *model.ReturnRequest) error {
	return r.with(func(s *memState) error {
		for _, existing := range s.returns {
			if existing.OrderLineID == request.OrderLineID && !existing.Status.IsTerminal() {
				return interfaces.ErrDuplicate
			}
		}
		request.ID = s.id()
		request.UpdatedAt = time.Now()
		s.returns[request.ID] = *request
		return nil
	})
}

func (r *memReturns) GetByID(ctx context.Context, id int64) (*model.ReturnRequest, error) {
	var result *model.ReturnRequest
	err := r.with(func(s *memState) error {
		if request, ok := s.returns[id]; ok {
			result = &request
		}
		return nil
	})
	return result, err
}

func (r *memReturns) GetByIDForUpdate(ctx context.Context, id int64) (*model.ReturnRequest, error) {
	return r.GetByID(ctx, id)
}

func (r *memReturns) Update(ctx context.Context, request *model.ReturnRequest) error {
	return r.with(func(s *memState) error {
		if _, ok := s.returns[request.ID]; !ok {
			return interfaces.ErrNoRowsAffected
		}
		stored := *request
		stored.QualityCheck = nil
		stored.Evidence = nil
		stored.UpdatedAt = time.Now()
		s.returns[request.ID] = stored
		return nil
	})
}

func (r *memReturns) HasActiveForLine(ctx context.Context, orderLineID int64) (bool, error) {
	active := false
	err := r.with(func(s *memState) error {
		for _, request := range s.returns {
			if request.OrderLineID == orderLineID && !request.Status.IsTerminal() {
				active = true
			}
		}
		return nil
	})
	return active, err
}

func (r *memReturns) CountActiveForOrder(ctx context.Context, orderID int64) (int, error) {
	count := 0
	err := r.with(func(s *memState) error {
		for _, request := range s.returns {
			if request.OrderID == orderID && !request.Status.IsTerminal() {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r *memReturns) CreateQualityCheck(ctx context.Context, qc *model.QualityCheck) error {
	return r.with(func(s *memState) error {
		if _, ok := s.qcs[qc.ReturnRequestID]; ok {
			return interfaces.ErrDuplicate
		}
		qc.ID = s.id()
		qc.CreatedAt = time.Now()
		s.qcs[qc.ReturnRequestID] = *qc
		return nil
	})
}

func (r *memReturns) GetQualityCheck(ctx context.Context, returnID int64) (*model.QualityCheck, error) {
	var result *model.QualityCheck
	err := r.with(func(s *memState) error {
		if qc, ok := s.qcs[returnID]; ok {
			result = &qc
		}
		return nil
	})
	return result, err
}

func (r *memReturns) CompleteQualityCheck(ctx context.Context, qc *model.QualityCheck) error {
	return r.with(func(s *memState) error {
		stored, ok := s.qcs[qc.ReturnRequestID]
		if !ok || stored.Status != model.QCPending {
			return interfaces.ErrNoRowsAffected
		}
		qc.Status = model.QCCompleted
		s.qcs[qc.ReturnRequestID] = *qc
		return nil
	})
}

func (r *memReturns) CancelQualityCheck(ctx context.Context, returnID int64) error {
	return r.with(func(s *memState) error {
		stored, ok := s.qcs[returnID]
		if !ok || stored.Status != model.QCPending {
			return nil
		}
		now := time.Now()
		stored.Status = model.QCCancelled
		stored.CompletedAt = &now
		s.qcs[returnID] = stored
		return nil
	})
}

func (r *memReturns) CreateDamagedInventory(ctx context.Context, item *model.DamagedInventory) error {
	return r.with(func(s *memState) error {
		item.ID = s.id()
		item.CreatedAt = time.Now()
		s.damaged = append(s.damaged, *item)
		return nil
	})
}

func (r *memReturns) ListDamagedInventory(ctx context.Context, returnID int64) ([]*model.DamagedInventory, error) {
	var result []*model.DamagedInventory
	err := r.with(func(s *memState) error {
		for _, item := range s.damaged {
			if item.ReturnRequestID == returnID {
				d := item
				result = append(result, &d)
			}
		}
		return nil
	})
	return result, err
}

func (r *memReturns) AddEvidence(ctx context.Context, evidence *model.InspectionEvidence) error {
	return r.with(func(s *memState) error {
		evidence.ID = s.id()
		evidence.CreatedAt = time.Now()
		s.evidence = append(s.evidence, *evidence)
		return nil
	})
}

func (r *memReturns) ListEvidence(ctx context.Context, returnID int64) ([]*model.InspectionEvidence, error) {
	var result []*model.InspectionEvidence
	err := r.with(func(s *memState) error {
		for _, e := range s.evidence {
			if e.ReturnRequestID == returnID {
				item := e
				result = append(result, &item)
			}
		}
		sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
		return nil
	})
	return result, err
}

// MockNotifier 是 Notifier 接口的模拟实现
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, userID int64, template string, data map[string]interface{}) error {
	args := m.Called(ctx, userID, template, data)
	return args.Error(0)
}

// MockGateway 是 PaymentGateway 接口的模拟实现
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.RefundResult), args.Error(1)
}

// MockLocker 是 Locker 接口的模拟实现
type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Lock(ctx context.Context, key string) (lock.Unlock, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(lock.Unlock), args.Error(1)
}

var errGatewayDown = errors.New("gateway unavailable")
