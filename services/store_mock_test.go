package services_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aravind-gm/oranew/models"
	"github.com/aravind-gm/oranew/repository"
)

// --- In-memory Store ---
//
// memStore serialises every call on one mutex. A transaction holds the mutex
// for its whole duration and restores a snapshot when fn fails, which gives
// the same all-or-nothing behaviour as the row-locked Postgres transactions.

type cartKey struct{ user, product uuid.UUID }
type redemptionKey struct{ coupon, order uuid.UUID }

type memState struct {
	orders      map[uuid.UUID]models.Order
	products    map[uuid.UUID]models.Product
	locks       []models.InventoryLock
	coupons     map[uuid.UUID]models.Coupon
	redemptions map[redemptionKey]models.CouponRedemption
	payments    map[uuid.UUID]models.Payment
	returns     map[uuid.UUID]models.Return
	addresses   map[uuid.UUID]models.Address
	carts       map[cartKey]models.CartItem
}

func (st *memState) clone() *memState {
	c := &memState{
		orders:      make(map[uuid.UUID]models.Order, len(st.orders)),
		products:    make(map[uuid.UUID]models.Product, len(st.products)),
		locks:       append([]models.InventoryLock(nil), st.locks...),
		coupons:     make(map[uuid.UUID]models.Coupon, len(st.coupons)),
		redemptions: make(map[redemptionKey]models.CouponRedemption, len(st.redemptions)),
		payments:    make(map[uuid.UUID]models.Payment, len(st.payments)),
		returns:     make(map[uuid.UUID]models.Return, len(st.returns)),
		addresses:   make(map[uuid.UUID]models.Address, len(st.addresses)),
		carts:       make(map[cartKey]models.CartItem, len(st.carts)),
	}
	for k, v := range st.orders {
		c.orders[k] = v
	}
	for k, v := range st.products {
		c.products[k] = v
	}
	for k, v := range st.coupons {
		c.coupons[k] = v
	}
	for k, v := range st.redemptions {
		c.redemptions[k] = v
	}
	for k, v := range st.payments {
		c.payments[k] = v
	}
	for k, v := range st.returns {
		c.returns[k] = v
	}
	for k, v := range st.addresses {
		c.addresses[k] = v
	}
	for k, v := range st.carts {
		c.carts[k] = v
	}
	return c
}

type memStore struct {
	mu   *sync.Mutex
	st   *memState
	inTx bool

	// getOrderErrs are returned, in order, by Orders().GetByID before it
	// reads the state.
	getOrderErrs []error
}

func newMemStore() *memStore {
	return &memStore{
		mu: &sync.Mutex{},
		st: &memState{
			orders:      map[uuid.UUID]models.Order{},
			products:    map[uuid.UUID]models.Product{},
			coupons:     map[uuid.UUID]models.Coupon{},
			redemptions: map[redemptionKey]models.CouponRedemption{},
			payments:    map[uuid.UUID]models.Payment{},
			returns:     map[uuid.UUID]models.Return{},
			addresses:   map[uuid.UUID]models.Address{},
			carts:       map[cartKey]models.CartItem{},
		},
	}
}

func (s *memStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *memStore) Orders() repository.OrderRepository { return &memOrders{s} }
func (s *memStore) Products() repository.ProductRepository { return &memProducts{s} }
func (s *memStore) Inventory() repository.InventoryRepository { return &memInventory{s} }
func (s *memStore) Coupons() repository.CouponRepository { return &memCoupons{s} }
func (s *memStore) Payments() repository.PaymentRepository { return &memPayments{s} }
func (s *memStore) Returns() repository.ReturnRepository { return &memReturns{s} }
func (s *memStore) Addresses() repository.AddressRepository { return &memAddresses{s} }
func (s *memStore) Carts() repository.CartRepository { return &memCarts{s} }

func (s *memStore) WithoutRetry() repository.Store { return s }

func (s *memStore) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	tx := &memStore{mu: s.mu, st: s.st, inTx: true}
	if err := fn(tx); err != nil {
		*s.st = *snapshot
		return err
	}
	return nil
}

// --- seed and inspection helpers ---

func (s *memStore) addProduct(price float64, stock int) models.Product {
	defer s.lock()()
	p := models.Product{ID: uuid.New(), Name: "Product", Price: price, StockQuantity: stock, IsActive: true}
	s.st.products[p.ID] = p
	return p
}

func (s *memStore) addAddress(userID uuid.UUID) models.Address {
	defer s.lock()()
	a := models.Address{ID: uuid.New(), UserID: userID, Street: "1 MG Road", City: "Bengaluru", State: "KA", ZipCode: "560001", Country: "IN"}
	s.st.addresses[a.ID] = a
	return a
}

func (s *memStore) addCoupon(c models.Coupon) models.Coupon {
	defer s.lock()()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Code = repository.NormalizeCode(c.Code)
	s.st.coupons[c.ID] = c
	return c
}

func (s *memStore) putOrder(o models.Order) models.Order {
	defer s.lock()()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	for i := range o.Items {
		o.Items[i].OrderID = o.ID
	}
	s.st.orders[o.ID] = o
	return o
}

func (s *memStore) putLock(l models.InventoryLock) {
	defer s.lock()()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	s.st.locks = append(s.st.locks, l)
}

// expireLocks moves every lock of the order into the past without sweeping it.
func (s *memStore) expireLocks(orderID uuid.UUID) {
	defer s.lock()()
	for i := range s.st.locks {
		if s.st.locks[i].OrderID == orderID {
			s.st.locks[i].ExpiresAt = time.Now().Add(-time.Minute)
		}
	}
}

func (s *memStore) putCartItem(userID, productID uuid.UUID, qty int) {
	defer s.lock()()
	s.st.carts[cartKey{userID, productID}] = models.CartItem{ID: uuid.New(), UserID: userID, ProductID: productID, Quantity: qty}
}

func (s *memStore) order(id uuid.UUID) (models.Order, bool) {
	defer s.lock()()
	o, ok := s.st.orders[id]
	return o, ok
}

func (s *memStore) orderCount() int {
	defer s.lock()()
	return len(s.st.orders)
}

func (s *memStore) stock(id uuid.UUID) int {
	defer s.lock()()
	return s.st.products[id].StockQuantity
}

func (s *memStore) locksFor(orderID uuid.UUID) []models.InventoryLock {
	defer s.lock()()
	var out []models.InventoryLock
	for _, l := range s.st.locks {
		if l.OrderID == orderID {
			out = append(out, l)
		}
	}
	return out
}

func (s *memStore) lockCount() int {
	defer s.lock()()
	return len(s.st.locks)
}

func (s *memStore) cartSize(userID uuid.UUID) int {
	defer s.lock()()
	n := 0
	for k := range s.st.carts {
		if k.user == userID {
			n++
		}
	}
	return n
}

func (s *memStore) coupon(id uuid.UUID) models.Coupon {
	defer s.lock()()
	return s.st.coupons[id]
}

func (s *memStore) payment(orderID uuid.UUID) (models.Payment, bool) {
	defer s.lock()()
	p, ok := s.st.payments[orderID]
	return p, ok
}

func (s *memStore) putReturn(r models.Return) models.Return {
	defer s.lock()()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	s.st.returns[r.ID] = r
	return r
}

// --- Orders ---

type memOrders struct{ s *memStore }

func (r *memOrders) Create(_ context.Context, o *models.Order) error {
	defer r.s.lock()()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	for i := range o.Items {
		if o.Items[i].ID == uuid.Nil {
			o.Items[i].ID = uuid.New()
		}
		o.Items[i].OrderID = o.ID
	}
	o.CreatedAt = time.Now()
	r.s.st.orders[o.ID] = *o
	return nil
}

func (r *memOrders) GetByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	defer r.s.lock()()
	if len(r.s.getOrderErrs) > 0 {
		err := r.s.getOrderErrs[0]
		r.s.getOrderErrs = r.s.getOrderErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	o, ok := r.s.st.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	o.Items = append([]models.OrderItem(nil), o.Items...)
	return &o, nil
}

func (r *memOrders) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.GetByID(ctx, id)
}

func (r *memOrders) ListByUser(_ context.Context, userID uuid.UUID, page models.Page) ([]models.Order, int64, error) {
	defer r.s.lock()()
	var all []models.Order
	for _, o := range r.s.st.orders {
		if userID == uuid.Nil || o.UserID == userID {
			all = append(all, o)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	offset := page.Normalize()
	total := int64(len(all))
	if offset >= len(all) {
		return []models.Order{}, total, nil
	}
	end := offset + page.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (r *memOrders) Update(_ context.Context, id uuid.UUID, fields map[string]interface{}) error {
	defer r.s.lock()()
	o, ok := r.s.st.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	for k, v := range fields {
		switch k {
		case "status":
			o.Status = v.(models.OrderStatus)
		case "payment_status":
			o.PaymentStatus = v.(models.PaymentStatus)
		case "cancel_reason":
			reason := v.(string)
			o.CancelReason = &reason
		case "stock_committed_at":
			t := v.(time.Time)
			o.StockCommittedAt = &t
		case "restocked_at":
			t := v.(time.Time)
			o.RestockedAt = &t
		}
	}
	r.s.st.orders[id] = o
	return nil
}

func (r *memOrders) Delete(_ context.Context, id uuid.UUID) error {
	defer r.s.lock()()
	delete(r.s.st.orders, id)
	kept := r.s.st.locks[:0]
	for _, l := range r.s.st.locks {
		if l.OrderID != id {
			kept = append(kept, l)
		}
	}
	r.s.st.locks = kept
	return nil
}

func (r *memOrders) MarkRestocked(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	defer r.s.lock()()
	o, ok := r.s.st.orders[id]
	if !ok || o.RestockedAt != nil || o.StockCommittedAt == nil {
		return false, nil
	}
	o.RestockedAt = &at
	r.s.st.orders[id] = o
	return true, nil
}

// --- Products ---

type memProducts struct{ s *memStore }

func (r *memProducts) GetByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	defer r.s.lock()()
	p, ok := r.s.st.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *memProducts) GetByIDs(_ context.Context, ids []uuid.UUID) ([]models.Product, error) {
	defer r.s.lock()()
	var out []models.Product
	for _, id := range ids {
		if p, ok := r.s.st.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memProducts) LockByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	return r.GetByIDs(ctx, ids)
}

func (r *memProducts) DecrementStock(_ context.Context, id uuid.UUID, qty int) error {
	defer r.s.lock()()
	p, ok := r.s.st.products[id]
	if !ok || p.StockQuantity < qty {
		return repository.ErrInsufficientStock
	}
	p.StockQuantity -= qty
	r.s.st.products[id] = p
	return nil
}

func (r *memProducts) IncrementStock(_ context.Context, id uuid.UUID, qty int) error {
	defer r.s.lock()()
	p, ok := r.s.st.products[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.StockQuantity += qty
	r.s.st.products[id] = p
	return nil
}

func (r *memProducts) SetStock(_ context.Context, id uuid.UUID, stock int) error {
	defer r.s.lock()()
	p, ok := r.s.st.products[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.StockQuantity = stock
	r.s.st.products[id] = p
	return nil
}

// --- Inventory ---

type memInventory struct{ s *memStore }

func (r *memInventory) LockedQuantities(_ context.Context, ids []uuid.UUID, now time.Time) (map[uuid.UUID]int, error) {
	defer r.s.lock()()
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := map[uuid.UUID]int{}
	for _, l := range r.s.st.locks {
		if want[l.ProductID] && l.ExpiresAt.After(now) {
			out[l.ProductID] += l.Quantity
		}
	}
	return out, nil
}

func (r *memInventory) LockedByOthers(_ context.Context, ids []uuid.UUID, orderID uuid.UUID, now time.Time) (map[uuid.UUID]int, error) {
	defer r.s.lock()()
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := map[uuid.UUID]int{}
	for _, l := range r.s.st.locks {
		if want[l.ProductID] && l.OrderID != orderID && l.ExpiresAt.After(now) {
			out[l.ProductID] += l.Quantity
		}
	}
	return out, nil
}

func (r *memInventory) CreateLocks(_ context.Context, locks []models.InventoryLock) error {
	defer r.s.lock()()
	for _, l := range locks {
		if l.ID == uuid.Nil {
			l.ID = uuid.New()
		}
		r.s.st.locks = append(r.s.st.locks, l)
	}
	return nil
}

func (r *memInventory) deleteWhere(match func(models.InventoryLock) bool) int64 {
	var n int64
	kept := make([]models.InventoryLock, 0, len(r.s.st.locks))
	for _, l := range r.s.st.locks {
		if match(l) {
			n++
			continue
		}
		kept = append(kept, l)
	}
	r.s.st.locks = kept
	return n
}

func (r *memInventory) DeleteByOrder(_ context.Context, orderID uuid.UUID) (int64, error) {
	defer r.s.lock()()
	return r.deleteWhere(func(l models.InventoryLock) bool { return l.OrderID == orderID }), nil
}

func (r *memInventory) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	defer r.s.lock()()
	return r.deleteWhere(func(l models.InventoryLock) bool { return !l.ExpiresAt.After(now) }), nil
}

// --- Coupons ---

type memCoupons struct{ s *memStore }

func (r *memCoupons) Create(_ context.Context, c *models.Coupon) error {
	defer r.s.lock()()
	for _, existing := range r.s.st.coupons {
		if existing.Code == c.Code {
			return repository.ErrDuplicate
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	r.s.st.coupons[c.ID] = *c
	return nil
}

func (r *memCoupons) GetByID(_ context.Context, id uuid.UUID) (*models.Coupon, error) {
	defer r.s.lock()()
	c, ok := r.s.st.coupons[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r *memCoupons) GetByCode(_ context.Context, code string) (*models.Coupon, error) {
	defer r.s.lock()()
	for _, c := range r.s.st.coupons {
		if c.Code == repository.NormalizeCode(code) {
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memCoupons) List(_ context.Context, _ models.Page) ([]models.Coupon, int64, error) {
	defer r.s.lock()()
	var out []models.Coupon
	for _, c := range r.s.st.coupons {
		out = append(out, c)
	}
	return out, int64(len(out)), nil
}

func (r *memCoupons) Deactivate(_ context.Context, id uuid.UUID) error {
	defer r.s.lock()()
	c, ok := r.s.st.coupons[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.IsActive = false
	r.s.st.coupons[id] = c
	return nil
}

func (r *memCoupons) InsertRedemption(_ context.Context, red *models.CouponRedemption) (bool, error) {
	defer r.s.lock()()
	key := redemptionKey{red.CouponID, red.OrderID}
	if _, ok := r.s.st.redemptions[key]; ok {
		return false, nil
	}
	r.s.st.redemptions[key] = *red
	return true, nil
}

func (r *memCoupons) IncrementUsage(_ context.Context, id uuid.UUID) error {
	defer r.s.lock()()
	c, ok := r.s.st.coupons[id]
	if !ok || !c.IsActive || (c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit) {
		return repository.ErrUsageLimitReached
	}
	c.UsageCount++
	r.s.st.coupons[id] = c
	return nil
}

// --- Payments ---

type memPayments struct{ s *memStore }

func (r *memPayments) GetByOrderID(_ context.Context, orderID uuid.UUID) (*models.Payment, error) {
	defer r.s.lock()()
	p, ok := r.s.st.payments[orderID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *memPayments) Upsert(_ context.Context, p *models.Payment) error {
	defer r.s.lock()()
	if existing, ok := r.s.st.payments[p.OrderID]; ok {
		p.ID = existing.ID
	} else if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.s.st.payments[p.OrderID] = *p
	return nil
}

func (r *memPayments) UpdateByOrderID(_ context.Context, orderID uuid.UUID, fields map[string]interface{}) error {
	defer r.s.lock()()
	p, ok := r.s.st.payments[orderID]
	if !ok {
		return repository.ErrNotFound
	}
	for k, v := range fields {
		switch k {
		case "status":
			p.Status = v.(models.PaymentStatus)
		case "refunded_at":
			t := v.(time.Time)
			p.RefundedAt = &t
		}
	}
	r.s.st.payments[orderID] = p
	return nil
}

// --- Returns ---

type memReturns struct{ s *memStore }

func (r *memReturns) Create(_ context.Context, ret *models.Return) error {
	defer r.s.lock()()
	if ret.ID == uuid.Nil {
		ret.ID = uuid.New()
	}
	r.s.st.returns[ret.ID] = *ret
	return nil
}

func (r *memReturns) GetByID(_ context.Context, id uuid.UUID) (*models.Return, error) {
	defer r.s.lock()()
	ret, ok := r.s.st.returns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &ret, nil
}

func (r *memReturns) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Return, error) {
	return r.GetByID(ctx, id)
}

func (r *memReturns) FindOpenByOrder(_ context.Context, orderID uuid.UUID) (*models.Return, error) {
	defer r.s.lock()()
	for _, ret := range r.s.st.returns {
		if ret.OrderID == orderID && ret.Status != models.ReturnStatusRejected {
			return &ret, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memReturns) List(_ context.Context, status models.ReturnStatus, _ models.Page) ([]models.Return, int64, error) {
	defer r.s.lock()()
	var out []models.Return
	for _, ret := range r.s.st.returns {
		if status == "" || ret.Status == status {
			out = append(out, ret)
		}
	}
	return out, int64(len(out)), nil
}

func (r *memReturns) Update(_ context.Context, id uuid.UUID, fields map[string]interface{}) error {
	defer r.s.lock()()
	ret, ok := r.s.st.returns[id]
	if !ok {
		return repository.ErrNotFound
	}
	for k, v := range fields {
		switch k {
		case "status":
			ret.Status = v.(models.ReturnStatus)
		case "refund_amount":
			amount := v.(float64)
			ret.RefundAmount = &amount
		case "restocked":
			ret.Restocked = v.(bool)
		case "resolved_at":
			t := v.(time.Time)
			ret.ResolvedAt = &t
		}
	}
	r.s.st.returns[id] = ret
	return nil
}

// --- Addresses ---

type memAddresses struct{ s *memStore }

func (r *memAddresses) Create(_ context.Context, a *models.Address) error {
	defer r.s.lock()()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	r.s.st.addresses[a.ID] = *a
	return nil
}

func (r *memAddresses) GetByID(_ context.Context, id uuid.UUID) (*models.Address, error) {
	defer r.s.lock()()
	a, ok := r.s.st.addresses[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

// --- Carts ---

type memCarts struct{ s *memStore }

func (r *memCarts) ListByUser(_ context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	defer r.s.lock()()
	var out []models.CartItem
	for k, v := range r.s.st.carts {
		if k.user == userID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID.String() < out[j].ProductID.String() })
	return out, nil
}

func (r *memCarts) Upsert(_ context.Context, item *models.CartItem) error {
	defer r.s.lock()()
	key := cartKey{item.UserID, item.ProductID}
	if existing, ok := r.s.st.carts[key]; ok {
		item.ID = existing.ID
	} else if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	r.s.st.carts[key] = *item
	return nil
}

func (r *memCarts) Remove(_ context.Context, userID, productID uuid.UUID) (int64, error) {
	defer r.s.lock()()
	key := cartKey{userID, productID}
	if _, ok := r.s.st.carts[key]; !ok {
		return 0, nil
	}
	delete(r.s.st.carts, key)
	return 1, nil
}

func (r *memCarts) Clear(_ context.Context, userID uuid.UUID) (int64, error) {
	defer r.s.lock()()
	var n int64
	for k := range r.s.st.carts {
		if k.user == userID {
			delete(r.s.st.carts, k)
			n++
		}
	}
	return n, nil
}

// --- Idempotency ---

type memIdempotency struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{values: map[string]string{}}
}

func (m *memIdempotency) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *memIdempotency) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}
