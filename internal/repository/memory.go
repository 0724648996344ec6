package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"festival-stall/internal/domain"
)

// Memory is an in-process Store. Transactions hold one store-wide lock and
// roll back by restoring a snapshot taken when they began.
type Memory struct {
	mu sync.Mutex

	nextID          int64
	products        map[int64]domain.Product
	toppings        map[int64]domain.Topping
	productToppings map[int64]map[int64]bool
	orders          map[int64]domain.Order
	orderNumbers    map[string]int64
	statusLog       []domain.StatusLogEntry
	stockLog        []domain.StockLogEntry
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		nextID:          1,
		products:        make(map[int64]domain.Product),
		toppings:        make(map[int64]domain.Topping),
		productToppings: make(map[int64]map[int64]bool),
		orders:          make(map[int64]domain.Order),
		orderNumbers:    make(map[string]int64),
	}
}

type memTxKey struct{}

func inTx(ctx context.Context) bool {
	b, _ := ctx.Value(memTxKey{}).(bool)
	return b
}

func (m *Memory) lock(ctx context.Context) {
	if !inTx(ctx) {
		m.mu.Lock()
	}
}

func (m *Memory) unlock(ctx context.Context) {
	if !inTx(ctx) {
		m.mu.Unlock()
	}
}

type memSnapshot struct {
	nextID       int64
	products     map[int64]domain.Product
	orders       map[int64]domain.Order
	orderNumbers map[string]int64
	statusLen    int
	stockLen     int
}

func (m *Memory) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := memSnapshot{
		nextID:       m.nextID,
		products:     copyMap(m.products),
		orders:       copyMap(m.orders),
		orderNumbers: copyMap(m.orderNumbers),
		statusLen:    len(m.statusLog),
		stockLen:     len(m.stockLog),
	}
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		m.nextID = snap.nextID
		m.products = snap.products
		m.orders = snap.orders
		m.orderNumbers = snap.orderNumbers
		m.statusLog = m.statusLog[:snap.statusLen]
		m.stockLog = m.stockLog[:snap.stockLen]
		return err
	}
	return nil
}

func (m *Memory) id() int64 {
	id := m.nextID
	m.nextID++
	return id
}

// AddProduct seeds a product and returns it with its assigned id.
func (m *Memory) AddProduct(p domain.Product) domain.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.id()
	if p.Status == "" {
		p.Status = domain.ProductActive
	}
	p.UpdatedAt = time.Now().UTC()
	m.products[p.ID] = p
	return p
}

// AddTopping seeds a topping valid for the given products.
func (m *Memory) AddTopping(t domain.Topping, productIDs ...int64) domain.Topping {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.id()
	m.toppings[t.ID] = t
	for _, pid := range productIDs {
		if m.productToppings[pid] == nil {
			m.productToppings[pid] = make(map[int64]bool)
		}
		m.productToppings[pid][t.ID] = true
	}
	return t
}

func (m *Memory) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	m.lock(ctx)
	defer m.unlock(ctx)
	p, ok := m.products[id]
	if !ok {
		return nil, domain.NotFound("product", id)
	}
	return &p, nil
}

// LockProduct is GetProduct: the transaction already holds the store lock.
func (m *Memory) LockProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return m.GetProduct(ctx, id)
}

func (m *Memory) SaveStock(ctx context.Context, id int64, quantity int, status domain.ProductStatus) error {
	m.lock(ctx)
	defer m.unlock(ctx)
	p, ok := m.products[id]
	if !ok {
		return domain.NotFound("product", id)
	}
	p.StockQuantity, p.Status, p.UpdatedAt = quantity, status, time.Now().UTC()
	m.products[id] = p
	return nil
}

func (m *Memory) ActiveToppings(ctx context.Context, productID int64, ids []int64) ([]domain.Topping, error) {
	m.lock(ctx)
	defer m.unlock(ctx)
	var out []domain.Topping
	for _, id := range ids {
		t, ok := m.toppings[id]
		if ok && t.IsActive && m.productToppings[productID][id] {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) InsertOrder(ctx context.Context, o *domain.Order) error {
	m.lock(ctx)
	defer m.unlock(ctx)
	if _, taken := m.orderNumbers[o.OrderNumber]; taken {
		return domain.ErrConflict
	}
	o.ID = m.id()
	for i := range o.Items {
		o.Items[i].ID = m.id()
		o.Items[i].OrderID = o.ID
	}
	m.orders[o.ID] = cloneOrder(*o)
	m.orderNumbers[o.OrderNumber] = o.ID
	return nil
}

func (m *Memory) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	m.lock(ctx)
	defer m.unlock(ctx)
	o, ok := m.orders[id]
	if !ok {
		return nil, domain.NotFound("order", id)
	}
	cp := cloneOrder(o)
	return &cp, nil
}

func (m *Memory) LockOrder(ctx context.Context, id int64) (*domain.Order, error) {
	return m.GetOrder(ctx, id)
}

func (m *Memory) SaveStatus(ctx context.Context, o *domain.Order) error {
	m.lock(ctx)
	defer m.unlock(ctx)
	if _, ok := m.orders[o.ID]; !ok {
		return domain.NotFound("order", o.ID)
	}
	m.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (m *Memory) ListOrders(ctx context.Context, f OrderFilter) ([]domain.Order, error) {
	m.lock(ctx)
	defer m.unlock(ctx)
	want := make(map[domain.OrderStatus]bool, len(f.Statuses))
	for _, s := range f.Statuses {
		want[s] = true
	}
	out := make([]domain.Order, 0)
	for _, o := range m.orders {
		if len(want) == 0 || want[o.Status] {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit := clampLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) AppendStatusLog(ctx context.Context, e *domain.StatusLogEntry) error {
	m.lock(ctx)
	defer m.unlock(ctx)
	e.ID = m.id()
	m.statusLog = append(m.statusLog, *e)
	return nil
}

func (m *Memory) Timeline(ctx context.Context, orderID int64, limit, offset int) ([]domain.StatusLogEntry, error) {
	m.lock(ctx)
	defer m.unlock(ctx)
	var all []domain.StatusLogEntry
	for _, e := range m.statusLog {
		if e.OrderID == orderID {
			all = append(all, e)
		}
	}
	return page(all, clampLimit(limit), offset), nil
}

func (m *Memory) AppendStockLog(ctx context.Context, e *domain.StockLogEntry) error {
	m.lock(ctx)
	defer m.unlock(ctx)
	e.ID = m.id()
	m.stockLog = append(m.stockLog, *e)
	return nil
}

func (m *Memory) StockLogs(ctx context.Context, productID int64, limit int) ([]domain.StockLogEntry, error) {
	m.lock(ctx)
	defer m.unlock(ctx)
	var out []domain.StockLogEntry
	for i := len(m.stockLog) - 1; i >= 0 && len(out) < clampLimit(limit); i-- {
		if m.stockLog[i].ProductID == productID {
			out = append(out, m.stockLog[i])
		}
	}
	return out, nil
}

func page[T any](all []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all
}

func cloneOrder(o domain.Order) domain.Order {
	items := make([]domain.OrderItem, len(o.Items))
	for i, it := range o.Items {
		it.Toppings = append([]domain.ToppingSnapshot(nil), it.Toppings...)
		items[i] = it
	}
	o.Items = items
	return o
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
