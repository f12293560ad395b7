package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/shopspring/decimal"
)

// MemoryStore implements Store in process memory. Every operation holds the
// store lock for its whole duration, which gives the same atomicity the
// Postgres transactions provide.
type MemoryStore struct {
	mu sync.RWMutex

	products map[int64]*domain.Product
	carts    map[string]*domain.Cart // sessionID -> cart
	cartIDs  map[int64]string        // cartID -> sessionID
	orders   map[int64]*domain.Order
	payments map[int64]*domain.Payment
	outbox   []*OutboxEvent

	nextProductID int64
	nextCartID    int64
	nextOrderID   int64
	nextItemID    int64
	nextPaymentID int64
	nextEventID   int64
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[int64]*domain.Product),
		carts:    make(map[string]*domain.Cart),
		cartIDs:  make(map[int64]string),
		orders:   make(map[int64]*domain.Order),
		payments: make(map[int64]*domain.Payment),
	}
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// --- catalog ---

func (s *MemoryStore) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return copyProduct(p), nil
}

func (s *MemoryStore) GetProducts(_ context.Context, ids []int64) (map[int64]*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[int64]*domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = copyProduct(p)
		}
	}
	return result, nil
}

func (s *MemoryStore) UpsertProduct(_ context.Context, product *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == 0 {
		s.nextProductID++
		product.ID = s.nextProductID
	} else if product.ID > s.nextProductID {
		s.nextProductID = product.ID
	}
	if product.Currency == "" {
		product.Currency = domain.DefaultCurrency
	}
	if existing, ok := s.products[product.ID]; ok {
		product.CreatedAt = existing.CreatedAt
	} else if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now()
	}
	s.products[product.ID] = copyProduct(product)
	return nil
}

func (s *MemoryStore) SetPrice(_ context.Context, productID int64, price *decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if price == nil {
		p.Price = nil
		return nil
	}
	v := *price
	p.Price = &v
	return nil
}

// SetStock sets the stock level for a product.
func (s *MemoryStore) SetStock(productID int64, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	p.Stock = quantity
	return nil
}

// --- carts ---

func (s *MemoryStore) GetOrCreateCart(_ context.Context, sessionID string) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[sessionID]
	if !ok {
		s.nextCartID++
		now := time.Now()
		cart = &domain.Cart{ID: s.nextCartID, SessionID: sessionID, CreatedAt: now, UpdatedAt: now}
		s.carts[sessionID] = cart
		s.cartIDs[cart.ID] = sessionID
	}
	return copyCart(cart), nil
}

func (s *MemoryStore) GetCartBySession(_ context.Context, sessionID string) (*domain.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, ok := s.carts[sessionID]
	if !ok {
		return nil, domain.ErrCartNotFound
	}
	return copyCart(cart), nil
}

func (s *MemoryStore) cartByID(cartID int64) (*domain.Cart, bool) {
	sessionID, ok := s.cartIDs[cartID]
	if !ok {
		return nil, false
	}
	return s.carts[sessionID], true
}

func (s *MemoryStore) SetItemQuantity(_ context.Context, cartID, productID int64, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.cartByID(cartID)
	if !ok {
		return domain.ErrCartNotFound
	}
	if _, ok := s.products[productID]; !ok {
		return domain.ErrProductNotFound
	}
	cart.UpdatedAt = time.Now()
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			cart.Items[i].Quantity = quantity
			return nil
		}
	}
	cart.Items = append(cart.Items, domain.CartItem{ProductID: productID, Quantity: quantity, AddedAt: cart.UpdatedAt})
	return nil
}

func (s *MemoryStore) DeleteItem(_ context.Context, cartID, productID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.cartByID(cartID)
	if !ok {
		return domain.ErrCartNotFound
	}
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
			cart.UpdatedAt = time.Now()
			return nil
		}
	}
	return domain.ErrItemNotFound
}

func (s *MemoryStore) ClearCart(_ context.Context, cartID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cart, ok := s.cartByID(cartID); ok {
		cart.Items = nil
		cart.UpdatedAt = time.Now()
	}
	return nil
}

// --- orders ---

func (s *MemoryStore) CreateOrderFromCart(
	_ context.Context,
	cartID int64,
	customer domain.CustomerData,
	idempotencyKey string) (*domain.Order, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.cartByID(cartID)
	if !ok || len(cart.Items) == 0 {
		return nil, domain.ErrEmptyCart
	}
	if idempotencyKey != "" {
		if _, exists := s.findOrderByKey(cart.SessionID, idempotencyKey); exists {
			return nil, ErrDuplicateIdempotencyKey
		}
	}

	// First pass: validate every line and snapshot prices
	lines := make([]orderLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		p, exists := s.products[item.ProductID]
		if !exists {
			return nil, domain.ErrProductNotFound
		}
		line := orderLine{productID: p.ID, name: p.Name, quantity: item.Quantity, stock: p.Stock}
		if p.Price != nil {
			line.price = decimal.NewNullDecimal(*p.Price)
		}
		lines = append(lines, line)
	}
	order, err := buildOrder(lines, customer, idempotencyKey)
	if err != nil {
		return nil, err
	}
	order.SessionID = cart.SessionID

	// Second pass: apply
	number := newOrderNumber()
	for attempt := 1; s.orderNumberTaken(number) && attempt < orderNumberAttempts; attempt++ {
		number = newOrderNumber()
	}
	if s.orderNumberTaken(number) {
		return nil, errors.New("could not allocate a unique order number")
	}

	s.nextOrderID++
	now := time.Now()
	order.ID = s.nextOrderID
	order.OrderNumber = number
	order.CreatedAt = now
	order.UpdatedAt = now
	for i := range order.Items {
		s.nextItemID++
		order.Items[i].ID = s.nextItemID
		order.Items[i].OrderID = order.ID
		s.products[order.Items[i].ProductID].Stock -= order.Items[i].Quantity
	}
	s.orders[order.ID] = order
	cart.Items = nil
	cart.UpdatedAt = now

	s.appendEvent(order.OrderNumber, EventOrderCreated, orderEventPayload(order))
	return copyOrder(order), nil
}

func (s *MemoryStore) orderNumberTaken(number string) bool {
	for _, o := range s.orders {
		if o.OrderNumber == number {
			return true
		}
	}
	return false
}

func (s *MemoryStore) findOrderByKey(sessionID, key string) (*domain.Order, bool) {
	for _, o := range s.orders {
		if o.SessionID == sessionID && o.IdempotencyKey == key {
			return o, true
		}
	}
	return nil, false
}

func (s *MemoryStore) GetOrder(_ context.Context, id int64) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (s *MemoryStore) GetOrderByNumber(_ context.Context, orderNumber string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, o := range s.orders {
		if o.OrderNumber == orderNumber {
			return copyOrder(o), nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

func (s *MemoryStore) GetOrderByIdempotencyKey(_ context.Context, sessionID, key string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sessionID == "" || key == "" {
		return nil, domain.ErrOrderNotFound
	}
	o, ok := s.findOrderByKey(sessionID, key)
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

// --- payments ---

func (s *MemoryStore) CreatePayment(_ context.Context, payment *domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[payment.OrderID]; !ok {
		return domain.ErrOrderNotFound
	}
	if payment.Status == "" {
		payment.Status = domain.PaymentStatusPending
	}
	s.nextPaymentID++
	now := time.Now()
	payment.ID = s.nextPaymentID
	payment.CreatedAt = now
	payment.UpdatedAt = now
	s.payments[payment.ID] = copyPayment(payment)
	return nil
}

func (s *MemoryStore) RecordPaymentAttempt(_ context.Context, paymentID int64, attempt domain.PaymentAttempt) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, _, err := s.applyPaymentUpdate(paymentID, paymentUpdate{
		transactionID: attempt.TransactionID,
		status:        attempt.Status,
		orderStatus:   attempt.OrderStatus,
		response:      attempt.ProviderResponse,
	})
	return p, err
}

func (s *MemoryStore) SettlePayment(_ context.Context, paymentID int64, settlement domain.Settlement) (*domain.Payment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.applyPaymentUpdate(paymentID, paymentUpdate{
		status:      settlement.Status,
		orderStatus: settlement.Status.OrderStatus(),
		response:    settlement.ProviderResponse,
	})
}

func (s *MemoryStore) applyPaymentUpdate(paymentID int64, u paymentUpdate) (*domain.Payment, bool, error) {
	payment, ok := s.payments[paymentID]
	if !ok {
		return nil, false, domain.ErrPaymentNotFound
	}
	order, ok := s.orders[payment.OrderID]
	if !ok {
		return nil, false, domain.ErrOrderNotFound
	}

	latest := true
	for _, p := range s.payments {
		if p.OrderID == payment.OrderID && p.ID > payment.ID {
			latest = false
			break
		}
	}

	paymentMoves := payment.Status != u.status && payment.Status.CanTransitionTo(u.status)
	orderMoves := paymentMoves && drivesOrder(latest, u.status) &&
		order.Status != u.orderStatus && order.Status.CanTransitionTo(u.orderStatus)
	now := time.Now()

	if paymentMoves {
		payment.Status = u.status
		if u.transactionID != "" {
			payment.TransactionID = u.transactionID
		}
		if len(u.response) > 0 {
			payment.ProviderResponse = append(json.RawMessage(nil), u.response...)
		}
		payment.UpdatedAt = now
	}
	if orderMoves {
		order.Status = u.orderStatus
		order.UpdatedAt = now
	}
	if !paymentMoves && !orderMoves {
		return copyPayment(payment), false, nil
	}

	s.appendEvent(order.OrderNumber, paymentEventType(payment.Status), paymentEventPayload(payment, order.OrderNumber, order.Status))
	return copyPayment(payment), true, nil
}

func (s *MemoryStore) findPayment(match func(p *domain.Payment) bool) (*domain.Payment, error) {
	var found *domain.Payment
	for _, p := range s.payments {
		if match(p) && (found == nil || p.ID > found.ID) {
			found = p
		}
	}
	if found == nil {
		return nil, domain.ErrPaymentNotFound
	}
	return copyPayment(found), nil
}

func (s *MemoryStore) GetPayment(_ context.Context, orderID int64, transactionID string) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.findPayment(func(p *domain.Payment) bool {
		return p.OrderID == orderID && p.TransactionID != "" && p.TransactionID == transactionID
	})
}

func (s *MemoryStore) GetPaymentByTransaction(_ context.Context, provider domain.Provider, transactionID string) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.findPayment(func(p *domain.Payment) bool {
		return p.Provider == provider && p.TransactionID != "" && p.TransactionID == transactionID
	})
}

func (s *MemoryStore) GetLatestPayment(_ context.Context, orderID int64) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.findPayment(func(p *domain.Payment) bool { return p.OrderID == orderID })
}

// --- outbox ---

func (s *MemoryStore) appendEvent(aggregateID, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(`{}`)
	}
	s.nextEventID++
	s.outbox = append(s.outbox, &OutboxEvent{
		ID:          s.nextEventID,
		AggregateID: aggregateID,
		EventType:   eventType,
		Payload:     data,
		CreatedAt:   time.Now(),
	})
}

func (s *MemoryStore) GetUnprocessedEvents(_ context.Context, limit int) ([]*OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []*OutboxEvent
	for _, e := range s.outbox {
		if e.ProcessedAt != nil {
			continue
		}
		ev := *e
		events = append(events, &ev)
		if len(events) == limit {
			break
		}
	}
	return events, nil
}

func (s *MemoryStore) MarkEventAsProcessed(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.outbox {
		if e.ID == id {
			now := time.Now()
			e.ProcessedAt = &now
			return nil
		}
	}
	return nil
}

// Events returns every outbox event recorded so far, oldest first.
func (s *MemoryStore) Events() []OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]OutboxEvent, 0, len(s.outbox))
	for _, e := range s.outbox {
		events = append(events, *e)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	return events
}

// --- copies keep callers from mutating store state ---

func copyProduct(p *domain.Product) *domain.Product {
	c := *p
	if p.Price != nil {
		v := *p.Price
		c.Price = &v
	}
	return &c
}

func copyCart(cart *domain.Cart) *domain.Cart {
	c := *cart
	c.Items = append([]domain.CartItem(nil), cart.Items...)
	return &c
}

func copyOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = append([]domain.OrderItem(nil), o.Items...)
	return &c
}

func copyPayment(p *domain.Payment) *domain.Payment {
	c := *p
	c.ProviderResponse = append(json.RawMessage(nil), p.ProviderResponse...)
	return &c
}
