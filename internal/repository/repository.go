package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

var ErrDuplicateIdempotencyKey = errors.New("order for this idempotency key already exists")

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// CatalogRepository is the read side of the product catalog plus the writes
// needed to seed it.
type CatalogRepository interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetProducts(ctx context.Context, ids []int64) (map[int64]*domain.Product, error)
	UpsertProduct(ctx context.Context, product *domain.Product) error
	SetPrice(ctx context.Context, productID int64, price *decimal.Decimal) error
}

type CartRepository interface {
	GetOrCreateCart(ctx context.Context, sessionID string) (*domain.Cart, error)
	GetCartBySession(ctx context.Context, sessionID string) (*domain.Cart, error)
	SetItemQuantity(ctx context.Context, cartID, productID int64, quantity int) error
	DeleteItem(ctx context.Context, cartID, productID int64) error
	ClearCart(ctx context.Context, cartID int64) error
}

type OrderRepository interface {
	// CreateOrderFromCart converts the cart into an order in a single
	// transaction: price snapshot, stock decrement, cart clear.
	CreateOrderFromCart(ctx context.Context, cartID int64, customer domain.CustomerData, idempotencyKey string) (*domain.Order, error)
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, sessionID, key string) (*domain.Order, error)
}

type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment *domain.Payment) error
	RecordPaymentAttempt(ctx context.Context, paymentID int64, attempt domain.PaymentAttempt) (*domain.Payment, error)
	// SettlePayment applies an authoritative outcome to the payment and its
	// order. changed is false when the transition rules left both untouched.
	SettlePayment(ctx context.Context, paymentID int64, settlement domain.Settlement) (payment *domain.Payment, changed bool, err error)
	GetPayment(ctx context.Context, orderID int64, transactionID string) (*domain.Payment, error)
	GetPaymentByTransaction(ctx context.Context, provider domain.Provider, transactionID string) (*domain.Payment, error)
	GetLatestPayment(ctx context.Context, orderID int64) (*domain.Payment, error)
}

type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

// Store is everything the storefront persists.
type Store interface {
	CatalogRepository
	CartRepository
	OrderRepository
	PaymentRepository
	OutboxRepository
	Ping(ctx context.Context) error
	Close() error
}

type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     json.RawMessage
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

type Repository struct {
	db *sql.DB
}

var _ Store = (*Repository)(nil)

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "storefront_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// withTx runs fn inside a transaction that is rolled back unless fn succeeds.
func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
