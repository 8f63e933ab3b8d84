package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/amasampo/pkg/order"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

var (
	ErrCheckoutNotFound      = errors.New("checkout not found")
	ErrDuplicateCheckout     = errors.New("checkout with this idempotency key already exists")
	ErrPaymentMethodNotFound = errors.New("payment method not found")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// OutboxEvent is an event written in the same transaction as its checkout,
// waiting to be published.
type OutboxEvent struct {
	ID          string
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

type RepoInterface interface {
	Close() error
	RunMigrations(*Credentials) error

	// GetCheckoutByIdempotencyKey returns ErrCheckoutNotFound when the user
	// never used the key.
	GetCheckoutByIdempotencyKey(ctx context.Context, userID, key string) (*order.Snapshot, error)
	// CreateCheckout stores the snapshot and its order.placed outbox event
	// atomically. A reused idempotency key yields ErrDuplicateCheckout.
	CreateCheckout(ctx context.Context, snap *order.Snapshot, idempotencyKey string) error

	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id string) error
	DeleteProcessedEvents(ctx context.Context, before time.Time) (int64, error)

	ListPaymentMethods(ctx context.Context, userID string) ([]order.PaymentMethod, error)
	GetPaymentMethod(ctx context.Context, userID, id string) (*order.PaymentMethod, error)
	CreatePaymentMethod(ctx context.Context, userID string, pm order.PaymentMethod) error
}

type Repository struct {
	db *sql.DB
}

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
		MigrationsTable: "checkout_schema_migrations",
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

func (r *Repository) Close() error {
	return r.db.Close()
}
