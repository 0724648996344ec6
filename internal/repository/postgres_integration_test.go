//go:build integration

package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"festival-stall/internal/connections/database"
	"festival-stall/internal/domain"
	"festival-stall/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupStore(t *testing.T) (*repository.Postgres, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("stall"),
		postgres.WithUsername("stall"),
		postgres.WithPassword("stall"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, database.Migrate(ctx, pool))
	return repository.NewPostgres(pool, 2*time.Second), pool
}

func seedProduct(t *testing.T, pool *pgxpool.Pool, stock int) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(), `
		INSERT INTO products (name, price, cooking_time, stock_quantity, low_stock_threshold, auto_disable_on_zero)
		VALUES ('Karaage', 650.00, 8, $1, 2, TRUE) RETURNING id
	`, stock).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestPostgresLastUnitIsSoldOnce(t *testing.T) {
	store, pool := setupStore(t)
	ctx := context.Background()
	id := seedProduct(t, pool, 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.WithTransaction(ctx, func(ctx context.Context) error {
				p, err := store.LockProduct(ctx, id)
				if err != nil {
					return err
				}
				if p.StockQuantity < 1 {
					return &domain.ProductError{Err: domain.ErrInsufficientStock, ProductID: id, Requested: 1}
				}
				// widen the race window
				time.Sleep(50 * time.Millisecond)
				return store.SaveStock(ctx, id, p.StockQuantity-1, domain.ProductOutOfStock)
			})
		}(i)
	}
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, domain.ErrInsufficientStock):
			short++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)

	p, err := store.GetProduct(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, p.StockQuantity)
	assert.Equal(t, domain.ProductOutOfStock, p.Status)
}

func TestPostgresOrderRoundTrip(t *testing.T) {
	store, pool := setupStore(t)
	ctx := context.Background()
	pid := seedProduct(t, pool, 5)
	now := time.Now().UTC().Truncate(time.Microsecond)

	o := &domain.Order{
		OrderNumber:       "ORD_20260801_180000_0001",
		TotalAmount:       decimal.RequireFromString("1300.00"),
		Status:            domain.StatusReceived,
		PaymentStatus:     domain.PaymentUnpaid,
		PaymentMethod:     domain.PaymentCash,
		EstimatedPickupAt: now.Add(8 * time.Minute),
		CreatedAt:         now,
		UpdatedAt:         now,
		Items: []domain.OrderItem{{
			ProductID: pid, ProductName: "Karaage", ProductPrice: decimal.NewFromInt(600), Quantity: 2,
			Toppings:  []domain.ToppingSnapshot{{ToppingID: 1, Name: "lemon", Price: decimal.NewFromInt(50)}},
			UnitPrice: decimal.NewFromInt(650), LineTotal: decimal.NewFromInt(1300),
		}},
	}
	require.NoError(t, store.WithTransaction(ctx, func(ctx context.Context) error {
		return store.InsertOrder(ctx, o)
	}))
	require.NotZero(t, o.ID)

	dup := *o
	dup.Items = nil
	assert.ErrorIs(t, store.InsertOrder(ctx, &dup), domain.ErrConflict)

	got, err := store.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, o.TotalAmount.Equal(got.TotalAmount))
	require.Len(t, got.Items, 1)
	assert.Equal(t, "lemon", got.Items[0].Toppings[0].Name)
	assert.True(t, got.Items[0].LineTotal.Equal(decimal.NewFromInt(1300)))

	require.NoError(t, got.Apply(domain.StatusChange{Status: domain.StatusCooking}, now.Add(time.Minute)))
	require.NoError(t, store.SaveStatus(ctx, got))
	require.NoError(t, store.AppendStatusLog(ctx, &domain.StatusLogEntry{
		OrderID: got.ID, Status: got.Status, PaymentStatus: got.PaymentStatus, ChangedBy: "kitchen", ChangedAt: now,
	}))

	listed, err := store.ListOrders(ctx, repository.OrderFilter{Statuses: []domain.OrderStatus{domain.StatusCooking}})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.NotNil(t, listed[0].CookingStartedAt)

	tl, err := store.Timeline(ctx, got.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, tl, 1)
}

func TestPostgresAcquireTimeoutIsInfrastructure(t *testing.T) {
	_, pool := setupStore(t)
	ctx := context.Background()

	cfg := pool.Config()
	cfg.MaxConns = 1
	small, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	defer small.Close()

	held, err := small.Acquire(ctx)
	require.NoError(t, err)
	defer held.Release()

	store := repository.NewPostgres(small, 100*time.Millisecond)
	err = store.WithTransaction(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, domain.ErrInfrastructure)
}
