package stock_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/manucarbs/marketplace-backend/internal/stock"
	"github.com/manucarbs/marketplace-backend/internal/testdb"
)

type stockRepoSuite struct {
	suite.Suite

	pool      *pgxpool.Pool
	repo      *stock.Repo
	container testcontainers.Container
}

func TestStockRepoSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("github.com/testcontainers/testcontainers-go.(*Reaper).connect.func1"))

	suite.Run(t, new(stockRepoSuite))
}

func (s *stockRepoSuite) SetupSuite() {
	ctx := context.Background()

	var (
		connStr string
		err     error
	)
	s.container, connStr, err = testdb.StartPostgres(ctx)
	s.Require().NoError(err)

	s.pool, err = pgxpool.New(ctx, connStr)
	s.Require().NoError(err)

	s.repo = &stock.Repo{DB: s.pool}
}

func (s *stockRepoSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.container != nil {
		s.NoError(s.container.Terminate(context.Background()))
	}
}

func (s *stockRepoSuite) insertProduct(stockQty int) uuid.UUID {
	id := uuid.New()
	_, err := s.pool.Exec(context.Background(), `
		INSERT INTO products(id, title, seller_id, price_amount, price_currency, stock)
		VALUES ($1,$2,$3,$4,'USD',$5)`,
		id, gofakeit.ProductName(), "seller-"+gofakeit.LetterN(6), "10.00", stockQty)
	s.Require().NoError(err)
	return id
}

// insertOrder satisfies the stock_commits foreign key.
func (s *stockRepoSuite) insertOrder() string {
	number := fmt.Sprintf("ORD-20260830-%06X", gofakeit.Number(0, 0xFFFFFF))
	_, err := s.pool.Exec(context.Background(), `
		INSERT INTO orders(id, order_number, buyer_id, address, city, phone, total_amount, total_currency, status)
		VALUES ($1,$2,$3,'a','b','c','10.00','USD','PENDING')`,
		uuid.New(), number, gofakeit.UUID())
	s.Require().NoError(err)
	return number
}

func (s *stockRepoSuite) available(productID uuid.UUID) int {
	var n int
	err := s.pool.QueryRow(context.Background(), `SELECT stock FROM products WHERE id=$1`, productID).Scan(&n)
	s.Require().NoError(err)
	return n
}

func (s *stockRepoSuite) TestCommitAndRestoreIdempotent() {
	t := s.T()
	ctx := context.Background()

	p := s.insertProduct(10)
	order := s.insertOrder()
	items := []stock.Item{{ProductID: p, Quantity: 4}}

	require.NoError(t, s.repo.CommitDecrement(ctx, order, items))
	assert.Equal(t, 6, s.available(p))

	// replaying the same order must not decrement twice
	require.NoError(t, s.repo.CommitDecrement(ctx, order, items))
	assert.Equal(t, 6, s.available(p))

	require.NoError(t, s.repo.Restore(ctx, order, items))
	assert.Equal(t, 10, s.available(p))

	// double restore must not inflate stock
	require.NoError(t, s.repo.Restore(ctx, order, items))
	assert.Equal(t, 10, s.available(p))

	// a commit after restore decrements again
	require.NoError(t, s.repo.CommitDecrement(ctx, order, items))
	assert.Equal(t, 6, s.available(p))
}

func (s *stockRepoSuite) TestRestoreWithoutCommitIsNoop() {
	t := s.T()
	ctx := context.Background()

	p := s.insertProduct(10)
	order := s.insertOrder()

	require.NoError(t, s.repo.Restore(ctx, order, []stock.Item{{ProductID: p, Quantity: 4}}))
	assert.Equal(t, 10, s.available(p))
}

func (s *stockRepoSuite) TestBatchAtomicity() {
	t := s.T()
	ctx := context.Background()

	pOK := s.insertProduct(5)
	pShort := s.insertProduct(1)
	order := s.insertOrder()

	err := s.repo.CommitDecrement(ctx, order, []stock.Item{
		{ProductID: pOK, Quantity: 2},
		{ProductID: pShort, Quantity: 2},
	})

	var ise *stock.InsufficientError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, pShort, ise.ProductID)
	assert.Equal(t, 1, ise.Available)
	assert.Equal(t, 2, ise.Requested)

	assert.Equal(t, 5, s.available(pOK), "nothing of a failed batch is applied")
	assert.Equal(t, 1, s.available(pShort))
}

func (s *stockRepoSuite) TestCheckAvailability() {
	t := s.T()
	ctx := context.Background()

	p := s.insertProduct(3)

	require.NoError(t, s.repo.CheckAvailability(ctx, []stock.Item{{ProductID: p, Quantity: 3}}))

	var ise *stock.InsufficientError
	err := s.repo.CheckAvailability(ctx, []stock.Item{{ProductID: p, Quantity: 4}})
	require.ErrorAs(t, err, &ise)

	err = s.repo.CheckAvailability(ctx, []stock.Item{{ProductID: uuid.New(), Quantity: 1}})
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, 0, ise.Available)
}

func (s *stockRepoSuite) TestNoOversellUnderConcurrency() {
	t := s.T()
	ctx := context.Background()

	const units = 3
	const buyers = 10

	p := s.insertProduct(units)
	numbers := make([]string, buyers)
	for i := range numbers {
		numbers[i] = s.insertOrder()
	}

	var committed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < buyers; i++ {
		order := numbers[i]
		g.Go(func() error {
			err := s.repo.CommitDecrement(gctx, order, []stock.Item{{ProductID: p, Quantity: 1}})
			if err == nil {
				committed.Add(1)
				return nil
			}
			var ise *stock.InsufficientError
			if !assert.ErrorAs(t, err, &ise) {
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(units), committed.Load(), "exactly as many commits as units of stock")
	assert.Equal(t, 0, s.available(p))
}

func (s *stockRepoSuite) TestConcurrentCommitsOfSameOrderDecrementOnce() {
	t := s.T()
	ctx := context.Background()

	const workers = 8

	p := s.insertProduct(10)
	order := s.insertOrder()
	items := []stock.Item{{ProductID: p, Quantity: 2}}

	// Racing confirms of one order must collapse into a single decrement,
	// including the very first commit when no stock_commits row exists yet.
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			return s.repo.CommitDecrement(gctx, order, items)
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 8, s.available(p))
}
