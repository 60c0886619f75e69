package e2e

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/glizzus/mustard/internal/datalayer"
	"github.com/glizzus/mustard/internal/generator"
	"github.com/glizzus/mustard/internal/repository"
	"github.com/glizzus/mustard/internal/schedule"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var seedOnce sync.Once

// RandomSnowFlakeGenerator hands out owner ids in the range used by real
// platform accounts, so seeded owners never collide with test owners.
type RandomSnowFlakeGenerator struct {
	counter int64
}

func (g *RandomSnowFlakeGenerator) Next() (int64, error) {
	const min = 1e17
	atomic.CompareAndSwapInt64(&g.counter, 0, min)
	return atomic.AddInt64(&g.counter, 1), nil
}

var _ generator.Generator[int64] = (*RandomSnowFlakeGenerator)(nil)

// SeedGlobalNoise fills the shared database with unrelated owners once.
func SeedGlobalNoise(t *testing.T, store repository.Store) {
	t.Helper()
	seedOnce.Do(func() {
		ownerIDs := RandomSnowFlakeGenerator{}
		timerIDs := generator.UUIDV4Generator{}
		for i := range 100 {
			ownerID, _ := ownerIDs.Next()
			timerID, _ := timerIDs.Next()

			err := store.WithTx(t.Context(), ownerID, func(tx repository.Tx) error {
				var weekly schedule.WeeklySchedule
				weekly[i%schedule.DaysPerWeek] = []string{"20:00"}
				if err := tx.SetSchedule(t.Context(), "America/New_York", weekly); err != nil {
					return err
				}
				if _, err := tx.InsertSetup(t.Context(), repository.Setup{Category: "Art", Title: fmt.Sprintf("noise %d", i)}); err != nil {
					return err
				}
				return tx.InsertTimer(t.Context(), timerID, repository.TimerPatch{Title: repository.Ptr("noise")})
			})
			if err != nil {
				t.Fatalf("failed to seed owner %d: %v", ownerID, err)
			}
		}
	})
}

var (
	once              sync.Once
	postgresContainer *postgres.PostgresContainer
	connStr           string
	startErr          error
	pool              *pgxpool.Pool
	wg                sync.WaitGroup
)

// UsePostgres signals that the test is using Postgres as its database.
// This will either provision or reuse a Postgres container for the test.
// Do not expect a clean state in the database; it is shared across tests
// to simulate real-world usage.
func UsePostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres end-to-end test in short mode")
	}

	once.Do(func() {
		ctx := context.Background()
		postgresContainer, startErr = postgres.Run(
			ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("mustard"),
			postgres.WithUsername("user"),
			postgres.WithPassword("password"),
			postgres.BasicWaitStrategies(),
		)
		if startErr != nil {
			return
		}
		connStr, startErr = postgresContainer.ConnectionString(ctx, "sslmode=disable")
		if startErr != nil {
			return
		}

		pool, startErr = pgxpool.New(ctx, connStr)
		if startErr != nil {
			return
		}
		defer pool.Close()

		startErr = datalayer.MigratePostgres(pool)
	})

	if startErr != nil {
		t.Fatalf("failed to start postgres container: %v", startErr)
	}
	wg.Add(1)
	t.Cleanup(wg.Done)

	return connStr
}

// GetStore creates a new PostgresStore for testing.
// It uses the provided connection string to connect to the database.
// It performs no modifications or migrations on the database schema.
func GetStore(t *testing.T, connStr string) *repository.PostgresStore {
	t.Helper()
	pool, err := pgxpool.New(t.Context(), connStr)
	if err != nil {
		t.Fatalf("failed to create postgres pool: %v", err)
	}

	t.Cleanup(pool.Close)
	return repository.NewPostgresStore(pool)
}

func TerminatePostgresForE2E() {
	wg.Wait()
	if postgresContainer != nil {
		err := postgresContainer.Terminate(context.Background())
		if err != nil {
			fmt.Printf("failed to terminate postgres container: %v", err)
		}
	}
}
