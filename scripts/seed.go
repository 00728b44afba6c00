// Seed script for loading demo memories into Mnemo's configured store.
// Memories are backdated so that `mnemo sweep` has something to forget.
// Run with: go run ./scripts/seed.go
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Harshitk-cp/mnemo/internal/config"
	"github.com/Harshitk-cp/mnemo/internal/domain"
	"github.com/Harshitk-cp/mnemo/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
)

const demoUser = "demo-user"

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	ms, closeStore, err := open(ctx)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer closeStore()

	now := time.Now().UTC()
	memories := []struct {
		class   domain.MemoryClass
		summary string
		topics  []string
		age     time.Duration
		refs    int
	}{
		{domain.MemoryClassDeep, "User founded a robotics startup called Lumen", []string{"startup", "lumen", "robotics"}, domain.Days(400), 0},
		{domain.MemoryClassDeep, "User's name is Ada", []string{"name"}, domain.Days(200), 4},
		{domain.MemoryClassShort, "User is planning a trip to Lisbon", []string{"trip", "lisbon", "travel"}, domain.Days(5), 1},
		{domain.MemoryClassShort, "User has a dentist appointment on Friday", []string{"dentist", "appointment"}, domain.Days(31), 0},
		{domain.MemoryClassRelationship, "User's sister Maya is a nurse", []string{"sister", "maya"}, domain.Days(60), 1},
		{domain.MemoryClassRelationship, "User's co-founder Sam handles sales", []string{"cofounder", "sam", "sales"}, domain.Days(60), 5},
	}

	expiring := 0
	policy := domain.DefaultRetentionPolicy()
	for _, m := range memories {
		at := now.Add(-m.age)
		mem := &domain.Memory{
			UserID:           demoUser,
			Class:            m.class,
			Summary:          m.summary,
			Topics:           m.topics,
			ImportanceScore:  0.7,
			CreatedAt:        at,
			UpdatedAt:        at,
			LastReferencedAt: at,
			ReferenceCount:   m.refs,
		}
		if err := ms.Create(ctx, mem); err != nil {
			log.Printf("Warning: Failed to create memory: %v", err)
			continue
		}
		if policy.Expired(mem, now) {
			expiring++
		}
		fmt.Printf("Created memory [%s]: %s\n", m.class, truncate(m.summary, 50))
	}

	fmt.Println("\n=== Seed Complete ===")
	fmt.Printf("%d of %d memories are past retention and will go on the next sweep.\n", expiring, len(memories))
	fmt.Println("\nTo recall memories:")
	fmt.Printf("curl -H 'X-User-ID: %s' 'http://localhost:%d/v1/memories/recall?query=startup'\n", demoUser, config.ServerPort())
	fmt.Println("\nTo run the sweep now:")
	fmt.Println("go run ./cmd/server sweep")
}

func open(ctx context.Context) (domain.MemoryStore, func(), error) {
	if config.StoreDriver() == "sqlite" {
		s, err := store.NewSQLiteStore(config.SQLitePath())
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}

	pool, err := pgxpool.New(ctx, config.DatabaseURL())
	if err != nil {
		return nil, nil, err
	}
	if err := store.MigratePostgres(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store.NewMemoryStore(pool), pool.Close, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
