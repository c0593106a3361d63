//go:build ignore

// Сброс схемы и заполнение тестовыми объявлениями.
// Запуск: DATABASE_URL=postgres://... go run scripts/reset_db.go [-migrations ./migrations]

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

func main() {
	migrationsDir := flag.String("migrations", "migrations", "directory with goose migrations")
	flag.Parse()

	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		log.Fatal("DATABASE_URL is required")
	}

	fmt.Println("Connecting to database...")
	fmt.Printf("Host: %s\n", extractHost(connStr))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close(ctx)

	fmt.Println("Connected successfully!")

	// ЧАСТЬ 1: ОЧИСТКА
	for _, cmd := range []string{
		"DROP TABLE IF EXISTS listing_embeddings CASCADE",
		"DROP TABLE IF EXISTS listings CASCADE",
		"DROP TABLE IF EXISTS goose_db_version CASCADE",
	} {
		if _, err := conn.Exec(ctx, cmd); err != nil {
			log.Fatalf("Failed to execute %q: %v", cmd, err)
		}
	}

	// ЧАСТЬ 2: МИГРАЦИИ
	versions, err := applyMigrations(ctx, conn, *migrationsDir)
	if err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	// goose должен считать применённые миграции уже выполненными
	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS goose_db_version (
			id SERIAL PRIMARY KEY,
			version_id BIGINT NOT NULL,
			is_applied BOOLEAN NOT NULL,
			tstamp TIMESTAMP DEFAULT NOW()
		)
	`); err != nil {
		log.Fatalf("Failed to create goose table: %v", err)
	}
	for _, v := range append([]int64{0}, versions...) {
		if _, err := conn.Exec(ctx, "INSERT INTO goose_db_version (version_id, is_applied) VALUES ($1, true)", v); err != nil {
			log.Printf("Warning inserting version %d: %v", v, err)
		}
	}

	// ЧАСТЬ 3: ТЕСТОВЫЕ ДАННЫЕ
	fmt.Println("Inserting test listings...")
	_, err = conn.Exec(ctx, `
		INSERT INTO listings (title, description, address, city, property_type, price, bedrooms, bathrooms, area, latitude, longitude)
		VALUES
			('Sunny Oakland apartment near campus', 'Two bedroom apartment, hardwood floors, walking distance to Pitt', '3800 Forbes Ave', 'Pittsburgh', 'APARTMENT', 1500, 2, 1, 850, 40.4417, -79.9560),
			('Shadyside townhouse with yard', 'Renovated townhouse, private yard and off-street parking', '5500 Walnut St', 'Pittsburgh', 'TOWNHOUSE', 2400, 3, 2, 1400, 40.4520, -79.9340),
			('Oakland studio', 'Compact studio, utilities included, bus line at the door', '220 Atwood St', 'Pittsburgh', 'STUDIO', 950, 0, 1, 400, 40.4380, -79.9530),
			('Squirrel Hill family house', 'Four bedroom house close to parks and schools', '2100 Murray Ave', 'Pittsburgh', 'HOUSE', 3200, 4, 2.5, 2200, 40.4330, -79.9230),
			('Lawrenceville loft', 'Open plan loft in a converted warehouse, exposed brick', '4300 Butler St', 'Pittsburgh', 'APARTMENT', 1900, 1, 1, 1000, 40.4700, -79.9600),
			('South Side condo with river view', 'Modern condo, balcony facing the Monongahela, gym in building', '2700 E Carson St', 'Pittsburgh', 'CONDO', 2100, 2, 2, 1100, 40.4280, -79.9680),
			('Downtown apartment', 'High-rise apartment, doorman, walk to the Cultural District', '600 Grant St', 'Pittsburgh', 'APARTMENT', 1750, 1, 1, 700, 40.4406, -79.9959),
			('Bloomfield room for rent', 'Furnished room in shared house, no price listed yet', '4700 Liberty Ave', 'Pittsburgh', 'ROOM', NULL, 1, 1, 150, 40.4610, -79.9490)
	`)
	if err != nil {
		log.Fatalf("Failed to insert listings: %v", err)
	}

	// ЧАСТЬ 4: ПРОВЕРКА
	fmt.Println("\n=== VERIFICATION ===")
	var listingCount, embeddingCount int
	conn.QueryRow(ctx, "SELECT count(*) FROM listings").Scan(&listingCount)
	conn.QueryRow(ctx, "SELECT count(*) FROM listing_embeddings").Scan(&embeddingCount)
	fmt.Printf("Listings:   %d\n", listingCount)
	fmt.Printf("Embeddings: %d\n", embeddingCount)

	fmt.Println("\n=== DATABASE RESET COMPLETE ===")
	fmt.Println("Run `housing_search backfill` to embed the seeded listings")
}

// applyMigrations выполняет Up-часть каждой миграции в порядке версий.
func applyMigrations(ctx context.Context, conn *pgx.Conn, dir string) ([]int64, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	var versions []int64
	for _, file := range files {
		name := filepath.Base(file)
		version, err := strconv.ParseInt(strings.SplitN(name, "_", 2)[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad migration name %s: %w", name, err)
		}

		content, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}

		if _, err := conn.Exec(ctx, upSection(string(content))); err != nil {
			return nil, fmt.Errorf("migration %s: %w", name, err)
		}
		fmt.Printf("  Migration %d: OK\n", version)
		versions = append(versions, version)
	}

	return versions, nil
}

func upSection(sql string) string {
	if i := strings.Index(sql, "-- +goose Down"); i >= 0 {
		sql = sql[:i]
	}
	return strings.Replace(sql, "-- +goose Up", "", 1)
}

func extractHost(connStr string) string {
	parts := strings.Split(connStr, "@")
	if len(parts) > 1 {
		hostPart := strings.Split(parts[1], "/")[0]
		return hostPart
	}
	return "unknown"
}
