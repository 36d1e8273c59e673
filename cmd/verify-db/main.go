package main

import (
	"database/sql"
	"fmt"
	"log"

	"fasset-backend/internal/config"

	_ "github.com/lib/pq"
)

var requiredTables = []string{
	"agents",
	"collateral_withdrawals",
	"redemption_tickets",
	"collateral_reservations",
	"redemption_requests",
	"payment_records",
	"underlying_blocks",
	"protocol_events",
	"challenge_events",
	"liquidation_events",
	"price_snapshots",
}

func main() {
	fmt.Println("🔍 Verifying database connection and schema...")

	if err := config.LoadConfig(""); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	sqlDB, err := sql.Open("postgres", config.AppConfig.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqlDB.Close()

	var dbName string
	if err := sqlDB.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		log.Fatalf("Failed to get database name: %v", err)
	}
	fmt.Printf("📋 Connected to database: %s\n", dbName)

	missing := 0
	for _, table := range requiredTables {
		var exists bool
		err := sqlDB.QueryRow(`
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)
		`, table).Scan(&exists)
		if err != nil {
			log.Fatalf("Failed to query table %s: %v", table, err)
		}

		if !exists {
			fmt.Printf("❌ Missing table: %s\n", table)
			missing++
			continue
		}

		var count int64
		if err := sqlDB.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
			log.Fatalf("Failed to count rows in %s: %v", table, err)
		}
		fmt.Printf("✅ %s: %d rows\n", table, count)
	}

	if missing > 0 {
		fmt.Printf("\n❌ %d table(s) missing, run the server once to migrate\n", missing)
		return
	}

	fmt.Println("\n✅ Schema verification passed")
}
