package main

import (
	"fmt"
	"log"
	"os"

	"site-mass-upload/internal/config"
	"site-mass-upload/internal/database"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run cmd/migrate/main.go [up|down|status]")
		os.Exit(1)
	}

	command := os.Args[1]

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.NewConnection(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	migrator := database.NewMigrator(db)

	switch command {
	case "up":
		fmt.Println("Running migrations...")
		if err := migrator.Up(); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		fmt.Println("Migrations completed successfully")

	case "down":
		fmt.Println("Rolling back migrations...")
		if err := migrator.Down(); err != nil {
			log.Fatalf("Failed to rollback migrations: %v", err)
		}
		fmt.Println("Migrations rolled back successfully")

	case "status":
		tables, err := migrator.Status()
		if err != nil {
			log.Fatalf("Failed to check migration status: %v", err)
		}

		missing := 0
		for _, t := range tables {
			state := "ok"
			if !t.Exists {
				state = "missing"
				missing++
			}
			fmt.Printf("  %-22s %s\n", t.Table, state)
		}

		if stats, err := db.GetConnectionStats(); err == nil {
			fmt.Printf("Connections: %d open, %d in use, %d idle (max %d)\n",
				stats.OpenConnections, stats.InUse, stats.Idle, stats.MaxOpenConnections)
		}

		if missing > 0 {
			fmt.Printf("%d of %d tables missing - run 'up'\n", missing, len(tables))
			os.Exit(2)
		}
		fmt.Println("All destination tables present")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println("Available commands: up, down, status")
		os.Exit(1)
	}
}
