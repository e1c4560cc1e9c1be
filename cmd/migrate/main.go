package main

import (
	"flag"
	"log"

	"github.com/damoang/angple-billing/internal/config"
	"github.com/damoang/angple-billing/internal/migration"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.local.yaml", "config file path")
	dryRun := flag.Bool("dry-run", false, "show which tables would be created without executing")
	verify := flag.Bool("verify", false, "print row counts of the billing tables")
	verbose := flag.Bool("verbose", false, "verbose SQL logging")
	flag.Parse()

	if loaded := config.LoadDotEnv(); len(loaded) == 0 {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logLevel := gormlogger.Warn
	if *verbose {
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(mysql.Open(cfg.Database.GetDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Failed to get underlying DB: %v", err)
	}
	defer sqlDB.Close()

	tables, err := migration.Tables(db)
	if err != nil {
		log.Fatalf("Failed to resolve tables: %v", err)
	}

	switch {
	case *dryRun:
		for _, table := range tables {
			state := "create"
			if db.Migrator().HasTable(table) {
				state = "alter if needed"
			}
			log.Printf("[dry-run] %-20s %s", table, state)
		}
	case *verify:
		runVerify(db, tables)
	default:
		if err := migration.Run(db); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Printf("Migrated %d billing tables", len(tables))
	}
}

func runVerify(db *gorm.DB, tables []string) {
	for _, table := range tables {
		if !db.Migrator().HasTable(table) {
			log.Printf("[verify] %-20s missing", table)
			continue
		}
		var count int64
		if err := db.Table(table).Count(&count).Error; err != nil {
			log.Printf("[verify] %-20s error: %v", table, err)
			continue
		}
		log.Printf("[verify] %-20s %d rows", table, count)
	}
}
