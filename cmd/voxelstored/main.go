// Command voxelstored serves the clinical-history queries and the resident
// volume registry over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/medvolt-imaging/voxelstore/internal/api"
	"github.com/medvolt-imaging/voxelstore/internal/config"
	"github.com/medvolt-imaging/voxelstore/internal/fsutil"
	"github.com/medvolt-imaging/voxelstore/internal/history"
	"github.com/medvolt-imaging/voxelstore/internal/version"
	"github.com/medvolt-imaging/voxelstore/internal/volcache"
	"github.com/medvolt-imaging/voxelstore/internal/volfile"
)

var (
	configFile = flag.String("config", "", "Path to a JSON config file (flags override it)")
	listen     = flag.String("listen", "", "HTTP listen address")
	dbFile     = flag.String("db", "", "Path to the clinical history SQLite database")
	volumeDir  = flag.String("volume-dir", "", "Directory of volume headers to preload")
)

func main() {
	flag.Parse()

	cfg := config.EmptyServerConfig()
	if *configFile != "" {
		var err error
		cfg, err = config.LoadServerConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	listenAddr := cfg.GetListen()
	if *listen != "" {
		listenAddr = *listen
	}
	dbPath := cfg.GetDBPath()
	if *dbFile != "" {
		dbPath = *dbFile
	}
	volDir := cfg.GetVolumeDir()
	if *volumeDir != "" {
		volDir = *volumeDir
	}

	log.Printf("[voxelstored] %s", version.String())

	db, err := history.Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Subcommand dispatch: "voxelstored migrate <up|down|status>" manages the
	// schema and exits without serving.
	if args := flag.Args(); len(args) > 0 && args[0] == "migrate" {
		runMigrateCommand(db, args[1:])
		return
	}

	if err := db.MigrateUp(); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	cache := volcache.New()
	defer cache.Close()

	if volDir != "" {
		vols, err := volfile.LoadDir(fsutil.OSFileSystem{}, volDir)
		if err != nil {
			log.Fatalf("Failed to scan volume directory: %v", err)
		}
		for _, v := range vols {
			if err := cache.Put(v); err != nil {
				log.Printf("[voxelstored] not caching series %s: %v", v.SourceSeriesInstanceUID(), err)
				v.Release()
				continue
			}
		}
		log.Printf("[voxelstored] %d volume(s) resident", cache.Len())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:    listenAddr,
		Handler: api.NewServer(db, cache).ServeMux(),
	}

	go func() {
		log.Printf("[voxelstored] listening on %s", listenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownTimeout())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
}

func runMigrateCommand(db *history.DB, args []string) {
	if len(args) < 1 {
		printMigrateHelp()
		os.Exit(1)
	}

	switch args[0] {
	case "up":
		log.Printf("Running migrations...")
		if err := db.MigrateUp(); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
		logMigrateVersion(db)

	case "down":
		log.Printf("Rolling back one migration...")
		if err := db.MigrateDown(); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		logMigrateVersion(db)

	case "status":
		version, dirty, err := db.MigrateVersion()
		if err != nil {
			log.Fatalf("Failed to get migration status: %v", err)
		}
		fmt.Printf("Current version: %d\n", version)
		fmt.Printf("Dirty: %v\n", dirty)

	case "help":
		printMigrateHelp()

	default:
		fmt.Printf("Unknown migrate action: %s\n\n", args[0])
		printMigrateHelp()
		os.Exit(1)
	}
}

func logMigrateVersion(db *history.DB) {
	version, dirty, _ := db.MigrateVersion()
	log.Printf("Current version: %d (dirty: %v)", version, dirty)
}

func printMigrateHelp() {
	fmt.Println("Usage: voxelstored [flags] migrate <action>")
	fmt.Println()
	fmt.Println("Actions:")
	fmt.Println("  up       Apply all pending migrations")
	fmt.Println("  down     Roll back one migration")
	fmt.Println("  status   Show the current schema version")
	fmt.Println("  help     Show this help")
}
