package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/rs/cors"

	"github.com/rpattn/netgql/internal/config"
	"github.com/rpattn/netgql/internal/customfield"
	"github.com/rpattn/netgql/internal/db"
	"github.com/rpattn/netgql/internal/domain"
	"github.com/rpattn/netgql/internal/export"
	"github.com/rpattn/netgql/internal/filter"
	"github.com/rpattn/netgql/internal/graphql"
	"github.com/rpattn/netgql/internal/ingestion"
	"github.com/rpattn/netgql/internal/middleware"
	"github.com/rpattn/netgql/internal/registry"
	"github.com/rpattn/netgql/internal/repository"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	catalog, err := loadCatalog(cfg)
	if err != nil {
		log.Fatalf("Failed to load models: %v", err)
	}
	log.Printf("Loaded %d models", len(catalog.All()))

	store, source, closeStore, err := openStorage(ctx, cfg, catalog)
	if err != nil {
		log.Fatalf("Failed to open %s storage: %v", cfg.Storage, err)
	}
	defer closeStore()

	reg := registry.New()
	if _, err := registry.DeclareCatalog(ctx, reg, catalog, source); err != nil {
		log.Fatalf("Failed to declare filters: %v", err)
	}

	relationships := filter.NewRelationshipCache()
	if err := relationships.Warm(catalog); err != nil {
		log.Fatalf("Failed to resolve relationships: %v", err)
	}

	schema, err := graphql.BuildSchema(catalog, reg)
	if err != nil {
		log.Fatalf("Failed to build schema: %v", err)
	}

	resolver := filter.NewResolver(filter.NewBuilder(relationships, reg), cfg.Debug)
	executor := graphql.NewExecutor(schema, store, resolver,
		graphql.WithMaxAliases(cfg.MaxAliases),
		graphql.WithFieldInterceptor(&middleware.ResolverLoggerExtension{}),
	)
	exporter := export.NewService(schema, store, resolver)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	graphqlHandler := middleware.LoggingMiddleware(
		middleware.DataLoaderMiddleware(store)(graphql.NewHandler(executor)),
	)

	mux := http.NewServeMux()
	mux.Handle("/query", corsHandler.Handler(graphqlHandler))
	mux.Handle("GET /export/{entity}", corsHandler.Handler(middleware.LoggingMiddleware(export.NewHTTPHandler(exporter))))
	mux.Handle("/", corsHandler.Handler(middleware.LoggingMiddleware(playground.Handler("NetBox GraphQL playground", "/query"))))

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting GraphQL server on %s (%s storage)", cfg.Server.Addr, cfg.Storage)
		log.Printf("GraphQL endpoint available at %s/query", cfg.Server.Addr)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

func loadCatalog(cfg config.Config) (*domain.Catalog, error) {
	if cfg.ModelsDir == "" {
		return domain.DefaultCatalog()
	}
	return domain.LoadCatalog(os.DirFS(cfg.ModelsDir), ".")
}

// openStorage returns the store, its custom field source and a close func.
func openStorage(ctx context.Context, cfg config.Config, catalog *domain.Catalog) (repository.Store, customfield.Source, func(), error) {
	switch cfg.Storage {
	case config.DriverPostgres:
		if err := db.RunMigrations(cfg.Database); err != nil {
			return nil, nil, nil, err
		}
		conn, err := db.NewConnection(ctx, cfg.Database)
		if err != nil {
			return nil, nil, nil, err
		}
		q := conn.Querier()
		return repository.NewSQLStore(q, repository.Postgres), customfield.NewSQLSource(q), conn.Close, nil

	case config.DriverSQLite:
		sqlDB, err := db.OpenSQLite(ctx, cfg.SQLite)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := db.RunSQLiteMigrations(sqlDB); err != nil {
			sqlDB.Close()
			return nil, nil, nil, err
		}
		q := db.NewSQLQuerier(sqlDB)
		return repository.NewSQLStore(q, repository.SQLite), customfield.NewSQLSource(q), func() { sqlDB.Close() }, nil
	}

	store := repository.NewMemoryStore(catalog)
	if cfg.SeedDir != "" {
		seeder := ingestion.NewService(catalog, store, ingestion.WithCustomFields(cfg.CustomFields))
		summaries, err := seeder.LoadFS(ctx, os.DirFS(cfg.SeedDir), ".")
		if err != nil {
			return nil, nil, nil, err
		}
		log.Printf("Seeded memory store from %d files in %s", len(summaries), cfg.SeedDir)
	}
	return store, cfg.CustomFields, func() {}, nil
}
