package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scopeauth.org/internal/audit"
	"scopeauth.org/internal/authn"
	"scopeauth.org/internal/directory"
	"scopeauth.org/internal/httpapi"
	"scopeauth.org/internal/migrate"
	"scopeauth.org/internal/obs"
	"scopeauth.org/internal/store/pg"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("SCOPEAUTH_COMMIT"))

	dsn := os.Getenv("SCOPEAUTH_PG_DSN")
	if dsn == "" {
		log.Fatal("missing SCOPEAUTH_PG_DSN")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	// Schema initialization is explicit: opted into per deployment, never
	// implied by opening the pool.
	if os.Getenv("SCOPEAUTH_MIGRATE") == "1" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		mgr := migrate.NewManager(store.DB(), migrationsDir())
		if err := mgr.Up(ctx); err != nil {
			cancel()
			log.Fatalf("migrate up: %v", err)
		}
		cancel()
	}

	svc, err := directory.NewService(store)
	if err != nil {
		log.Fatalf("init service: %v", err)
	}
	recorder := audit.NewRecorder(store.Audit())
	api := httpapi.New(svc, authn.NewResolver(), recorder, httpapi.ReadyProbe{DB: store.DB()}, version)

	addr := os.Getenv("SCOPEAUTH_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting scopeauth-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = store.Close()
	log.Println("Stopped")
}

func migrationsDir() string {
	if dir := os.Getenv("SCOPEAUTH_MIGRATIONS"); dir != "" {
		return dir
	}
	return "migrations/sql"
}
