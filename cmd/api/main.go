package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docportal.org/internal/audit"
	"docportal.org/internal/docs"
	"docportal.org/internal/httpapi"
	"docportal.org/internal/obs"
	"docportal.org/internal/perm"
	"docportal.org/internal/settings"
	"docportal.org/internal/store/pg"
)

// Overridden at build time via -ldflags.
var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("DOCPORTAL_PG_DSN")
	if dsn == "" {
		log.Fatal("missing DSN: set DOCPORTAL_PG_DSN")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	catalog := perm.DefaultCatalog()
	resolver := perm.NewResolver(store, catalog)

	grants, err := perm.NewService(store, catalog)
	if err != nil {
		log.Fatalf("grant service: %v", err)
	}
	templates, err := perm.NewTemplateService(store, store, catalog, store)
	if err != nil {
		log.Fatalf("template service: %v", err)
	}
	access, err := docs.NewController(store, store, store)
	if err != nil {
		log.Fatalf("access controller: %v", err)
	}
	shares, err := docs.NewShareService(store, store)
	if err != nil {
		log.Fatalf("share service: %v", err)
	}
	docPerms, err := docs.NewPermissionService(store)
	if err != nil {
		log.Fatalf("document permission service: %v", err)
	}
	sysSettings, err := settings.NewService(store)
	if err != nil {
		log.Fatalf("settings service: %v", err)
	}

	var verifier *httpapi.TokenVerifier
	if secret := os.Getenv("DOCPORTAL_TOKEN_SECRET"); secret != "" {
		verifier, err = httpapi.NewTokenVerifier([]byte(secret), os.Getenv("DOCPORTAL_TOKEN_ISSUER"))
		if err != nil {
			log.Fatalf("token verifier: %v", err)
		}
	} else {
		log.Print("DOCPORTAL_TOKEN_SECRET is not set; serving without authentication")
	}

	api := httpapi.New(httpapi.Config{
		ReadyProbe:     httpapi.ReadyProbe{DB: store.DB()},
		Version:        version,
		Resolver:       resolver,
		Grants:         grants,
		Templates:      templates,
		Access:         access,
		Shares:         shares,
		DocPermissions: docPerms,
		Settings:       sysSettings,
		AuditLog:       store,
		Principals:     store,
		Verifier:       verifier,
	})

	addr := os.Getenv("DOCPORTAL_HTTP_ADDR")
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

	log.Printf("Starting docportal-api %s on %s", version, srv.Addr)
	_ = audit.LogEvent(context.Background(), "service.start", map[string]any{
		"version": version,
		"addr":    srv.Addr,
	})

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
