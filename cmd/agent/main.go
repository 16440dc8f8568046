package main

import (
	"context"
	"log"
	"net/http"
	"path/filepath"
	"time"

	appsession "commerce-admin-session/internal/application/session"
	domain "commerce-admin-session/internal/domain/session"
	"commerce-admin-session/internal/infrastructure/api"
	"commerce-admin-session/internal/infrastructure/bus"
	"commerce-admin-session/internal/infrastructure/config"
	"commerce-admin-session/internal/infrastructure/storage"
	"commerce-admin-session/internal/interface/bridge"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const spoolPollInterval = 200 * time.Millisecond

func main() {
	cfg, err := config.LoadFromFile("config.yaml")
	if err != nil {
		log.Fatalf("CRITICAL: load config failed: %v", err)
	}
	origin := cfg.Storage.Origin
	if origin == "" {
		origin = uuid.NewString()
	}
	log.Printf("configuration loaded (bridge=%s api=%s origin=%s)", cfg.Bridge.Addr, cfg.API.BaseURL, origin)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 共用 session 狀態：有 DB 用 PostgreSQL，否則退回本機檔案
	var store domain.Store
	db, err := storage.Open(ctx, cfg.DB)
	if err != nil {
		log.Printf("warning: database connection failed, falling back to file store: %v", err)
	}
	if db != nil {
		defer db.Close()
		store = storage.NewSQLStore(db, origin)
		log.Printf("using PostgreSQL session store")
	} else {
		store = storage.NewFileStore(cfg.Storage.StateDir)
		log.Printf("using file session store at %s", cfg.Storage.StateDir)
	}

	// 跨分頁廣播：優先 Redis pub/sub，失敗退回檔案 spool
	var transport bus.Transport
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		t, err := bus.NewRedisTransport(client, origin)
		if err != nil {
			log.Printf("warning: redis transport unavailable, falling back to spool: %v", err)
		} else {
			transport = t
			log.Printf("using redis broadcast transport at %s", cfg.Redis.Addr)
		}
	}
	if transport == nil {
		spoolDir := cfg.Storage.SpoolDir
		if spoolDir == "" {
			spoolDir = filepath.Join(cfg.Storage.StateDir, "events")
		}
		t, err := bus.NewSpoolTransport(spoolDir, origin, spoolPollInterval)
		if err != nil {
			log.Printf("warning: spool transport unavailable, broadcasts disabled: %v", err)
		} else {
			transport = t
			log.Printf("using spool broadcast transport at %s", spoolDir)
		}
	}
	sync := bus.New(origin, transport)
	defer sync.Close()

	scratch := storage.NewScratch()
	router := bridge.NewRouter(cfg.Session.DefaultRoute)
	board := bridge.NewNoticeBoard()

	client := api.New(api.Config{
		BaseURL:    cfg.API.BaseURL,
		Timeout:    cfg.API.Timeout,
		DefaultTTL: cfg.Session.TTL,
	}, store, scratch, router.CurrentPath)
	cache := api.NewQueryCache(client, 5*time.Minute)

	mgr := appsession.NewManager(appsession.Deps{
		Config: cfg.Session,
		API:    authAdapter{client},
		Store:  store,
		Paths:  scratch,
		Sync:   sync,
		Nav:    router,
		Notify: board,
	})
	defer mgr.Close()

	// transport 層的終局 401 / 透明 refresh 回饋給 orchestrator
	client.OnAuthFailure(mgr.HandleAuthFailure)
	client.OnRefresh(mgr.HandleTransparentRefresh)

	mgr.Initialize(ctx)

	srv := bridge.NewServer(mgr, scratch, router, board, cache)
	log.Printf("starting bridge server on %s", cfg.Bridge.Addr)
	if err := http.ListenAndServe(cfg.Bridge.Addr, srv.Handler()); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

// authAdapter 讓 api.Client 符合 orchestrator 的 AuthAPI 介面。
type authAdapter struct {
	client *api.Client
}

func (a authAdapter) Login(ctx context.Context, creds appsession.Credentials) (domain.User, time.Time, error) {
	res, err := a.client.Login(ctx, api.LoginRequest{
		Email:      creds.Email,
		Password:   creds.Password,
		RememberMe: creds.RememberMe,
	})
	if err != nil {
		return domain.User{}, time.Time{}, err
	}
	return res.User, res.ExpiresAt, nil
}

func (a authAdapter) Logout(ctx context.Context) error {
	return a.client.Logout(ctx)
}

func (a authAdapter) Refresh(ctx context.Context) (time.Time, error) {
	return a.client.Refresh(ctx)
}

func (a authAdapter) Profile(ctx context.Context) (domain.User, error) {
	return a.client.Profile(ctx)
}
