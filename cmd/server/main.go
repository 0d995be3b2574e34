package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/givers/charity-ledger/internal/config"
	"github.com/givers/charity-ledger/internal/events"
	"github.com/givers/charity-ledger/internal/handler"
	"github.com/givers/charity-ledger/internal/logging"
	"github.com/givers/charity-ledger/internal/repository"
	"github.com/givers/charity-ledger/internal/service"
	"github.com/givers/charity-ledger/internal/token"
	"github.com/givers/charity-ledger/pkg/auth"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup("INFO")
		logging.Fatal("invalid configuration", "error", err)
	}
	logging.Setup(cfg.LogLevel)

	ctx := context.Background()

	repo, closeRepo, err := openJournal(ctx, cfg)
	if err != nil {
		logging.Fatal("failed to open journal", "driver", cfg.JournalDriver, "error", err)
	}
	defer closeRepo()

	var publishers []events.Publisher
	if cfg.RedisURL != "" {
		pub, err := events.NewRedisPublisher(cfg.RedisURL, cfg.RedisChannel)
		if err != nil {
			logging.Fatal("invalid REDIS_URL", "error", err)
		}
		if err := pub.Ping(ctx); err != nil {
			slog.Warn("redis unreachable, events will not be published until it recovers", "error", err)
		}
		defer pub.Close()
		publishers = append(publishers, pub)
	}
	journal := events.NewJournal(repo, publishers...)

	history, err := journal.Load(ctx)
	if err != nil {
		logging.Fatal("failed to load journal", "error", err)
	}

	// 初回起動時のみ初期供給をミントする。以降はジャーナルから復元する
	supply := cfg.InitialSupply()
	if len(history) > 0 {
		supply = nil
	}
	tok, err := token.NewMemory(ctx, token.Config{
		Name:          cfg.TokenName,
		Symbol:        cfg.TokenSymbol,
		Decimals:      cfg.TokenDecimals,
		Owner:         cfg.Owner(),
		InitialSupply: supply,
	}, journal)
	if err != nil {
		logging.Fatal("failed to create token", "error", err)
	}
	if err := tok.Restore(ctx, history); err != nil {
		logging.Fatal("failed to restore token balances", "error", err)
	}

	ledger := service.NewCampaignService(tok, journal, cfg.Owner(), cfg.Custody())
	if err := ledger.Restore(ctx, history); err != nil {
		logging.Fatal("failed to restore campaign ledger", "error", err)
	}

	h := handler.New(journal, cfg.FrontendURL)
	campaignHandler := handler.NewCampaignHandler(ledger, cfg.TokenDecimals, nil)
	tokenHandler := handler.NewTokenHandler(tok, cfg.Custody())
	activityHandler := handler.NewActivityHandler(service.NewActivityService(journal, ledger), cfg.TokenDecimals)
	chartHandler := handler.NewChartHandler(ledger, cfg.TokenDecimals)
	meHandler := handler.NewMeHandler(cfg.Owner(), cfg.Custody())
	limiter := handler.NewRateLimiter(cfg.RateLimitPerMinute)

	sessionSecret := auth.SessionSecretBytes(cfg.SessionSecret)
	authHandler := handler.NewAuthHandler(sessionSecret, cfg.SessionTTL, nil)
	// 認証必要エンドポイント（書き込み系はレート制限も掛ける）
	wrapAuth := func(next http.HandlerFunc) http.Handler {
		limited := limiter.Middleware(next)
		if cfg.AuthRequired {
			return auth.RequireAuth(sessionSecret)(limited)
		}
		return auth.DevAuth(limited)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.Health)

	// ウォレット署名ログイン
	mux.Handle("POST /api/auth/nonce", limiter.Middleware(http.HandlerFunc(authHandler.Nonce)))
	mux.Handle("POST /api/auth/verify", limiter.Middleware(http.HandlerFunc(authHandler.Verify)))
	mux.Handle("GET /api/me", wrapAuth(meHandler.Me))

	// キャンペーン参照 API（認証不要）
	mux.HandleFunc("GET /api/campaigns/count", campaignHandler.Count)
	mux.HandleFunc("GET /api/campaigns/{id}", campaignHandler.Get)
	mux.HandleFunc("GET /api/campaigns/{id}/donations", campaignHandler.Donations)
	mux.HandleFunc("GET /api/campaigns/{id}/donors", campaignHandler.Donors)
	mux.HandleFunc("GET /api/campaigns/{id}/donors/{address}", campaignHandler.DonorContribution)
	mux.HandleFunc("GET /api/campaigns/{id}/progress", campaignHandler.Progress)
	mux.HandleFunc("GET /api/campaigns/{id}/active", campaignHandler.Active)
	mux.HandleFunc("GET /api/campaigns/{id}/activity", activityHandler.CampaignFeed)
	mux.HandleFunc("GET /api/campaigns/{id}/chart", chartHandler.Chart)
	mux.HandleFunc("GET /api/stats", campaignHandler.Stats)
	mux.HandleFunc("GET /api/activity", activityHandler.GlobalFeed)

	// キャンペーン操作 API
	mux.Handle("POST /api/campaigns", wrapAuth(campaignHandler.Create))
	mux.Handle("POST /api/campaigns/{id}/donations", wrapAuth(campaignHandler.Donate))
	mux.Handle("POST /api/campaigns/{id}/release", wrapAuth(campaignHandler.Release))
	mux.Handle("POST /api/campaigns/{id}/emergency-withdraw", wrapAuth(campaignHandler.EmergencyWithdraw))
	mux.Handle("POST /api/campaigns/{id}/extend", wrapAuth(campaignHandler.Extend))
	mux.Handle("POST /api/campaigns/{id}/toggle", wrapAuth(campaignHandler.Toggle))

	// トークン API
	mux.HandleFunc("GET /api/token", tokenHandler.Info)
	mux.HandleFunc("GET /api/token/balances/{address}", tokenHandler.Balance)
	mux.HandleFunc("GET /api/token/allowances/{owner}/{spender}", tokenHandler.Allowance)
	mux.Handle("POST /api/token/approve", wrapAuth(tokenHandler.Approve))
	mux.Handle("POST /api/token/transfer", wrapAuth(tokenHandler.Transfer))
	mux.Handle("POST /api/token/batch-transfer", wrapAuth(tokenHandler.BatchTransfer))
	mux.Handle("POST /api/token/mint", wrapAuth(tokenHandler.Mint))

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler.RequestLogger(handler.SecurityHeaders(h.CORS(mux))),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server listening",
			"addr", server.Addr,
			"journal", cfg.JournalDriver,
			"replayed_events", len(history),
			"auth_required", cfg.AuthRequired,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// openJournal opens the configured event store and returns its close func.
func openJournal(ctx context.Context, cfg *config.Config) (repository.EventRepository, func(), error) {
	switch cfg.JournalDriver {
	case config.JournalPostgres:
		pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewPgEventRepository(pool), pool.Close, nil
	case config.JournalLevelDB:
		repo, err := repository.NewLevelDBEventRepository(cfg.LevelDBPath)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {
			if err := repo.Close(); err != nil {
				slog.Error("leveldb close failed", "error", err)
			}
		}, nil
	default:
		slog.Warn("using in-memory journal; state is lost on restart")
		return repository.NewMemoryEventRepository(), func() {}, nil
	}
}
