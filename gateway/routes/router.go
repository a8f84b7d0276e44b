package routes

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"vestake/core"
	"vestake/gateway/middleware"
	"vestake/native/bank"
	"vestake/native/vestaking"
	"vestake/native/vetoken"
	"vestake/services/indexer"
)

// Ledger is the subset of core.Node the API serves.
type Ledger interface {
	Deposit(ctx context.Context, user common.Address, amount *uint256.Int) (*vestaking.Settlement, error)
	Withdraw(ctx context.Context, user common.Address, amount *uint256.Int) (*vestaking.Settlement, error)
	Claim(ctx context.Context, user common.Address) (*vestaking.Settlement, error)
	UpdateRewardVars(ctx context.Context) (*vestaking.GlobalState, error)
	SetParam(ctx context.Context, caller common.Address, name, value string) error
	SetBoostAggregator(ctx context.Context, caller, aggregator common.Address) error
	TransferAdmin(ctx context.Context, caller, admin common.Address) error
	Approve(ctx context.Context, owner, spender common.Address, amount *uint256.Int) error
	Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error
	Mint(ctx context.Context, caller, to common.Address, amount *uint256.Int) error

	Quote(user common.Address) (*vestaking.Settlement, error)
	UserInfo(user common.Address) (*vestaking.UserInfo, error)
	Ledger() (*core.LedgerView, error)
	Params() (vestaking.Params, error)
	TokenMetadata() (*vetoken.Metadata, error)
	TokenSupply() (*uint256.Int, error)
	TokenBalance(addr common.Address) (*uint256.Int, error)
	AssetInfo() (*bank.AssetInfo, error)
	AssetBalance(addr common.Address) (*uint256.Int, error)
	Allowance(owner, spender common.Address) (*uint256.Int, error)
}

// History serves indexed events.
type History interface {
	Query(ctx context.Context, filter indexer.Filter) ([]indexer.Entry, error)
	Export(ctx context.Context, filter indexer.Filter, format indexer.Format) ([]byte, string, error)
}

// Rate limit keys applied to each route group.
const (
	RateLimitStake  = "stake"
	RateLimitAdmin  = "admin"
	RateLimitToken  = "token"
	RateLimitAsset  = "asset"
	RateLimitEvents = "events"
)

type Config struct {
	Ledger         Ledger
	History        History
	Hub            *Hub
	Authenticator  *middleware.Authenticator
	RateLimiter    *middleware.RateLimiter
	Observability  *middleware.Observability
	CORS           middleware.CORSConfig
	Logger         *slog.Logger
	RequestTimeout time.Duration
}

func New(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))

	obs := cfg.Observability
	if obs != nil {
		r.Use(obs.Middleware("root"))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	group := func(key string, mount func(chi.Router)) func(chi.Router) {
		return func(sr chi.Router) {
			if cfg.RateLimiter != nil {
				sr.Use(cfg.RateLimiter.Middleware(key))
			}
			mount(sr)
		}
	}

	stake := &stakeRoutes{ledger: cfg.Ledger, timeout: cfg.RequestTimeout}
	admin := &adminRoutes{ledger: cfg.Ledger, timeout: cfg.RequestTimeout}
	tokens := &tokenRoutes{ledger: cfg.Ledger, timeout: cfg.RequestTimeout}
	history := &eventRoutes{history: cfg.History, hub: cfg.Hub, logger: cfg.Logger}

	r.Route("/v1", func(v1 chi.Router) {
		if cfg.Authenticator != nil {
			v1.Use(cfg.Authenticator.Middleware())
		}
		v1.Route("/stake", group(RateLimitStake, stake.mount))
		v1.Route("/admin", group(RateLimitAdmin, admin.mount))
		v1.Route("/token", group(RateLimitToken, tokens.mountToken))
		v1.Route("/asset", group(RateLimitAsset, tokens.mountAsset))
		v1.Route("/events", group(RateLimitEvents, history.mount))
	})
	return r
}

func withTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(parent, timeout)
}
