package app

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"time"

	"github.com/Otaku-Wars/clashcore/internal/cache/redis"
	"github.com/Otaku-Wars/clashcore/internal/chain"
	"github.com/Otaku-Wars/clashcore/internal/config"
	"github.com/Otaku-Wars/clashcore/internal/curve"
	"github.com/Otaku-Wars/clashcore/internal/domain"
	"github.com/Otaku-Wars/clashcore/internal/platform/arena"
	"github.com/Otaku-Wars/clashcore/internal/pricing"
	"github.com/Otaku-Wars/clashcore/internal/rates"
	"github.com/Otaku-Wars/clashcore/internal/reconcile"
	"github.com/Otaku-Wars/clashcore/internal/service"
	"github.com/Otaku-Wars/clashcore/internal/store/postgres"
	"github.com/Otaku-Wars/clashcore/internal/wallet"
)

// rateTolerance bounds the allowed drift between configured protocol rates and
// the values read from the contract during startup verification.
const rateTolerance = 1e-9

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Upstream clients
	Arena      *arena.Client
	FeedClient *arena.FeedClient

	// Core state
	Reconciler *reconcile.Reconciler
	Runner     *reconcile.Runner
	Quoter     *pricing.Quoter
	Projector  *pricing.Projector
	Portfolio  *service.PortfolioService

	// Chain access (nil when no RPC endpoint is configured)
	ChainClient *chain.Client
	Writer      *chain.Writer // nil when no wallet key is configured

	// Fiat conversion
	Rates *rates.Provider

	// Redis-backed infrastructure (nil when Redis is not wired for the mode)
	StateCache  domain.StateCache
	RateCache   domain.RateCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Postgres-backed archive (nil unless the mode archives)
	ActivityStore domain.ActivityStore
}

// needsRedis returns true for modes that require the shared cache and bus.
func needsRedis(mode string) bool {
	switch mode {
	case "serve", "archive", "full":
		return true
	default:
		return false
	}
}

// needsPostgres returns true for modes that archive activity durably.
func needsPostgres(mode string) bool {
	switch mode {
	case "archive", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Arena clients ---
	deps.Arena = arena.NewClient(cfg.Arena.RestHost, cfg.Arena.HTTPTimeout.Duration)
	deps.FeedClient = arena.NewFeedClient(cfg.Arena.WsHost, cfg.Arena.AuthToken)

	// --- Reconciler ---
	deps.Reconciler = reconcile.New(time.Now, cfg.Arena.ActivityCap)

	// --- Curve parameters ---
	params, err := curveParams(cfg.Pricing)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: curve params: %w", err)
	}

	// --- Chain client ---
	if cfg.Chain.RPCURL != "" {
		chainClient, err := chain.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.ContractAddress)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain: %w", err)
		}
		deps.ChainClient = chainClient

		if cfg.Pricing.VerifyCurve {
			if err := verifyCurve(ctx, chainClient, params, cfg.Pricing); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: %w", err)
			}
			logger.InfoContext(ctx, "curve parameters verified against contract")
		}
	}

	// --- Pricing ---
	deps.Quoter = pricing.NewQuoter(params, cfg.Pricing.FeeRate, deps.Reconciler)
	deps.Projector = pricing.NewProjector(deps.Quoter, cfg.Pricing.TransferRate)

	// --- Poll runner ---
	var balances reconcile.BalanceReader
	if deps.ChainClient != nil {
		balances = deps.ChainClient
	}
	deps.Runner = reconcile.NewRunner(
		deps.Reconciler, deps.Arena, deps.Arena, balances,
		reconcile.RunnerConfig{
			WorldInterval:   cfg.Arena.WorldInterval.Duration,
			BattleInterval:  cfg.Arena.BattleInterval.Duration,
			BalanceInterval: cfg.Arena.BalanceInterval.Duration,
			WatchTTL:        cfg.Arena.WatchTTL.Duration,
		},
		logger,
	)

	// Trades move prices, so the memoized scaling factor for a touched
	// character has to go.
	deps.Reconciler.OnCharacterTouched(deps.Quoter.Invalidate)

	// --- Portfolio service ---
	deps.Portfolio = service.NewPortfolioService(
		deps.Arena, deps.Quoter, deps.Reconciler, deps.Runner, logger,
	)

	// --- Wallet + trade writer ---
	if deps.ChainClient != nil && walletConfigured(cfg.Wallet) {
		key, err := wallet.LoadKey(wallet.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: wallet: %w", err)
		}

		runner := deps.Runner
		onDone := func(intentID string, characterID uint64, err error) {
			if err == nil {
				runner.Poke(characterID)
			}
		}
		deps.Writer = chain.NewWriter(deps.ChainClient, key, cfg.Chain.ChainID, onDone, logger)
		logger.InfoContext(ctx, "trade writer enabled",
			slog.String("address", deps.Writer.Address()),
		)
	}

	// --- Exchange rates ---
	if cfg.Rates.URL != "" {
		deps.Rates = rates.NewProvider(cfg.Rates.URL, cfg.Rates.Interval.Duration, logger)
	}

	// --- Redis ---
	if needsRedis(cfg.Mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.StateCache = redis.NewStateCache(redisClient)
		deps.RateCache = redis.NewRateCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- PostgreSQL (only for modes that archive) ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.ActivityStore = postgres.NewActivityStore(pgClient.Pool())
	}

	return deps, cleanup, nil
}

// curveParams resolves the bonding curve constants from configuration,
// falling back to the deployed contract defaults when unset.
func curveParams(cfg config.PricingConfig) (curve.Params, error) {
	if cfg.CurveA == "" && cfg.CurveB == "" && cfg.CurveC == "" {
		return curve.DefaultParams(), nil
	}

	params := curve.Params{}
	var ok bool
	if params.A, ok = new(big.Int).SetString(cfg.CurveA, 10); !ok {
		return curve.Params{}, fmt.Errorf("parse curve_a %q: %w", cfg.CurveA, domain.ErrInvalidCurveParams)
	}
	if params.B, ok = new(big.Int).SetString(cfg.CurveB, 10); !ok {
		return curve.Params{}, fmt.Errorf("parse curve_b %q: %w", cfg.CurveB, domain.ErrInvalidCurveParams)
	}
	if params.C, ok = new(big.Int).SetString(cfg.CurveC, 10); !ok {
		return curve.Params{}, fmt.Errorf("parse curve_c %q: %w", cfg.CurveC, domain.ErrInvalidCurveParams)
	}
	if err := params.Validate(); err != nil {
		return curve.Params{}, err
	}
	return params, nil
}

// verifyCurve cross-checks the locally configured curve constants and protocol
// rates against the contract's getCurve view. A mismatch means every derived
// price would disagree with what trades actually settle at, so startup fails.
func verifyCurve(ctx context.Context, client *chain.Client, params curve.Params, cfg config.PricingConfig) error {
	onChain, err := client.Curve(ctx)
	if err != nil {
		return fmt.Errorf("verify curve: %w", err)
	}

	if params.A.Cmp(onChain.Params.A) != 0 ||
		params.B.Cmp(onChain.Params.B) != 0 ||
		params.C.Cmp(onChain.Params.C) != 0 {
		return fmt.Errorf("verify curve: configured parameters disagree with contract: %w",
			domain.ErrInvalidCurveParams)
	}
	if math.Abs(cfg.FeeRate-onChain.FeeRate) > rateTolerance {
		return fmt.Errorf("verify curve: fee_rate %.4f disagrees with contract %.4f",
			cfg.FeeRate, onChain.FeeRate)
	}
	if math.Abs(cfg.TransferRate-onChain.TransferRate) > rateTolerance {
		return fmt.Errorf("verify curve: transfer_rate %.4f disagrees with contract %.4f",
			cfg.TransferRate, onChain.TransferRate)
	}
	return nil
}

func walletConfigured(cfg config.WalletConfig) bool {
	return cfg.PrivateKey != "" || cfg.EncryptedKeyPath != ""
}
