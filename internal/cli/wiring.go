package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-commit-service/internal/app"
	"quiz-commit-service/internal/config"
	"quiz-commit-service/internal/domain"
	"quiz-commit-service/internal/infra/backend"
	"quiz-commit-service/internal/infra/chain"
	"quiz-commit-service/internal/infra/memory"
	pginfra "quiz-commit-service/internal/infra/postgres"
	redisinfra "quiz-commit-service/internal/infra/redis"
)

// deps holds the connections shared by the start and reconcile commands.
type deps struct {
	redis  *redis.Client
	pool   *pgxpool.Pool
	db     *bun.DB
	chain  *chain.Client
	commit *app.CommitProtocol
}

func (d *deps) Close() {
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.pool != nil {
		d.pool.Close()
	}
	if d.db != nil {
		_ = d.db.Close()
	}
	if d.chain != nil {
		d.chain.Close()
	}
}

func openDeps(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*deps, error) {
	d := &deps{}
	if cfg.Redis.Addr != "" {
		d.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := d.redis.Ping(ctx).Err(); err != nil {
			d.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
	}
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		d.pool = pool
		d.db = openBun(cfg.Postgres.URL)
	}

	ledger, err := newLedger(cfg, d)
	if err != nil {
		d.Close()
		return nil, err
	}

	rpc, err := chain.NewClient(ctx, chain.Config{
		RPCURL:         cfg.Chain.RPCURL,
		From:           cfg.Chain.From,
		Gas:            cfg.Chain.Gas,
		ConfirmTimeout: config.TTLDuration(cfg.Chain.ConfirmTimeout, 0),
	}, log)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("chain: %w", err)
	}
	d.chain = rpc
	var wallet app.Wallet = chain.NewAccountWallet(rpc, cfg.Chain.From, log)
	if cfg.Chain.TrustNode {
		wallet = chain.StaticWallet(true)
	}
	answers := backend.NewClient(backend.Config{
		BaseURL:    cfg.Backend.BaseURL,
		Timeout:    config.TTLDuration(cfg.Backend.Timeout, 10*time.Second),
		MaxRetries: cfg.Backend.MaxRetries,
	}, log)

	d.commit = app.NewCommitProtocol(rpc, answers, wallet, ledger, app.CommitConfig{
		Contract: cfg.Chain.Contract,
		Order:    app.ParsePayloadOrder(cfg.Session.PayloadOrder),
	}, log)
	return d, nil
}

func openBun(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func newLedger(cfg config.Config, d *deps) (app.CommitmentLedger, error) {
	switch cfg.Ledger.Driver {
	case config.LedgerRedis:
		if d.redis == nil {
			return nil, fmt.Errorf("ledger driver redis needs redis.addr")
		}
		return redisinfra.NewCommitmentLedger(d.redis, config.TTLDuration(cfg.Ledger.TTL, 7*24*time.Hour)), nil
	case config.LedgerPostgres:
		if d.db == nil {
			return nil, fmt.Errorf("ledger driver postgres needs postgres.url")
		}
		return pginfra.NewCommitmentLedger(d.db), nil
	default:
		return memory.NewCommitmentLedger(), nil
	}
}

func newQuizRepository(cfg config.Config, d *deps) (app.QuizRepository, error) {
	var loader memory.QuizLoader
	switch {
	case d.pool != nil:
		loader = pginfra.NewQuizLoader(d.pool)
	case cfg.Quiz.Catalog != "":
		static, err := loadCatalogFile(cfg.Quiz.Catalog)
		if err != nil {
			return nil, err
		}
		loader = static
	default:
		static, err := memory.NewStaticQuizLoaderFromCatalog(sampleCatalog())
		if err != nil {
			return nil, err
		}
		loader = static
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if d.redis != nil {
		return redisinfra.NewQuizRepository(d.redis, loader, quizTTL), nil
	}
	return memory.NewQuizRepository(loader, quizTTL), nil
}

func newSessionStore(cfg config.Config, d *deps) app.SessionRepository {
	if d.redis == nil {
		return memory.NewSessionStore()
	}
	owner, _ := os.Hostname()
	return redisinfra.NewSessionStore(d.redis, config.TTLDuration(cfg.Redis.TTL, 30*time.Minute), owner)
}

// loadCatalogFile reads a JSON array of catalog documents.
func loadCatalogFile(path string) (*memory.StaticQuizLoader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []domain.RawQuiz
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return memory.NewStaticQuizLoaderFromCatalog(raw)
}

// sampleCatalog is served when neither Postgres nor a catalog file is configured.
func sampleCatalog() []domain.RawQuiz {
	return []domain.RawQuiz{
		{
			UUID:        "quiz-1",
			Name:        "Ethereum basics",
			Description: "Five minutes on accounts, gas and hashing.",
			DurationSec: 300,
			Difficulty:  "Easy",
			TotalReward: 10,
			Questions: []domain.RawQuestion{
				{
					ID:           1,
					QuestionText: "Which hash function does the EVM expose natively?",
					Options: []domain.RawOption{
						{Text: "SHA-256", OptionIndex: "A"},
						{Text: "Keccak-256", OptionIndex: "B"},
						{Text: "BLAKE2b", OptionIndex: "C"},
						{Text: "MD5", OptionIndex: "D"},
					},
					CorrectAnswer: "B",
				},
				{
					ID:           2,
					QuestionText: "What pays for computation on Ethereum?",
					Options: []domain.RawOption{
						{Text: "Gas", OptionIndex: "A"},
						{Text: "Stake", OptionIndex: "B"},
						{Text: "Blocks", OptionIndex: "C"},
						{Text: "Nonces", OptionIndex: "D"},
					},
					CorrectAnswer: "A",
				},
			},
		},
	}
}
