package cli

import (
	"context"
	"fmt"
	"math"

	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/corral/internal/approval"
	"github.com/gosuda/corral/internal/config"
	"github.com/gosuda/corral/internal/domain"
	"github.com/gosuda/corral/internal/executor"
	"github.com/gosuda/corral/internal/notify"
	notifyslack "github.com/gosuda/corral/internal/notify/slack"
	"github.com/gosuda/corral/internal/store/postgres"
	redisstore "github.com/gosuda/corral/internal/store/redis"
	"github.com/gosuda/corral/internal/supervisor"
)

// runtime bundles the wired collaborators one command invocation uses.
type runtime struct {
	cfg      *config.Config
	registry *executor.Registry
	gate     *approval.Gate
	sup      *supervisor.Supervisor
	store    *postgres.Store   // nil without CORRAL_DB_HOST
	bridge   *redisstore.Bridge // nil without CORRAL_REDIS_ADDR
	prompts  *promptNotifier
}

// buildRuntime loads configuration and wires the supervisor stack. The
// returned cleanup closes external connections.
func buildRuntime(ctx context.Context) (*runtime, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {}

	var store *postgres.Store
	var sessions domain.SessionRepository
	var logs domain.LogSink
	var approvals domain.ApprovalSink
	if cfg.Database.Enabled() {
		if cfg.Database.MaxConns > math.MaxInt32 {
			return nil, nil, fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
		}

		store, err = postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
		if err != nil {
			return nil, nil, err
		}
		sessions = store.Sessions()
		logs = store.Logs()
		approvals = store.Approvals()
		cleanup = chain(cleanup, store.Close)
	}

	notifiers := notify.NewRegistry()
	notifiers.Register("log", notify.LogNotifier{})

	prompts := newPromptNotifier()
	notifiers.Register("prompt", prompts)

	if cfg.Slack.Enabled() {
		api := slacklib.New(cfg.Slack.BotToken)
		notifiers.Register("slack", notifyslack.New(api, cfg.Slack.ChannelID))
	}

	var bridge *redisstore.Bridge
	if cfg.Redis.Enabled() {
		pubsub, psErr := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if psErr != nil {
			cleanup()
			return nil, nil, psErr
		}
		bridge = redisstore.NewBridge(pubsub)
		notifiers.Register("redis", bridge)
		cleanup = chain(cleanup, func() { _ = pubsub.Close() })
	}

	gate := approval.NewGate(approvals, notifiers)

	registry := executor.NewRegistry()
	registry.Register(executor.KindClaude, executor.NewClaudeProfile)
	registry.Register(executor.KindCodex, executor.NewCodexProfile)
	registry.Register(executor.KindOpenCode, executor.NewOpenCodeProfile)

	sup := supervisor.New(registry, gate, sessions, logs, cfg.Supervisor.GracePeriod)

	rt := &runtime{
		cfg:      cfg,
		registry: registry,
		gate:     gate,
		sup:      sup,
		store:    store,
		bridge:   bridge,
		prompts:  prompts,
	}

	return rt, cleanup, nil
}

func chain(first, next func()) func() {
	return func() {
		next()
		first()
	}
}
