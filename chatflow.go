package chatflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/internal/runtime"
	"github.com/aretw0/chatflow/pkg/adapters/apicall"
	"github.com/aretw0/chatflow/pkg/adapters/file"
	httpAdapter "github.com/aretw0/chatflow/pkg/adapters/http"
	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/flows"
	"github.com/aretw0/chatflow/pkg/observability"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/aretw0/chatflow/pkg/session"
)

// Version is the release version, overridden at build time with -ldflags "-X".
var Version = "0.1.0-dev"

// App is the high-level entry point for the chatflow library.
// It wires the flow store, the interpreter, the session manager and the
// observers behind a small API; the parts stay reachable for advanced use.
type App struct {
	Sessions *session.Manager
	Flows    *flows.Service
	Streams  *httpAdapter.StreamManager
	Metrics  *observability.Metrics

	engine     *runtime.Engine
	flowStore  ports.FlowStore
	versions   ports.VersionStore
	store      ports.SessionStore
	caller     ports.APICaller
	locker     ports.DistributedLocker
	clock      ports.Clock
	sinks      []ports.EventSink
	hooks      []domain.LifecycleHooks
	logger     *slog.Logger
	runtimeOpt []runtime.EngineOption
	sessionOpt []session.Option
	closers    []func() error
}

// Option defines a functional option for configuring the App.
type Option func(*App)

// WithFlowStore replaces the in-memory flow store.
func WithFlowStore(s ports.FlowStore) Option {
	return func(a *App) {
		a.flowStore = s
	}
}

// WithVersionStore replaces the in-memory version store.
func WithVersionStore(s ports.VersionStore) Option {
	return func(a *App) {
		a.versions = s
	}
}

// WithSessionStore replaces the in-memory session store.
func WithSessionStore(s ports.SessionStore) Option {
	return func(a *App) {
		a.store = s
	}
}

// WithAPICaller replaces the HTTP client used by api nodes.
func WithAPICaller(c ports.APICaller) Option {
	return func(a *App) {
		a.caller = c
	}
}

// WithLocker enables cross-process session serialization.
func WithLocker(l ports.DistributedLocker) Option {
	return func(a *App) {
		a.locker = l
	}
}

// WithClock sets the time source of the interpreter and the flow service.
func WithClock(c ports.Clock) Option {
	return func(a *App) {
		a.clock = c
	}
}

// WithEventSink adds an observer of session events. It may be given several times.
func WithEventSink(s ports.EventSink) Option {
	return func(a *App) {
		a.sinks = append(a.sinks, s)
	}
}

// WithLifecycleHooks registers observability hooks. It may be given several times.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(a *App) {
		a.hooks = append(a.hooks, hooks)
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// WithStepBudget bounds the node executions of one synchronous run.
func WithStepBudget(n int) Option {
	return func(a *App) {
		a.runtimeOpt = append(a.runtimeOpt, runtime.WithStepBudget(n))
	}
}

// WithAPITimeouts sets the default and maximum timeout of api nodes.
func WithAPITimeouts(def, max time.Duration) Option {
	return func(a *App) {
		a.runtimeOpt = append(a.runtimeOpt, runtime.WithAPITimeouts(def, max))
	}
}

// WithMaxInputSize sets the largest accepted user input in bytes. Zero disables the limit.
func WithMaxInputSize(n int) Option {
	return func(a *App) {
		a.sessionOpt = append(a.sessionOpt, session.WithMaxInputSize(n))
	}
}

// WithCloser registers a cleanup function run by Close, e.g. a store connection.
func WithCloser(fn func() error) Option {
	return func(a *App) {
		a.closers = append(a.closers, fn)
	}
}

// New initializes an App. Every collaborator defaults to an in-memory or
// standard implementation, so New() alone gives a working interpreter.
func New(opts ...Option) *App {
	a := &App{}
	for _, opt := range opts {
		opt(a)
	}

	if a.logger == nil {
		a.logger = logging.NewNop()
	}
	if a.clock == nil {
		a.clock = ports.SystemClock{}
	}
	if a.flowStore == nil {
		a.flowStore = memory.NewFlowStore()
	}
	if a.versions == nil {
		a.versions = memory.NewVersionStore()
	}
	if a.store == nil {
		a.store = memory.NewStore(memory.WithClock(a.clock))
	}
	if a.caller == nil {
		a.caller = apicall.NewCaller(apicall.WithLogger(a.logger))
	}

	a.Flows = flows.NewService(a.flowStore, a.versions, flows.WithClock(a.clock), flows.WithLogger(a.logger))
	a.Streams = httpAdapter.NewStreamManager(httpAdapter.WithStreamLogger(a.logger))
	a.Metrics = observability.NewMetrics()

	sinks := append([]ports.EventSink{a.Metrics, a.Flows.StatsRecorder(), a.Streams}, a.sinks...)
	hooks := append([]domain.LifecycleHooks{a.Metrics.Hooks()}, a.hooks...)

	runtimeOpts := []runtime.EngineOption{
		runtime.WithAPICaller(a.caller),
		runtime.WithEventSink(observability.Multi(sinks...)),
		runtime.WithLifecycleHooks(observability.MergeHooks(hooks...)),
		runtime.WithClock(a.clock),
		runtime.WithLogger(a.logger),
	}
	a.engine = runtime.NewEngine(a.flowStore, a.store, append(runtimeOpts, a.runtimeOpt...)...)

	sessionOpts := []session.Option{session.WithLogger(a.logger)}
	if a.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(a.locker))
	}
	a.Sessions = session.NewManager(a.engine, a.store, append(sessionOpts, a.sessionOpt...)...)

	return a
}

// LoadFlows reads every flow definition in dir into the flow store, replacing
// flows with the same ID. It returns the number of flows loaded.
func (a *App) LoadFlows(ctx context.Context, dir string) (int, error) {
	repo, err := file.LoadDir(dir)
	if err != nil {
		return 0, err
	}
	loaded := repo.Flows()
	for _, f := range loaded {
		if _, err := a.flowStore.FindByID(ctx, f.ID); err == nil {
			err = a.flowStore.Save(ctx, f)
		} else if errors.Is(err, domain.ErrFlowNotFound) {
			err = a.flowStore.Insert(ctx, f)
		}
		if err != nil {
			return 0, fmt.Errorf("flow %s: %w", f.ID, err)
		}
		a.logger.Info("Flow loaded", "flow_id", f.ID, "status", f.Status)
	}
	return len(loaded), nil
}

// Start begins a session on an active flow.
func (a *App) Start(ctx context.Context, flowID, userID string, metadata map[string]any) (*domain.Session, error) {
	return a.Sessions.Start(ctx, flowID, userID, metadata)
}

// Send submits user input to a waiting session.
func (a *App) Send(ctx context.Context, sessionID, input string) (*domain.Session, error) {
	return a.Sessions.ProcessInput(ctx, sessionID, input)
}

// Handler returns the HTTP API, including /metrics and the SSE event stream.
func (a *App) Handler() http.Handler {
	return httpAdapter.NewHandler(a.Sessions, a.Flows,
		httpAdapter.WithStreams(a.Streams),
		httpAdapter.WithMetricsHandler(a.Metrics.Handler()),
		httpAdapter.WithVersion(Version),
		httpAdapter.WithLogger(a.logger),
	)
}

// Close runs the registered closers in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
