// Package service composes validation, database presence, tool invocation
// and parsing into the operations exposed by the REST and MCP adapters.
//
// Information Hiding:
// - Temporary and fixed-path tool files managed internally
// - Error taxonomy collapsed into OperationOutcome at this boundary
// - Panics recovered here so adapters never see them
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/richinex/biotools/dbcache"
	"github.com/richinex/biotools/observability"
	"github.com/richinex/biotools/storage"
	"github.com/richinex/biotools/tools"
	"go.opentelemetry.io/otel/attribute"
)

// Config holds per-deployment defaults.
type Config struct {
	DefaultDB     string
	Evalue        float64
	MaxTargetSeqs int
	Outfmt        string
	SpiderHome    string
	// Timeout bounds each tool invocation.
	Timeout time.Duration
	// TempDir holds per-request query files. Empty uses os.TempDir().
	TempDir string
}

// Service is the facade shared by every adapter. Safe for concurrent use.
type Service struct {
	cfg     Config
	invoker tools.Invoker
	cache   *dbcache.Cache
	sink    storage.ArtifactSink
	logger  *log.Logger

	// spider reads and writes fixed paths under its home directory,
	// so predictions run one at a time.
	spiderSem chan struct{}

	version versionCache
}

// New creates a facade.
func New(cfg Config, invoker tools.Invoker, cache *dbcache.Cache) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = tools.DefaultTimeout
	}
	return &Service{
		cfg:       cfg,
		invoker:   invoker,
		cache:     cache,
		sink:      storage.NopSink{},
		spiderSem: make(chan struct{}, 1),
	}
}

// WithArtifactSink sets where unparseable tool output is archived.
func (s *Service) WithArtifactSink(sink storage.ArtifactSink) *Service {
	if sink != nil {
		s.sink = sink
	}
	return s
}

// WithLogger sets the logger.
func (s *Service) WithLogger(logger *log.Logger) *Service {
	s.logger = logger
	return s
}

// Config returns the facade's defaults.
func (s *Service) Config() Config { return s.cfg }

// stopwatch accumulates the time spent invoking tools and parsing output.
type stopwatch struct {
	started time.Time
	total   time.Duration
}

func (w *stopwatch) start() { w.started = time.Now() }

func (w *stopwatch) stop() {
	if !w.started.IsZero() {
		w.total += time.Since(w.started)
		w.started = time.Time{}
	}
}

type operation func(ctx context.Context, clock *stopwatch) (payload interface{}, message string, err error)

// run executes op and converts every result, error or panic into an outcome.
func (s *Service) run(ctx context.Context, name string, attrs []attribute.KeyValue, op operation) (out OperationOutcome) {
	requestID := uuid.NewString()
	attrs = append(attrs, attribute.String("request.id", requestID))
	ctx, span := observability.StartSpan(ctx, "biotools."+name, attrs...)

	clock := &stopwatch{}
	defer func() {
		if r := recover(); r != nil {
			s.logf("[%s] %s panicked: %v", requestID, name, r)
			clock.stop()
			out = OperationOutcome{
				Status:         StatusError,
				Message:        fmt.Sprintf("internal error in %s", name),
				ErrorKind:      KindInternal,
				ProcessingTime: clock.total,
				RequestID:      requestID,
				Err:            fmt.Errorf("panic: %v", r),
			}
		}
		span.SetAttributes(attribute.String("outcome.status", string(out.Status)))
		if out.ErrorKind != "" {
			span.SetAttributes(attribute.String("outcome.error_kind", string(out.ErrorKind)))
		}
		observability.EndSpan(span, out.Err)
	}()

	payload, message, err := op(ctx, clock)
	clock.stop()

	if err != nil {
		kind, msg := classify(err)
		s.logf("[%s] %s failed (%s): %v", requestID, name, kind, err)
		return OperationOutcome{
			Status:         StatusError,
			Message:        msg,
			ErrorKind:      kind,
			ProcessingTime: clock.total,
			RequestID:      requestID,
			Err:            err,
		}
	}

	s.logf("[%s] %s succeeded in %s", requestID, name, clock.total.Round(time.Millisecond))
	return OperationOutcome{
		Status:         StatusSuccess,
		Payload:        payload,
		Message:        message,
		ProcessingTime: clock.total,
		RequestID:      requestID,
	}
}

type invokeResult struct {
	res     tools.Execution
	err     error
	panicked interface{}
}

// invoke runs a tool under the configured timeout. A fired deadline is
// reported as a TimeoutError whichever layer noticed it first. The call
// returns at the deadline even if the invoker ignores ctx; its goroutine
// is left to finish on its own. Invoker panics are re-raised here so run
// can recover them.
func (s *Service) invoke(ctx context.Context, inv tools.Invocation) (tools.Execution, error) {
	inv.Timeout = s.cfg.Timeout
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	spanCtx, span := observability.StartSpan(runCtx, "biotools.invoke", attribute.String("tool", inv.Tool))

	done := make(chan invokeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- invokeResult{panicked: r}
			}
		}()
		res, err := s.invoker.Invoke(spanCtx, inv)
		done <- invokeResult{res: res, err: err}
	}()

	var (
		res tools.Execution
		err error
	)
	select {
	case r := <-done:
		if r.panicked != nil {
			span.End()
			panic(r.panicked)
		}
		res, err = r.res, r.err
	case <-runCtx.Done():
		res, err = tools.Execution{ExitCode: -1}, runCtx.Err()
	}
	span.SetAttributes(attribute.Int("exit_code", res.ExitCode))

	var timeoutErr *tools.TimeoutError
	if err != nil && runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil && !errors.As(err, &timeoutErr) {
		err = &tools.TimeoutError{Tool: inv.Tool, Timeout: s.cfg.Timeout}
	}
	observability.EndSpan(span, err)
	return res, err
}

// archive stores raw output that failed to parse and logs where it went.
func (s *Service) archive(ctx context.Context, kind, name, raw string) {
	uri, err := s.sink.Put(context.WithoutCancel(ctx), kind, name, []byte(raw))
	switch {
	case err != nil:
		s.logf("failed to archive %s output: %v; raw output follows:\n%s", kind, err, raw)
	case uri != "":
		s.logf("archived unparseable %s output to %s", kind, uri)
	default:
		s.logf("unparseable %s output:\n%s", kind, raw)
	}
}

func (s *Service) tempDir() string {
	if s.cfg.TempDir != "" {
		return s.cfg.TempDir
	}
	return os.TempDir()
}

func (s *Service) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
