// Package fetch implements the retrieval engine. Every attempt ends in
// a classified Outcome value; the engine itself never retries.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/arcadehq/listing-harvester/internal/harvest"
	"github.com/arcadehq/listing-harvester/internal/telemetry"
)

// Result is the raw product of one strategy fetch before the engine
// classifies it. Getters return whatever body they saw even alongside
// an error so block pages behind 4xx answers still get scanned.
type Result struct {
	StatusCode int
	FinalURL   string
	Body       []byte
}

// Getter performs the raw retrieval for one strategy.
type Getter interface {
	Get(ctx context.Context, rawURL string, id harvest.Identity) (Result, error)
}

// Archiver persists raw page bodies for successful fetches.
type Archiver interface {
	SavePage(ctx context.Context, pageURL string, body []byte) (string, error)
}

// Config controls the engine shared by every strategy.
type Config struct {
	Timeout           time.Duration
	DelayMin          time.Duration
	DelayMax          time.Duration
	RequestsPerMinute int
	MaxBodyBytes      int64
	BlockIndicators   []string
}

// Engine selects an identity, paces the request, dispatches to the
// strategy's getter and classifies the result.
type Engine struct {
	cfg      Config
	pool     harvest.IdentityPool
	getters  map[harvest.Strategy]Getter
	pacer    *pacer
	hosts    *hostLimiter
	archiver Archiver
	logger   *zap.Logger
}

// New builds an Engine. The archiver may be nil; the logger too.
func New(cfg Config, pool harvest.IdentityPool, getters map[harvest.Strategy]Getter, archiver Archiver, logger *zap.Logger) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:      cfg,
		pool:     pool,
		getters:  getters,
		pacer:    newPacer(cfg.DelayMin, cfg.DelayMax),
		hosts:    newHostLimiter(cfg.RequestsPerMinute),
		archiver: archiver,
		logger:   logger,
	}
}

// Fetch performs one retrieval attempt. The returned outcome is always
// usable; inspect its Kind.
func (e *Engine) Fetch(ctx context.Context, req harvest.Request) harvest.Outcome {
	start := time.Now()
	id := e.pool.Select()

	getter, ok := e.getters[req.Strategy]
	if !ok {
		return e.finish(ctx, harvest.Outcome{
			Kind:     harvest.OutcomeTransportError,
			URL:      req.URL,
			FinalURL: req.URL,
			Identity: id,
			Err:      fmt.Errorf("no fetcher registered for strategy %q", req.Strategy),
		}, req, start)
	}

	if err := e.pace(ctx, req.URL); err != nil {
		return e.finish(ctx, harvest.Outcome{
			Kind:     classifyError(err),
			URL:      req.URL,
			FinalURL: req.URL,
			Identity: id,
			Err:      err,
		}, req, start)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	res, err := getter.Get(attemptCtx, req.URL, id)
	cancel()

	body := res.Body
	if e.cfg.MaxBodyBytes > 0 && int64(len(body)) > e.cfg.MaxBodyBytes {
		body = body[:e.cfg.MaxBodyBytes]
	}

	out := harvest.Outcome{
		URL:        req.URL,
		FinalURL:   res.FinalURL,
		StatusCode: res.StatusCode,
		Body:       body,
		Identity:   id,
	}
	if out.FinalURL == "" {
		out.FinalURL = req.URL
	}

	if reason, hit := scanForBlock(body, e.cfg.BlockIndicators); hit {
		out.Kind = harvest.OutcomeBlocked
		out.BlockReason = reason
	} else if err != nil {
		out.Kind = classifyError(err)
		out.Err = err
	} else if res.StatusCode >= 400 {
		out.Kind = harvest.OutcomeTransportError
		out.Err = fmt.Errorf("http status %d", res.StatusCode)
	} else {
		out.Kind = harvest.OutcomeSuccess
	}
	return e.finish(ctx, out, req, start)
}

// pace applies the randomized pre-request delay and the per-host rate
// gate, in that order.
func (e *Engine) pace(ctx context.Context, rawURL string) error {
	if err := e.pacer.wait(ctx); err != nil {
		return fmt.Errorf("pre-request delay: %w", err)
	}
	return e.hosts.wait(ctx, rawURL)
}

func (e *Engine) finish(ctx context.Context, out harvest.Outcome, req harvest.Request, start time.Time) harvest.Outcome {
	out.Duration = time.Since(start)
	telemetry.ObserveFetch(req.URL, string(req.Strategy), string(out.Kind), len(out.Body), out.Duration)

	if out.Kind == harvest.OutcomeSuccess && e.archiver != nil && len(out.Body) > 0 {
		if _, err := e.archiver.SavePage(ctx, out.FinalURL, out.Body); err != nil {
			e.logger.Warn("page archive failed", zap.String("url", out.FinalURL), zap.Error(err))
		}
	}

	e.logger.Debug("fetch finished",
		zap.String("url", req.URL),
		zap.String("strategy", string(req.Strategy)),
		zap.String("outcome", string(out.Kind)),
		zap.Int("status", out.StatusCode),
		zap.String("identity", out.Identity.Label),
		zap.Duration("duration", out.Duration),
	)
	return out
}

func classifyError(err error) harvest.OutcomeKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return harvest.OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return harvest.OutcomeTimeout
	}
	return harvest.OutcomeTransportError
}
