// Package relay answers chat requests: it normalizes the conversation, serves
// repeats from the response cache and otherwise asks the upstream provider.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/pario-ai/chatrelay/pkg/cache/fifo"
	"github.com/pario-ai/chatrelay/pkg/config"
	"github.com/pario-ai/chatrelay/pkg/models"
	"github.com/pario-ai/chatrelay/pkg/normalize"
	"github.com/pario-ai/chatrelay/pkg/observability"
	"github.com/pario-ai/chatrelay/pkg/tracker"
	"github.com/pario-ai/chatrelay/pkg/upstream"
)

// Disclaimer is attached to every successful reply.
const Disclaimer = "This output is generated for academic demonstrative purposes and does not constitute legal advice."

// Service is the chat relay. It is safe for concurrent use.
type Service struct {
	normalizer *normalize.Normalizer
	cache      *fifo.Cache
	dispatcher upstream.Dispatcher
	tracker    tracker.Tracker
	metrics    *observability.Metrics
}

// Options carries the optional collaborators of a Service.
type Options struct {
	Tracker tracker.Tracker
	Metrics *observability.Metrics
}

// Result is the outcome of a successful Chat call.
type Result struct {
	Response models.ChatResponse
	CacheHit bool
}

// New creates a Service from already constructed parts.
func New(n *normalize.Normalizer, c *fifo.Cache, d upstream.Dispatcher, opts Options) *Service {
	return &Service{
		normalizer: n,
		cache:      c,
		dispatcher: d,
		tracker:    opts.Tracker,
		metrics:    opts.Metrics,
	}
}

// NewFromConfig builds the normalizer and cache described by cfg and wires
// them to d.
func NewFromConfig(cfg *config.Config, d upstream.Dispatcher, opts Options) (*Service, error) {
	n, err := normalize.New(cfg.OpenAI.Model, cfg.Chat.MaxTokens, cfg.Chat.MaxHistory)
	if err != nil {
		return nil, fmt.Errorf("init normalizer: %w", err)
	}

	var cacheOpts []fifo.Option
	if opts.Metrics != nil {
		m := opts.Metrics
		cacheOpts = append(cacheOpts, fifo.WithEvictHook(func(models.CacheEntry) {
			m.Cache(observability.CacheEvict)
		}))
	}
	c, err := fifo.New(cfg.Cache.Limit, cacheOpts...)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}

	return New(n, c, d, opts), nil
}

// Chat answers the raw request body. Errors are *models.RelayError values.
// Nothing reaches the cache or the provider unless the body is valid, and a
// failed upstream call is never cached.
func (s *Service) Chat(ctx context.Context, requestID string, body []byte) (*Result, error) {
	req, err := s.normalizer.Decode(body)
	if err != nil {
		s.request(observability.OutcomeInvalid)
		return nil, err
	}
	if req.Dropped > 0 {
		fiberlog.Debugf("[%s] trimmed %d oldest turns", requestID, req.Dropped)
		if s.metrics != nil {
			s.metrics.TrimmedTurns.Add(float64(req.Dropped))
		}
	}

	key := fifo.Key(req)
	if entry, ok := s.cache.Lookup(key); ok {
		fiberlog.Debugf("[%s] cache hit %s", requestID, key[:12])
		s.cacheEvent(observability.CacheHit)
		s.request(observability.OutcomeOK)
		s.record(ctx, models.UsageRecord{
			RequestID: requestID,
			Model:     entry.Model,
			CacheHit:  true,
			Turns:     len(req.Turns),
		})
		return &Result{Response: respond(entry), CacheHit: true}, nil
	}
	s.cacheEvent(observability.CacheMiss)

	start := time.Now()
	completion, err := s.dispatch(ctx, req)
	if s.metrics != nil {
		s.metrics.ObserveUpstreamLatency(time.Since(start))
	}
	if err != nil {
		re := models.AsRelayError(err)
		if re.Type == models.ErrorTypeInternal {
			fiberlog.Errorf("[%s] relay failure: %v", requestID, re)
			s.request(observability.OutcomeInternalError)
		} else {
			fiberlog.Warnf("[%s] upstream failure: %v", requestID, re)
			s.request(observability.OutcomeUpstreamError)
		}
		return nil, re
	}

	entry := models.CacheEntry{Key: key, Reply: completion.Reply, Model: req.Model}
	if s.cache.Insert(entry) {
		s.cacheEvent(observability.CacheStore)
	}
	if s.metrics != nil {
		s.metrics.CacheEntries.Set(float64(s.cache.Len()))
	}

	s.request(observability.OutcomeOK)
	s.record(ctx, models.UsageRecord{
		RequestID:        requestID,
		Model:            req.Model,
		UpstreamModel:    completion.Model,
		Turns:            len(req.Turns),
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
		TotalTokens:      completion.Usage.TotalTokens,
	})
	return &Result{Response: respond(entry)}, nil
}

// dispatch calls the provider. Any failure the dispatcher did not classify
// is still reported as an upstream error.
func (s *Service) dispatch(ctx context.Context, req *models.ChatRequest) (*models.Completion, error) {
	completion, err := s.dispatcher.Dispatch(ctx, req)
	if err != nil {
		var re *models.RelayError
		if errors.As(err, &re) {
			return nil, re
		}
		return nil, models.NewUpstreamError(err.Error(), err)
	}
	if completion == nil {
		return nil, models.NewInternalError("dispatcher returned no completion", nil)
	}
	return completion, nil
}

// MaxRecent caps the number of usage records Stats returns.
const MaxRecent = 100

// Stats reports cache counters and, when a tracker is configured, usage per
// model, tokens spent in the last hour and the newest recent records.
func (s *Service) Stats(ctx context.Context, recent int) (*models.StatsResponse, error) {
	resp := &models.StatsResponse{Cache: s.cache.Stats()}
	if s.tracker == nil {
		return resp, nil
	}
	summaries, err := s.tracker.Summary(ctx)
	if err != nil {
		return nil, models.NewInternalError("usage summary failed", err)
	}
	resp.Usage = summaries

	total, err := s.tracker.TotalSince(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		return nil, models.NewInternalError("usage total failed", err)
	}
	resp.TokensLastHour = total

	if recent > 0 {
		resp.Recent, err = s.tracker.Recent(ctx, min(recent, MaxRecent))
		if err != nil {
			return nil, models.NewInternalError("recent usage failed", err)
		}
	}
	return resp, nil
}

// RateLimited records a request rejected before it reached the relay.
func (s *Service) RateLimited() {
	s.request(observability.OutcomeRateLimited)
}

func respond(e models.CacheEntry) models.ChatResponse {
	return models.ChatResponse{Reply: e.Reply, Model: e.Model, Disclaimer: Disclaimer}
}

func (s *Service) record(ctx context.Context, rec models.UsageRecord) {
	if s.tracker == nil {
		return
	}
	if err := s.tracker.Record(ctx, rec); err != nil {
		fiberlog.Warnf("[%s] failed to record usage: %v", rec.RequestID, err)
	}
}

func (s *Service) request(outcome string) {
	if s.metrics != nil {
		s.metrics.Request(outcome)
	}
}

func (s *Service) cacheEvent(event string) {
	if s.metrics != nil {
		s.metrics.Cache(event)
	}
}
