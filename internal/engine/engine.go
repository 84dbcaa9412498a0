/*
Package engine is the command interpretation pipeline.

Interpret runs an utterance through the stages in order and returns the
first answer:

	normalize → custom command → learned pattern → core command → fallback

and then records the interaction. It never returns an error: store
failures, action failures and panics all degrade to a textual reply.
*/
package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/khanglvm/tetris/internal/commands"
	"github.com/khanglvm/tetris/internal/dispatch"
	"github.com/khanglvm/tetris/internal/fallback"
	"github.com/khanglvm/tetris/internal/learning"
	"github.com/khanglvm/tetris/internal/utterance"
	"go.uber.org/zap"
)

// Source names the stage that produced a reply.
type Source string

const (
	SourceCommand   Source = "command"
	SourcePattern   Source = "pattern"
	SourceDispatch  Source = "dispatch"
	SourceFallback  Source = "fallback"
	SourceRecovered Source = "recovered"
)

// Result is the detailed outcome of one interpretation.
type Result struct {
	TurnID     string `json:"turn_id"`
	Input      string `json:"input"`
	Normalized string `json:"normalized"`
	Response   string `json:"response"`
	Source     Source `json:"source"`

	// Trigger is set when a custom command answered.
	Trigger string `json:"trigger,omitempty"`
}

// Deps are the collaborators of an Engine. Resolver, Learner and Fallback
// are required.
type Deps struct {
	Normalizer *utterance.Normalizer
	Resolver   *commands.Resolver
	Learner    *learning.Learner
	Dispatcher dispatch.Dispatcher
	Fallback   *fallback.Responder
	Logger     *zap.Logger
}

// Engine interprets utterances. It is safe for concurrent use.
type Engine struct {
	normalizer *utterance.Normalizer
	resolver   *commands.Resolver
	learner    *learning.Learner
	dispatcher dispatch.Dispatcher
	fallback   *fallback.Responder
	logger     *zap.Logger
}

// New creates an engine.
func New(d Deps) (*Engine, error) {
	if d.Resolver == nil || d.Learner == nil || d.Fallback == nil {
		return nil, fmt.Errorf("engine requires a resolver, a learner and a fallback responder")
	}
	if d.Normalizer == nil {
		d.Normalizer = utterance.NewNormalizer(nil)
	}
	if d.Dispatcher == nil {
		d.Dispatcher = dispatch.None
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}

	return &Engine{
		normalizer: d.Normalizer,
		resolver:   d.Resolver,
		learner:    d.Learner,
		dispatcher: d.Dispatcher,
		fallback:   d.Fallback,
		logger:     d.Logger,
	}, nil
}

// Normalizer returns the engine's normalizer.
func (e *Engine) Normalizer() *utterance.Normalizer { return e.normalizer }

// Resolver returns the engine's custom command resolver.
func (e *Engine) Resolver() *commands.Resolver { return e.resolver }

// Learner returns the engine's pattern learner.
func (e *Engine) Learner() *learning.Learner { return e.learner }

// Interpret returns the reply to raw.
func (e *Engine) Interpret(ctx context.Context, raw string) string {
	return e.InterpretDetailed(ctx, raw).Response
}

// InterpretDetailed returns the reply to raw with the stage that produced it.
func (e *Engine) InterpretDetailed(ctx context.Context, raw string) (res Result) {
	res = Result{TurnID: uuid.NewString(), Input: raw}
	log := e.logger.With(zap.String("turn_id", res.TurnID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("interpretation panicked", zap.Any("panic", r), zap.Stack("stack"))
			if res.Response == "" {
				res.Response = e.fallback.Generic()
				res.Source = SourceRecovered
			}
		}
	}()

	res.Normalized = e.normalizer.Process(raw)

	// Custom commands short-circuit learning; the turn is still logged.
	if match, ok := e.resolver.Resolve(ctx, res.Normalized); ok {
		res.Response, res.Source, res.Trigger = match.Response, SourceCommand, match.Trigger
		log.Debug("custom command matched", zap.String("trigger", match.Trigger), zap.Error(match.Err))
		if err := e.learner.LogTurn(ctx, res.Normalized, res.Response, learning.ContextCommand); err != nil {
			log.Warn("failed to log command turn", zap.Error(err))
		}
		return res
	}

	if reply, ok := e.learner.Lookup(ctx, res.Normalized); ok {
		res.Response, res.Source = reply, SourcePattern
	} else if reply, ok := e.dispatcher.Dispatch(ctx, res.Normalized); ok {
		res.Response, res.Source = reply, SourceDispatch
	} else {
		res.Response, res.Source = e.fallback.Respond(ctx, res.Normalized), SourceFallback
	}
	log.Debug("utterance answered", zap.String("source", string(res.Source)))

	if err := e.learner.Record(ctx, res.Normalized, res.Response); err != nil {
		log.Warn("failed to record interaction", zap.Error(err))
	}
	return res
}
