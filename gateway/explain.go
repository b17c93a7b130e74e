package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mdnaeem95/stupify-extension/cache"
	"github.com/mdnaeem95/stupify-extension/errors"
	"github.com/mdnaeem95/stupify-extension/queue"
)

// ExplainEndpoint is the backend path for explanation requests.
const ExplainEndpoint = "/api/explain"

// Explanation is the result of an explanation request, from cache or network.
type Explanation struct {
	Question  string     `json:"question"`
	Tier      cache.Tier `json:"tier"`
	Answer    string     `json:"answer"`
	FromCache bool       `json:"from_cache"`
}

type explainRequest struct {
	Question string     `json:"question"`
	Tier     cache.Tier `json:"tier"`
}

type explainResponse struct {
	Answer string `json:"answer"`
}

// GetExplanation answers a question at the given complexity tier. The
// explanation cache is checked first and a hit short-circuits the network
// even while online. A fresh network answer is written through to the cache.
// Offline with no cached answer fails with ErrOfflineNoCache; the usage
// limiter refuses fresh requests beyond the per-minute cap with
// ErrRateLimited (cache hits are exempt).
func (g *Gateway) GetExplanation(ctx context.Context, question string, tier cache.Tier) (*Explanation, error) {
	if !cache.IsValidTier(string(tier)) {
		return nil, errors.Newf("invalid complexity tier %q", tier)
	}

	entry, err := g.cache.Get(question, tier)
	if err != nil {
		g.logger.Warnw("Explanation cache lookup failed", "error", err)
	}
	if entry != nil {
		g.logger.Debugw("Explanation served from cache",
			"question", cache.Normalize(question),
			"tier", tier,
		)
		g.recordUsage(tier, true)
		return &Explanation{
			Question:  entry.Question,
			Tier:      tier,
			Answer:    entry.Answer,
			FromCache: true,
		}, nil
	}

	if g.monitor.IsOffline() {
		return nil, errors.Wrapf(errors.ErrOfflineNoCache, "no cached explanation for tier %s", tier)
	}

	if err := g.limiter.allow(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(explainRequest{Question: question, Tier: tier})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode explanation request")
	}

	resp, err := g.Do(ctx, Request{
		Endpoint:     ExplainEndpoint,
		Method:       http.MethodPost,
		Body:         body,
		RequiresAuth: true,
		SkipQueue:    true,
	})
	if err != nil {
		return nil, err
	}

	var decoded explainResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return nil, errors.Wrap(err, "failed to decode explanation response")
	}

	g.cache.Put(question, tier, decoded.Answer)
	g.recordUsage(tier, false)

	return &Explanation{
		Question:  question,
		Tier:      tier,
		Answer:    decoded.Answer,
		FromCache: false,
	}, nil
}

// recordUsage buffers an analytics event for the request. Best effort.
func (g *Gateway) recordUsage(tier cache.Tier, fromCache bool) {
	if g.buffer == nil {
		return
	}
	if err := g.buffer.Record("explanation_requested", map[string]interface{}{
		"tier":       string(tier),
		"from_cache": fromCache,
	}); err != nil {
		g.logger.Debugw("Failed to record usage event", "error", err)
	}
}

// SubmitRating sends a rating for an explanation, queueing it while offline.
func (g *Gateway) SubmitRating(ctx context.Context, explanationID string, rating int, comment string) error {
	body, err := json.Marshal(map[string]interface{}{
		"explanation_id": explanationID,
		"rating":         rating,
		"comment":        comment,
	})
	if err != nil {
		return errors.Wrap(err, "failed to encode rating")
	}

	_, err = g.Do(ctx, Request{
		Endpoint:     "/api/ratings",
		Method:       http.MethodPost,
		Body:         body,
		Kind:         queue.KindRating,
		RequiresAuth: true,
	})
	return err
}
