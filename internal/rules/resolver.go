// Package rules implements the declarative rule-evaluation engine: field
// resolution against market/self/peer state, compound AND/OR/NOT condition
// groups, per-rule cooldowns, and weighted-score aggregation with
// tie-break-by-declaration-order.
package rules

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/autarch/runtime/pkg/logger"
	"github.com/autarch/runtime/pkg/models"
)

// EvaluationContext bundles everything a FieldResolver needs to turn a
// field name into a value: the evaluating agent's own state, the current
// market snapshot, and (for peer fields) an immutable view of its siblings'
// last-known state, keyed by agentId. PeerStates never contains the
// evaluating agent's own entry.
type EvaluationContext struct {
	AgentState *models.AgentState
	MarketData models.MarketData
	PeerStates map[int]models.AgentState
}

// FieldResolver maps a textual field name to a numeric or string value.
type FieldResolver struct{}

// NewFieldResolver constructs a FieldResolver. It is stateless — field
// resolution never needs more than the EvaluationContext passed per call.
func NewFieldResolver() *FieldResolver {
	return &FieldResolver{}
}

// Resolve returns the value named by field against ctx, and whether the
// value came from a peer entry whose status is currently "error" (in which
// case the caller must mark the resulting ConditionResult as stale).
func (r *FieldResolver) Resolve(field string, ctx EvaluationContext) (value interface{}, peerStale bool) {
	if strings.HasPrefix(field, "peer.") {
		return r.resolvePeerField(field, ctx)
	}

	if v, ok := resolveMarketField(field, ctx.MarketData); ok {
		return v, false
	}

	if v, ok := resolveSelfField(ctx.AgentState, field); ok {
		return v, false
	}

	logger.Warn("rules: unknown field", zap.String("field", field))
	return 0, false
}

func resolveMarketField(field string, md models.MarketData) (interface{}, bool) {
	switch field {
	case "price":
		return md.Price, true
	case "price_change", "price_change_1m":
		return md.PriceChange1m, true
	case "price_change_5m":
		return md.PriceChange5m, true
	case "price_drop":
		return maxFloat(0, -md.PriceChange1m), true
	case "price_rise":
		return maxFloat(0, md.PriceChange1m), true
	case "volume_change", "volume_change_1m":
		return md.VolumeChange1m, true
	case "volume_spike":
		return maxFloat(0, md.VolumeChange1m), true
	default:
		return nil, false
	}
}

// resolveSelfField resolves one of the self-field names against any
// AgentState — the evaluating agent's own state, or (when reached via a
// peer.<id>.<subfield> path) a peer's last-known state.
func resolveSelfField(s *models.AgentState, field string) (interface{}, bool) {
	if s == nil {
		return nil, false
	}
	switch field {
	case "balance":
		return s.Balance, true
	case "position_size":
		return s.PositionSize, true
	case "consecutive_wins":
		return s.ConsecutiveWins, true
	case "consecutive_errors":
		return s.ConsecutiveErrors, true
	case "tick_count":
		return s.TickCount, true
	case "status":
		return string(s.Status), true
	case "last_trade_amount":
		return s.LastTradeAmount, true
	case "last_trade_result", "last_action":
		return extractTradeResult(s.LastAction), true
	default:
		return nil, false
	}
}

// extractTradeResult pulls the leading verb out of a lastAction string
// ("buy 0.1 SOL" -> "buy"), or "none" if there is no action or it already
// begins with "none".
func extractTradeResult(lastAction *string) string {
	if lastAction == nil {
		return "none"
	}
	fields := strings.Fields(*lastAction)
	if len(fields) == 0 {
		return "none"
	}
	verb := strings.ToLower(fields[0])
	if strings.HasPrefix(verb, "none") {
		return "none"
	}
	return verb
}

// resolvePeerField resolves "peer.<name-or-id>.<subfield>". A malformed key
// (fewer than three dot-separated parts) or a missing peer returns 0; a
// missing peer additionally logs a warning. peerStale reports whether the
// referenced peer's last-known status is "error".
func (r *FieldResolver) resolvePeerField(field string, ctx EvaluationContext) (interface{}, bool) {
	parts := strings.SplitN(field, ".", 3)
	if len(parts) < 3 {
		return 0, false
	}
	ref, subfield := parts[1], parts[2]

	peer, ok := findPeer(ctx.PeerStates, ref)
	if !ok {
		logger.Warn("rules: unknown peer referenced in field", zap.String("field", field), zap.String("peer", ref))
		return 0, false
	}

	v, resolved := resolveSelfField(&peer, subfield)
	if !resolved {
		logger.Warn("rules: unknown peer subfield", zap.String("field", field), zap.String("subfield", subfield))
		return 0, peer.Status == models.StatusError
	}
	return v, peer.Status == models.StatusError
}

func findPeer(peers map[int]models.AgentState, ref string) (models.AgentState, bool) {
	if id, err := strconv.Atoi(ref); err == nil {
		if peer, ok := peers[id]; ok {
			return peer, true
		}
		return models.AgentState{}, false
	}
	for _, peer := range peers {
		if strings.EqualFold(peer.Name, ref) {
			return peer, true
		}
	}
	return models.AgentState{}, false
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
