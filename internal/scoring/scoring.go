// Package scoring implements the field-specific weighted vote that turns
// competing metadata claims into canonical values.
//
// ScoreEntity is pure: it never mutates state, and identical inputs always
// yield identical output. Persisting results is the caller's job.
package scoring

import (
	"sort"
	"time"

	"github.com/tanaste/tanaste/internal/types"
)

// Config holds the scoring thresholds. Zero values are replaced by the
// defaults below.
type Config struct {
	AutoLinkThreshold     float64
	ConflictThreshold     float64
	ConflictEpsilon       float64
	StaleClaimDecayDays   int
	StaleClaimDecayFactor float64
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		AutoLinkThreshold:     0.85,
		ConflictThreshold:     0.60,
		ConflictEpsilon:       0.10,
		StaleClaimDecayDays:   90,
		StaleClaimDecayFactor: 0.5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.AutoLinkThreshold == 0 {
		c.AutoLinkThreshold = d.AutoLinkThreshold
	}
	if c.ConflictThreshold == 0 {
		c.ConflictThreshold = d.ConflictThreshold
	}
	if c.ConflictEpsilon == 0 {
		c.ConflictEpsilon = d.ConflictEpsilon
	}
	if c.StaleClaimDecayDays == 0 {
		c.StaleClaimDecayDays = d.StaleClaimDecayDays
	}
	if c.StaleClaimDecayFactor == 0 {
		c.StaleClaimDecayFactor = d.StaleClaimDecayFactor
	}
	return c
}

// Weights carries the provider weight configuration for one scoring run.
// Field overrides the Global weight when a provider is known to excel for
// a specific field.
type Weights struct {
	Global map[string]float64
	Field  map[string]map[string]float64
}

// defaultProviderWeight applies to claims from providers absent from the
// weight maps, so a harvest from an unregistered provider still counts
// without dominating configured ones.
const defaultProviderWeight = 0.5

func (w Weights) weightFor(providerID, field string) float64 {
	if fw, ok := w.Field[providerID]; ok {
		if v, ok := fw[field]; ok {
			return v
		}
	}
	if v, ok := w.Global[providerID]; ok {
		return v
	}
	return defaultProviderWeight
}

// Similarity decides which claim values belong to the same vote group.
// Values mapping to the same key are merged. The shipped strategy is exact
// match after normalisation; one strategy per deployment.
type Similarity interface {
	Key(value string) string
}

// ExactSimilarity groups values that are equal after trimming and case
// folding.
type ExactSimilarity struct{}

// Key implements Similarity.
func (ExactSimilarity) Key(value string) string {
	return types.NormalizeValue(value)
}

// FieldScore is the winning verdict for one claim key.
type FieldScore struct {
	Value        string
	Confidence   float64
	IsConflicted bool
	IsUserLocked bool
}

// Result maps claim keys to their winning verdicts.
type Result struct {
	Fields map[string]FieldScore
}

// Overall is the gate confidence: the arithmetic mean of per-field
// confidences. An empty result scores zero.
func (r Result) Overall() float64 {
	if len(r.Fields) == 0 {
		return 0
	}
	var sum float64
	for _, f := range r.Fields {
		sum += f.Confidence
	}
	return sum / float64(len(r.Fields))
}

// HasUserLock reports whether any field was decided by a user lock.
func (r Result) HasUserLock() bool {
	for _, f := range r.Fields {
		if f.IsUserLocked {
			return true
		}
	}
	return false
}

// Engine computes canonical values from claim histories.
type Engine struct {
	cfg Config
	sim Similarity
	now func() time.Time
}

// NewEngine builds an engine with the exact-match similarity strategy.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg.withDefaults(), sim: ExactSimilarity{}, now: time.Now}
}

// WithSimilarity swaps the grouping strategy.
func (e *Engine) WithSimilarity(sim Similarity) *Engine {
	e.sim = sim
	return e
}

// WithClock fixes the decay reference time. Tests use this to make stale
// decay deterministic.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Config returns the engine's effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// decay is a single-step multiplier: claims within the freshness window
// count fully, older claims are multiplied once by the decay factor.
func (e *Engine) decay(claimedAt time.Time) float64 {
	age := e.now().Sub(claimedAt)
	if age > time.Duration(e.cfg.StaleClaimDecayDays)*24*time.Hour {
		return e.cfg.StaleClaimDecayFactor
	}
	return 1.0
}

// claimNewer orders claims for tie-breaking: most recent claimed-at first,
// then higher raw confidence, then lexicographic provider id.
func claimNewer(a, b *types.MetadataClaim) bool {
	if !a.ClaimedAt.Equal(b.ClaimedAt) {
		return a.ClaimedAt.After(b.ClaimedAt)
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.ProviderID < b.ProviderID
}

type voteGroup struct {
	key     string
	support float64
	claims  []*types.MetadataClaim
}

// representative returns the group's canonical value: the value from the
// claim with highest raw confidence, ties broken by recency then provider.
func (g *voteGroup) representative() *types.MetadataClaim {
	best := g.claims[0]
	for _, c := range g.claims[1:] {
		if c.Confidence > best.Confidence ||
			(c.Confidence == best.Confidence && claimNewer(c, best)) {
			best = c
		}
	}
	return best
}

// ScoreEntity computes a winning (value, confidence, conflicted) per field
// across all the entity's claims.
func (e *Engine) ScoreEntity(claims []*types.MetadataClaim, weights Weights) Result {
	byField := make(map[string][]*types.MetadataClaim)
	for _, c := range claims {
		byField[c.Key] = append(byField[c.Key], c)
	}

	result := Result{Fields: make(map[string]FieldScore, len(byField))}
	for field, fieldClaims := range byField {
		result.Fields[field] = e.scoreField(field, fieldClaims, weights)
	}
	return result
}

func (e *Engine) scoreField(field string, claims []*types.MetadataClaim, weights Weights) FieldScore {
	// User-lock override: the most recent locked claim wins outright.
	// Automated providers can never displace it.
	var locked *types.MetadataClaim
	for _, c := range claims {
		if c.IsUserLocked && (locked == nil || claimNewer(c, locked)) {
			locked = c
		}
	}
	if locked != nil {
		return FieldScore{
			Value:        locked.Value,
			Confidence:   1.0,
			IsConflicted: false,
			IsUserLocked: true,
		}
	}

	groups := make(map[string]*voteGroup)
	var order []string
	for _, c := range claims {
		key := e.sim.Key(c.Value)
		g, ok := groups[key]
		if !ok {
			g = &voteGroup{key: key}
			groups[key] = g
			order = append(order, key)
		}
		g.support += weights.weightFor(c.ProviderID, field) * c.Confidence * e.decay(c.ClaimedAt)
		g.claims = append(g.claims, c)
	}

	sorted := make([]*voteGroup, 0, len(groups))
	for _, key := range order {
		sorted = append(sorted, groups[key])
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].support != sorted[j].support {
			return sorted[i].support > sorted[j].support
		}
		// Equal support: the group with the winning tie-break claim leads.
		return claimNewer(sorted[i].representative(), sorted[j].representative())
	})

	winner := sorted[0]
	var total float64
	for _, g := range sorted {
		total += g.support
	}

	share := 0.0
	if total > 0 {
		share = winner.support / total
	}
	// Confidence blends consensus share with the winning claim's own
	// certainty. A lone low-confidence claim wins its field outright but
	// still scores low, so single-source ingests face the auto-link gate.
	confidence := share * winner.representative().Confidence

	conflicted := false
	if len(sorted) > 1 {
		runnerUp := sorted[1]
		conflicted = share < e.cfg.ConflictThreshold ||
			winner.support-runnerUp.support < e.cfg.ConflictEpsilon
	}

	return FieldScore{
		Value:        winner.representative().Value,
		Confidence:   confidence,
		IsConflicted: conflicted,
	}
}

// Canonicals converts a score result into canonical-value rows for an
// entity, ready for UpsertBatch.
func (r Result) Canonicals(entityID string, entityType types.EntityType, scoredAt time.Time) []*types.CanonicalValue {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*types.CanonicalValue, 0, len(keys))
	for _, k := range keys {
		f := r.Fields[k]
		out = append(out, &types.CanonicalValue{
			EntityID:     entityID,
			EntityType:   entityType,
			Key:          k,
			Value:        f.Value,
			Confidence:   f.Confidence,
			LastScoredAt: scoredAt,
			IsConflicted: f.IsConflicted,
		})
	}
	return out
}
