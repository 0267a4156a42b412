// Package matcher reconciles normalized part records across the three
// document sources. It is a pure, deterministic function over materialized
// data: identical inputs produce an identical ComparisonResult.
package matcher

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bom-validator/internal/model"
)

// ErrInsufficientSources is returned when Compare is invoked with fewer than
// two record sets: there is nothing to reconcile against.
var ErrInsufficientSources = eris.New("matcher: at least two sources required")

// Config holds the tunable matching parameters. Zero values fall back to
// the defaults below.
type Config struct {
	// MinConfidence rejects fuzzy candidates scoring lower.
	MinConfidence float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
	// RecognizedTokenWeight multiplies the weight of dictionary tokens.
	RecognizedTokenWeight float64 `yaml:"recognized_token_weight" mapstructure:"recognized_token_weight"`
	// TokenBlend is the share of the score taken from token overlap; the
	// remainder comes from description edit-distance similarity.
	TokenBlend float64 `yaml:"token_blend" mapstructure:"token_blend"`
}

// DefaultConfig returns the default matching parameters.
func DefaultConfig() Config {
	return Config{
		MinConfidence:         0.45,
		RecognizedTokenWeight: 2.0,
		TokenBlend:            0.5,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MinConfidence == 0 {
		c.MinConfidence = def.MinConfidence
	}
	if c.RecognizedTokenWeight == 0 {
		c.RecognizedTokenWeight = def.RecognizedTokenWeight
	}
	if c.TokenBlend == 0 {
		c.TokenBlend = def.TokenBlend
	}
	return c
}

// ref addresses one input record by source and position.
type ref struct {
	role model.SourceRole
	idx  int
}

// rolePriority orders CS > BOM > SAP for deterministic tie-breaking.
var rolePriority = map[model.SourceRole]int{
	model.SourceCS:  0,
	model.SourceBOM: 1,
	model.SourceSAP: 2,
}

func (r ref) less(o ref) bool {
	if rolePriority[r.role] != rolePriority[o.role] {
		return rolePriority[r.role] < rolePriority[o.role]
	}
	return r.idx < o.idx
}

// Compare reconciles the given record sets. The result is a partition:
// every input record lands in exactly one group slot or one unmatched entry.
func Compare(recordsBySource map[model.SourceRole][]model.PartRecord, cfg Config) (*model.ComparisonResult, error) {
	if len(recordsBySource) < 2 {
		return nil, eris.Wrapf(ErrInsufficientSources, "got %d", len(recordsBySource))
	}
	cfg = cfg.withDefaults()

	m := &run{
		cfg:      cfg,
		records:  recordsBySource,
		assigned: make(map[ref]bool),
		sawCand:  make(map[ref]bool),
	}

	identGroups := m.identifierPass()
	fuzzyGroups := m.fuzzyPass()

	result := &model.ComparisonResult{
		Groups: append(identGroups, fuzzyGroups...),
	}
	for i := range result.Groups {
		result.Groups[i].Discrepancies = discrepancies(result.Groups[i].Slots)
	}
	result.Unmatched = m.residue()

	zap.L().Debug("matcher: comparison complete",
		zap.Int("groups", len(result.Groups)),
		zap.Int("unmatched", len(result.Unmatched)),
	)
	return result, nil
}

// run holds the mutable state of one Compare call.
type run struct {
	cfg      Config
	records  map[model.SourceRole][]model.PartRecord
	assigned map[ref]bool
	sawCand  map[ref]bool // record had at least one scored fuzzy candidate
}

func (m *run) roles() []model.SourceRole {
	var roles []model.SourceRole
	for _, role := range model.AllSources {
		if _, ok := m.records[role]; ok {
			roles = append(roles, role)
		}
	}
	return roles
}

func (m *run) record(r ref) *model.PartRecord {
	return &m.records[r.role][r.idx]
}

// identifierPass groups records sharing a normalized identifier across two
// or more sources. Exact and highest-priority: consumed records never reach
// the fuzzy pass.
func (m *run) identifierPass() []model.MatchGroup {
	// identifier value -> role -> ordered unconsumed refs
	byID := make(map[string]map[model.SourceRole][]ref)
	for _, role := range m.roles() {
		for i := range m.records[role] {
			id := normalizeIdentifier(m.records[role][i].Identifier)
			if id == "" {
				continue
			}
			if byID[id] == nil {
				byID[id] = make(map[model.SourceRole][]ref)
			}
			byID[id][role] = append(byID[id][role], ref{role, i})
		}
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var groups []model.MatchGroup
	for _, id := range ids {
		perRole := byID[id]
		if len(perRole) < 2 {
			continue
		}
		// One record per role per group; repeated identifiers within a
		// source pair up positionally.
		for {
			slots := make(map[model.SourceRole]*model.PartRecord)
			var taken []ref
			for _, role := range model.AllSources {
				for _, r := range perRole[role] {
					if !m.assigned[r] {
						m.assigned[r] = true
						slots[role] = m.record(r)
						taken = append(taken, r)
						break
					}
				}
			}
			if len(slots) < 2 {
				// Fewer than two sources left for this id: release any
				// lone taker back to the fuzzy pass.
				for _, r := range taken {
					m.assigned[r] = false
				}
				break
			}
			groups = append(groups, model.MatchGroup{
				Slots:      slots,
				MatchBasis: model.BasisIdentifier,
				Confidence: 1.0,
			})
		}
	}
	return groups
}

// candidate is one scored cross-source pair considered by the greedy pass.
type candidate struct {
	a, b  ref
	score float64
}

// fuzzyPass scores all remaining cross-source pairs and assigns them
// greedily in descending confidence order.
func (m *run) fuzzyPass() []model.MatchGroup {
	var cands []candidate
	roles := m.roles()
	for i := 0; i < len(roles); i++ {
		for j := i + 1; j < len(roles); j++ {
			for ai := range m.records[roles[i]] {
				a := ref{roles[i], ai}
				if m.assigned[a] {
					continue
				}
				for bi := range m.records[roles[j]] {
					b := ref{roles[j], bi}
					if m.assigned[b] {
						continue
					}
					score := pairScore(m.record(a), m.record(b), m.cfg.RecognizedTokenWeight, m.cfg.TokenBlend)
					if score <= 0 {
						continue
					}
					m.sawCand[a] = true
					m.sawCand[b] = true
					if score < m.cfg.MinConfidence {
						continue
					}
					cands = append(cands, candidate{a: a, b: b, score: score})
				}
			}
		}
	}

	// Inputs are ordered explicitly before the greedy pass: descending
	// score, then source priority, then position.
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		if cands[i].a != cands[j].a {
			return cands[i].a.less(cands[j].a)
		}
		return cands[i].b.less(cands[j].b)
	})

	var groups []model.MatchGroup
	groupOf := make(map[ref]int)

	for _, c := range cands {
		aAssigned, bAssigned := m.assigned[c.a], m.assigned[c.b]
		switch {
		case !aAssigned && !bAssigned:
			groups = append(groups, model.MatchGroup{
				Slots: map[model.SourceRole]*model.PartRecord{
					c.a.role: m.record(c.a),
					c.b.role: m.record(c.b),
				},
				MatchBasis: model.BasisAbbreviationFuzzy,
				Confidence: c.score,
			})
			m.assigned[c.a] = true
			m.assigned[c.b] = true
			groupOf[c.a] = len(groups) - 1
			groupOf[c.b] = len(groups) - 1

		case aAssigned != bAssigned:
			// Extend an existing fuzzy group into the third source.
			joined, free := c.a, c.b
			if bAssigned {
				joined, free = c.b, c.a
			}
			gi, ok := groupOf[joined]
			if !ok {
				continue // consumed by the identifier pass, never reopened
			}
			g := &groups[gi]
			if g.Slots[free.role] != nil {
				continue
			}
			g.Slots[free.role] = m.record(free)
			if c.score < g.Confidence {
				g.Confidence = c.score
			}
			m.assigned[free] = true
			groupOf[free] = gi

		default:
			// Both consumed; greedy never reassigns.
		}
	}

	return groups
}

// residue turns every record left unassigned into an UnmatchedRecord.
func (m *run) residue() []model.UnmatchedRecord {
	var out []model.UnmatchedRecord
	for _, role := range m.roles() {
		for i := range m.records[role] {
			r := ref{role, i}
			if m.assigned[r] {
				continue
			}
			reason := model.ReasonNoCandidate
			if m.sawCand[r] {
				reason = model.ReasonBelowConfidenceThreshold
			}
			out = append(out, model.UnmatchedRecord{
				Record: m.records[role][i],
				Source: role,
				Reason: reason,
			})
		}
	}
	return out
}

// normalizeIdentifier picks the item number, falling back to the component
// number, and strips formatting noise so "010" and "10" collide.
func normalizeIdentifier(id model.Identifier) string {
	v := id.ItemNumber
	if v == "" {
		v = id.ComponentNumber
	}
	v = strings.ToUpper(strings.TrimSpace(v))
	trimmed := strings.TrimLeft(v, "0")
	if trimmed == "" && v != "" {
		return "0"
	}
	return trimmed
}
