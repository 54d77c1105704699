package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// RuleID identifies an opening/averaging rule. Each rule is usable at most
// once per position.
type RuleID string

const (
	RuleFirstTouch  RuleID = "OPEN_FIRST_TOUCH"
	RuleMidRetrace  RuleID = "OPEN_MID_RETRACE"
	RuleDeepRetrace RuleID = "OPEN_DEEP_RETRACE"
)

// AllOpeningRules is the full opening rule set a new position starts from.
var AllOpeningRules = []RuleID{RuleFirstTouch, RuleMidRetrace, RuleDeepRetrace}

// ClosingRuleID identifies a closing rule.
type ClosingRuleID string

const (
	CloseTakeProfit     ClosingRuleID = "TAKE_PROFIT"
	CloseTrail50Percent ClosingRuleID = "TRAIL_50PERCENT"
	CloseTrail3Ticks    ClosingRuleID = "TRAIL_3TICKS"
	CloseHardStopLoss   ClosingRuleID = "HARD_STOP_LOSS"
	CloseMarketPhaseEnd ClosingRuleID = "MARKET_PHASE_END"
)

// DefaultClosingRules seeds closingRules of a new position when the strategy
// configuration does not narrow it. MARKET_PHASE_END is forced and never part
// of the set.
var DefaultClosingRules = []ClosingRuleID{CloseTakeProfit, CloseTrail50Percent, CloseTrail3Ticks, CloseHardStopLoss}

// ParseClosingRule converts a configuration string into a ClosingRuleID.
func ParseClosingRule(s string) (ClosingRuleID, error) {
	id := ClosingRuleID(strings.ToUpper(strings.TrimSpace(s)))
	switch id {
	case CloseTakeProfit, CloseTrail50Percent, CloseTrail3Ticks, CloseHardStopLoss:
		return id, nil
	case CloseMarketPhaseEnd:
		return "", fmt.Errorf("closing rule %s is forced and cannot be configured", id)
	default:
		return "", fmt.Errorf("unknown closing rule %q", s)
	}
}

// RuleSet is an immutable set of opening rules. Without returns a new set.
type RuleSet struct {
	m map[RuleID]struct{}
}

// NewRuleSet builds a set from the given rules.
func NewRuleSet(rules ...RuleID) RuleSet {
	m := make(map[RuleID]struct{}, len(rules))
	for _, r := range rules {
		m[r] = struct{}{}
	}
	return RuleSet{m: m}
}

func (s RuleSet) Has(r RuleID) bool {
	_, ok := s.m[r]
	return ok
}

func (s RuleSet) Len() int { return len(s.m) }

func (s RuleSet) Empty() bool { return len(s.m) == 0 }

// Without returns a copy of the set minus r.
func (s RuleSet) Without(r RuleID) RuleSet {
	out := make(map[RuleID]struct{}, len(s.m))
	for k := range s.m {
		if k != r {
			out[k] = struct{}{}
		}
	}
	return RuleSet{m: out}
}

// Slice returns the members in a stable order.
func (s RuleSet) Slice() []RuleID {
	out := make([]RuleID, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ClosingRuleSet is an immutable set of closing rules.
type ClosingRuleSet struct {
	m map[ClosingRuleID]struct{}
}

// NewClosingRuleSet builds a set from the given rules.
func NewClosingRuleSet(rules ...ClosingRuleID) ClosingRuleSet {
	m := make(map[ClosingRuleID]struct{}, len(rules))
	for _, r := range rules {
		m[r] = struct{}{}
	}
	return ClosingRuleSet{m: m}
}

func (s ClosingRuleSet) Has(r ClosingRuleID) bool {
	_, ok := s.m[r]
	return ok
}

func (s ClosingRuleSet) Len() int { return len(s.m) }

// Without returns a copy of the set minus r.
func (s ClosingRuleSet) Without(r ClosingRuleID) ClosingRuleSet {
	out := make(map[ClosingRuleID]struct{}, len(s.m))
	for k := range s.m {
		if k != r {
			out[k] = struct{}{}
		}
	}
	return ClosingRuleSet{m: out}
}

// Slice returns the members in a stable order.
func (s ClosingRuleSet) Slice() []ClosingRuleID {
	out := make([]ClosingRuleID, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s RuleSet) MarshalJSON() ([]byte, error) { return json.Marshal(s.Slice()) }

func (s *RuleSet) UnmarshalJSON(b []byte) error {
	var rules []RuleID
	if err := json.Unmarshal(b, &rules); err != nil {
		return err
	}
	*s = NewRuleSet(rules...)
	return nil
}

func (s ClosingRuleSet) MarshalJSON() ([]byte, error) { return json.Marshal(s.Slice()) }

func (s *ClosingRuleSet) UnmarshalJSON(b []byte) error {
	var rules []ClosingRuleID
	if err := json.Unmarshal(b, &rules); err != nil {
		return err
	}
	*s = NewClosingRuleSet(rules...)
	return nil
}
