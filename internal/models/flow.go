// Package models defines flow state structures for multi-turn interactions.
package models

import (
	"strings"
	"time"
)

// FlowKind identifies what a flow is collecting attributes for.
type FlowKind string

const (
	// FlowKindAddCart collects the variant attributes needed to add a
	// product to the user's cart.
	FlowKindAddCart FlowKind = "addCart"
)

// IsValidFlowKind checks if the given flow kind is supported.
func IsValidFlowKind(k FlowKind) bool {
	switch k {
	case FlowKindAddCart:
		return true
	default:
		return false
	}
}

// Attribute names a flow can collect. Declared order matters: color is
// always prompted before size.
const (
	AttributeColor = "color"
	AttributeSize  = "size"
)

// AttributeRequirement is one attribute a flow must collect, together with
// its domain: the ordered set of valid values (lower-cased) computed from
// the subject's variants at flow start.
type AttributeRequirement struct {
	Name   string   `json:"name"`
	Domain []string `json:"domain"`
}

// Match reports whether input is a member of the requirement's domain,
// case-insensitively, and returns the normalized (lower-cased) value.
func (r AttributeRequirement) Match(input string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	for _, val := range r.Domain {
		if strings.ToLower(val) == normalized {
			return normalized, true
		}
	}
	return "", false
}

// FlowRecord is one user's in-progress multi-step interaction. At most one
// record exists per user; starting a new flow replaces any prior one.
type FlowRecord struct {
	UserID    string                 `json:"user_id"`
	ShopID    string                 `json:"shop_id"`
	Kind      FlowKind               `json:"kind"`
	SubjectID string                 `json:"subject_id"`
	Required  []AttributeRequirement `json:"required"`
	Collected map[string]string      `json:"collected,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// NextMissing returns the first required attribute, in declared order, that
// has no collected value yet. The second return is false when every
// requirement is satisfied.
func (f *FlowRecord) NextMissing() (AttributeRequirement, bool) {
	for _, req := range f.Required {
		if _, ok := f.Collected[req.Name]; !ok {
			return req, true
		}
	}
	return AttributeRequirement{}, false
}

// Complete reports whether every required attribute has a collected value.
func (f *FlowRecord) Complete() bool {
	_, missing := f.NextMissing()
	return !missing
}

// StepOutcome reports what the flow engine did with an inbound turn.
type StepOutcome string

const (
	// StepNoActiveFlow means the user has no flow; the caller should fall
	// through to NLU interpretation. Not an error.
	StepNoActiveFlow StepOutcome = "no_active_flow"
	// StepCancelled means the user sent the cancel keyword and the flow
	// was deleted. Not an error.
	StepCancelled StepOutcome = "cancelled"
	// StepPrompted means a prompt for the next missing attribute was sent
	// (either a fresh prompt or a re-prompt after unmatched input).
	StepPrompted StepOutcome = "prompted"
	// StepCompleted means the last attribute was collected, the cart was
	// mutated, and the flow was deleted.
	StepCompleted StepOutcome = "completed"
)
