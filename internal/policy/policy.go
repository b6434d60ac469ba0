package policy

import (
	"errors"
	"fmt"
	"strings"
)

// Operation names the kind of access being requested against a row.
type Operation string

const (
	OperationRead   Operation = "read"
	OperationInsert Operation = "insert"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Operations lists every operation kind in evaluation order.
var Operations = []Operation{OperationRead, OperationInsert, OperationUpdate, OperationDelete}

// Valid reports whether op is a known operation kind.
func (op Operation) Valid() bool {
	switch op {
	case OperationRead, OperationInsert, OperationUpdate, OperationDelete:
		return true
	default:
		return false
	}
}

// Caller identifies who is performing an operation.
type Caller struct {
	ID     string
	System bool
}

// Authenticated reports whether the caller carries an identity.
func (c Caller) Authenticated() bool {
	return strings.TrimSpace(c.ID) != ""
}

// Row is the slice of a record a predicate is allowed to inspect. For inserts it is the payload.
type Row struct {
	UserID string
}

// Predicate decides whether caller may perform an operation on row. Predicates must be pure.
type Predicate func(caller Caller, row Row) bool

// Rule binds a named predicate to an operation. Expression is the SQL rendering of the
// predicate used when the rule is mirrored into database row-level security.
type Rule struct {
	Name       string
	Operation  Operation
	Predicate  Predicate
	Expression string
}

// Decision is the outcome of evaluating a rule set.
type Decision struct {
	Operation Operation
	Allowed   bool
	// Rule is the name of the first rule that granted access, empty when denied.
	Rule string
}

var (
	errEmptyName       = errors.New("policy: rule name is required")
	errUnknownOp       = errors.New("policy: unknown operation")
	errNilPredicate    = errors.New("policy: predicate is required")
	errDuplicateRule   = errors.New("policy: rule already defined")
	errEmptyExpression = errors.New("policy: expression is required")
)

// RuleSet is an ordered, immutable collection of rules.
type RuleSet struct {
	rules []Rule
}

// NewRuleSet validates and collects rules in the order given.
func NewRuleSet(rules ...Rule) (*RuleSet, error) {
	seen := make(map[string]struct{}, len(rules))
	out := make([]Rule, 0, len(rules))

	for _, rule := range rules {
		rule.Name = strings.TrimSpace(rule.Name)
		switch {
		case rule.Name == "":
			return nil, errEmptyName
		case !rule.Operation.Valid():
			return nil, fmt.Errorf("%w: %q (rule %s)", errUnknownOp, rule.Operation, rule.Name)
		case rule.Predicate == nil:
			return nil, fmt.Errorf("%w: %s", errNilPredicate, rule.Name)
		case strings.TrimSpace(rule.Expression) == "":
			return nil, fmt.Errorf("%w: %s", errEmptyExpression, rule.Name)
		}
		if _, exists := seen[rule.Name]; exists {
			return nil, fmt.Errorf("%w: %s", errDuplicateRule, rule.Name)
		}
		seen[rule.Name] = struct{}{}
		out = append(out, rule)
	}

	return &RuleSet{rules: out}, nil
}

// MustRuleSet is NewRuleSet that panics on invalid input.
func MustRuleSet(rules ...Rule) *RuleSet {
	set, err := NewRuleSet(rules...)
	if err != nil {
		panic(err)
	}
	return set
}

// Rules returns a copy of every rule in order.
func (s *RuleSet) Rules() []Rule {
	if s == nil {
		return nil
	}
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// ForOperation returns the rules that apply to op, in order.
func (s *RuleSet) ForOperation(op Operation) []Rule {
	if s == nil {
		return nil
	}
	var out []Rule
	for _, rule := range s.rules {
		if rule.Operation == op {
			out = append(out, rule)
		}
	}
	return out
}

// Evaluate grants op when any rule for that operation holds. Operations without rules are denied.
func (s *RuleSet) Evaluate(op Operation, caller Caller, row Row) Decision {
	decision := Decision{Operation: op}
	for _, rule := range s.ForOperation(op) {
		if rule.Predicate(caller, row) {
			decision.Allowed = true
			decision.Rule = rule.Name
			return decision
		}
	}
	return decision
}
