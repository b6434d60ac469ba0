package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultRulesEvaluate(t *testing.T) {
	rules := DefaultRules()

	owner := Caller{ID: "u1"}
	other := Caller{ID: "u2"}
	anonymous := Caller{}
	row := Row{UserID: "u1"}

	cases := []struct {
		name    string
		op      Operation
		caller  Caller
		allowed bool
		rule    string
	}{
		{"owner reads", OperationRead, owner, true, RuleSelectOwn},
		{"other cannot read", OperationRead, other, false, ""},
		{"owner inserts for self", OperationInsert, owner, true, RuleInsertOwn},
		{"other inserts for owner", OperationInsert, other, true, RuleInsertAny},
		{"owner updates", OperationUpdate, owner, true, RuleUpdateOwn},
		{"other cannot update", OperationUpdate, other, false, ""},
		{"owner deletes", OperationDelete, owner, true, RuleDeleteOwn},
		{"other cannot delete", OperationDelete, other, false, ""},
		{"anonymous cannot read", OperationRead, anonymous, false, ""},
		{"system caller cannot read foreign rows", OperationRead, Caller{ID: "svc", System: true}, false, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision := rules.Evaluate(tc.op, tc.caller, row)
			require.Equal(t, tc.op, decision.Operation)
			require.Equal(t, tc.allowed, decision.Allowed)
			require.Equal(t, tc.rule, decision.Rule)
		})
	}
}

func TestOwnerPredicateRejectsEmptyOwner(t *testing.T) {
	require.False(t, IsOwner(Caller{}, Row{}))
}

func TestDefaultRulesShape(t *testing.T) {
	rules := DefaultRules().Rules()
	require.Len(t, rules, 5)

	names := make([]string, 0, len(rules))
	for _, rule := range rules {
		names = append(names, rule.Name)
	}
	require.Equal(t, []string{RuleSelectOwn, RuleInsertOwn, RuleInsertAny, RuleUpdateOwn, RuleDeleteOwn}, names)

	require.Len(t, DefaultRules().ForOperation(OperationInsert), 2)
	for _, op := range []Operation{OperationRead, OperationUpdate, OperationDelete} {
		require.Len(t, DefaultRules().ForOperation(op), 1, op)
	}
}

func TestEvaluateWithoutRulesDenies(t *testing.T) {
	set := MustRuleSet(Rule{Name: "read_all", Operation: OperationRead, Predicate: Always, Expression: "true"})

	require.True(t, set.Evaluate(OperationRead, Caller{ID: "x"}, Row{}).Allowed)
	require.False(t, set.Evaluate(OperationUpdate, Caller{ID: "x"}, Row{}).Allowed)

	var empty *RuleSet
	require.False(t, empty.Evaluate(OperationRead, Caller{ID: "x"}, Row{}).Allowed)
}

func TestNewRuleSetValidation(t *testing.T) {
	valid := Rule{Name: "r", Operation: OperationRead, Predicate: Always, Expression: "true"}

	_, err := NewRuleSet(Rule{Operation: OperationRead, Predicate: Always, Expression: "true"})
	require.True(t, errors.Is(err, errEmptyName))

	_, err = NewRuleSet(Rule{Name: "x", Operation: "truncate", Predicate: Always, Expression: "true"})
	require.True(t, errors.Is(err, errUnknownOp))

	_, err = NewRuleSet(Rule{Name: "x", Operation: OperationRead, Expression: "true"})
	require.True(t, errors.Is(err, errNilPredicate))

	_, err = NewRuleSet(Rule{Name: "x", Operation: OperationRead, Predicate: Always})
	require.True(t, errors.Is(err, errEmptyExpression))

	_, err = NewRuleSet(valid, valid)
	require.True(t, errors.Is(err, errDuplicateRule))

	require.Panics(t, func() { MustRuleSet(valid, valid) })
}

func TestRulesReturnsCopy(t *testing.T) {
	set := DefaultRules()
	rules := set.Rules()
	rules[0].Name = "mutated"
	require.Equal(t, RuleSelectOwn, set.Rules()[0].Name)
}
