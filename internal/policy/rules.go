package policy

// Rule names used by the notifications table.
const (
	RuleSelectOwn = "notifications_select_own"
	RuleInsertOwn = "notifications_insert_own"
	RuleInsertAny = "notifications_insert_any"
	RuleUpdateOwn = "notifications_update_own"
	RuleDeleteOwn = "notifications_delete_own"
)

// CurrentUserSetting is the session setting carrying the caller identity for database policies.
const CurrentUserSetting = "app.current_user_id"

var ownerExpression = "user_id = current_setting('" + CurrentUserSetting + "', true)"

// IsOwner holds when the caller's identity matches the row owner.
func IsOwner(caller Caller, row Row) bool {
	return caller.Authenticated() && caller.ID == row.UserID
}

// Always holds unconditionally.
func Always(Caller, Row) bool {
	return true
}

// DefaultRules returns the notification rule set. Inserts are permitted for anyone so one
// party can deliver a notification to another; every other operation is owner-only.
func DefaultRules() *RuleSet {
	return MustRuleSet(
		Rule{Name: RuleSelectOwn, Operation: OperationRead, Predicate: IsOwner, Expression: ownerExpression},
		Rule{Name: RuleInsertOwn, Operation: OperationInsert, Predicate: IsOwner, Expression: ownerExpression},
		Rule{Name: RuleInsertAny, Operation: OperationInsert, Predicate: Always, Expression: "true"},
		Rule{Name: RuleUpdateOwn, Operation: OperationUpdate, Predicate: IsOwner, Expression: ownerExpression},
		Rule{Name: RuleDeleteOwn, Operation: OperationDelete, Predicate: IsOwner, Expression: ownerExpression},
	)
}
