package database

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/notistore/internal/models"
	"github.com/charlesng35/notistore/internal/policy"
)

var commandForOperation = map[policy.Operation]string{
	policy.OperationRead:   "SELECT",
	policy.OperationInsert: "INSERT",
	policy.OperationUpdate: "UPDATE",
	policy.OperationDelete: "DELETE",
}

// RowLevelSecurityStatements renders rules into postgres row-level security DDL for table.
// The statements are idempotent: existing policies with the same name are replaced.
// REPLICA IDENTITY FULL makes logical replication carry complete old row images.
func RowLevelSecurityStatements(table string, rules *policy.RuleSet) []string {
	quotedTable := quoteIdent(table)
	stmts := []string{
		fmt.Sprintf("ALTER TABLE %s ENABLE ROW LEVEL SECURITY", quotedTable),
	}

	for _, rule := range rules.Rules() {
		name := quoteIdent(rule.Name)
		stmts = append(stmts, fmt.Sprintf("DROP POLICY IF EXISTS %s ON %s", name, quotedTable))

		command := commandForOperation[rule.Operation]
		var clause string
		switch rule.Operation {
		case policy.OperationInsert:
			clause = fmt.Sprintf("WITH CHECK (%s)", rule.Expression)
		case policy.OperationUpdate:
			clause = fmt.Sprintf("USING (%s) WITH CHECK (%s)", rule.Expression, rule.Expression)
		default:
			clause = fmt.Sprintf("USING (%s)", rule.Expression)
		}
		stmts = append(stmts, fmt.Sprintf("CREATE POLICY %s ON %s FOR %s %s", name, quotedTable, command, clause))
	}

	stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s REPLICA IDENTITY FULL", quotedTable))
	return stmts
}

// ApplyRowLevelSecurity installs the notification policies inside a single transaction.
func ApplyRowLevelSecurity(db *gorm.DB, rules *policy.RuleSet) error {
	if rules == nil {
		rules = policy.DefaultRules()
	}
	stmts := RowLevelSecurityStatements(models.Notification{}.TableName(), rules)

	return db.Transaction(func(tx *gorm.DB) error {
		for _, stmt := range stmts {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("%s: %w", stmt, err)
			}
		}
		return nil
	})
}

// BindCaller scopes the caller identity to the current postgres transaction so database
// policies see the same identity as the in-process gate. It is a no-op on other dialects.
func BindCaller(tx *gorm.DB, callerID string) error {
	if Dialect(tx) != DialectPostgres {
		return nil
	}
	return tx.Exec("SELECT set_config(?, ?, true)", policy.CurrentUserSetting, callerID).Error
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
