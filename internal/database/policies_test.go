package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/notistore/internal/policy"
)

func TestRowLevelSecurityStatements(t *testing.T) {
	stmts := RowLevelSecurityStatements("notifications", policy.DefaultRules())

	require.Equal(t, `ALTER TABLE "notifications" ENABLE ROW LEVEL SECURITY`, stmts[0])
	require.Equal(t, `ALTER TABLE "notifications" REPLICA IDENTITY FULL`, stmts[len(stmts)-1])

	owner := "user_id = current_setting('app.current_user_id', true)"
	require.Contains(t, stmts, `DROP POLICY IF EXISTS "notifications_select_own" ON "notifications"`)
	require.Contains(t, stmts, `CREATE POLICY "notifications_select_own" ON "notifications" FOR SELECT USING (`+owner+`)`)
	require.Contains(t, stmts, `CREATE POLICY "notifications_insert_own" ON "notifications" FOR INSERT WITH CHECK (`+owner+`)`)
	require.Contains(t, stmts, `CREATE POLICY "notifications_insert_any" ON "notifications" FOR INSERT WITH CHECK (true)`)
	require.Contains(t, stmts, `CREATE POLICY "notifications_update_own" ON "notifications" FOR UPDATE USING (`+owner+`) WITH CHECK (`+owner+`)`)
	require.Contains(t, stmts, `CREATE POLICY "notifications_delete_own" ON "notifications" FOR DELETE USING (`+owner+`)`)

	// enable + (drop, create) per rule + replica identity
	require.Len(t, stmts, 1+2*len(policy.DefaultRules().Rules())+1)
}

func TestQuoteIdentEscapesQuotes(t *testing.T) {
	require.Equal(t, `"we""ird"`, quoteIdent(`we"ird`))
}
