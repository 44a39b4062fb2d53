package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationName(t *testing.T) {
	assert.Equal(t, "db.select", OperationName(`  select * from "user_profiles"`))
	assert.Equal(t, "db.insert", OperationName(`INSERT INTO "user_profiles"`))
	assert.Equal(t, "db.update", OperationName(`UPDATE x SET a=1`))
	assert.Equal(t, "db.delete", OperationName(`DELETE FROM x`))
	assert.Equal(t, "db.query", OperationName(`WITH t AS (SELECT 1) SELECT * FROM t`))
	assert.Equal(t, "db.unknown", OperationName(""))
}

func TestSanitizeSQL(t *testing.T) {
	p, err := NewOTELPlugin(PluginConfig{MaxSQLLength: 40})
	require.NoError(t, err)

	assert.Equal(t, "UPDATE u SET password='***'", p.sanitizeSQL("UPDATE u SET password = 'hunter2'"))
	assert.Len(t, p.sanitizeSQL("SELECT "+string(make([]byte, 100))), 43)
}
