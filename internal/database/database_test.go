package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db, err := Open("file:database_test?mode=memory&cache=shared", logger.Default.LogMode(logger.Silent))
	require.NoError(t, err)

	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

func TestIsPostgres(t *testing.T) {
	assert.True(t, IsPostgres("postgres://u:p@localhost/db"))
	assert.True(t, IsPostgres("postgresql://localhost/db"))
	assert.False(t, IsPostgres("reliefdesk.db"))
}

func TestNowIsUTCMicro(t *testing.T) {
	now := Now()
	assert.Equal(t, time.UTC, now.Location())
	assert.Zero(t, now.Nanosecond()%1000)
}
