package clickhouse

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN(ClientConfig{
		Host:         "ch",
		Port:         9000,
		Database:     "saxo",
		User:         "default",
		DialTimeout:  5 * time.Second,
		AsyncInsert:  true,
		WaitForAsync: true,
	})
	require.True(t, strings.HasPrefix(dsn, "clickhouse://default:@ch:9000/saxo?dial_timeout=5s"))
	require.Contains(t, dsn, "&async_insert=1&wait_for_async_insert=1")
}

func TestBuildDSNHTTP(t *testing.T) {
	dsn := buildDSN(ClientConfig{Host: "ch", Port: 8123, Database: "saxo", UseHTTP: true})
	require.Equal(t, "clickhouse+http://:@ch:8123/saxo", dsn)
}

func TestTickSchema(t *testing.T) {
	stmts := TickSchema("saxo", "ticks")
	require.Len(t, stmts, 2)
	require.Contains(t, stmts[1], "saxo.ticks")
	require.Contains(t, stmts[1], "ORDER BY (symbol, ts)")
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient()
	require.Error(t, err)
}
