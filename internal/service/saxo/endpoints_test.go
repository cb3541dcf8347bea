package saxo

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"SaxoBridge/internal/domain/models"
)

func TestIdentifiers(t *testing.T) {
	require.Equal(t, "527bd5b5d689e2c32ae974c6229ff785", ContextID("john"))

	ref := ReferenceID("john", "FxSpot", "21")
	require.True(t, strings.HasPrefix(ref, "21-"))
	require.Len(t, ref, len("21-")+32)
	require.Equal(t, ref, ReferenceID("john", "FxSpot", "21"))
	require.NotEqual(t, ref, ReferenceID("john", "Stock", "21"))
}

func TestHorizon(t *testing.T) {
	for period, want := range map[string]int{"1min": 1, "day": 1440, "week": 10080, "month": 43200} {
		got, err := Horizon(period)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := Horizon("5min")
	require.ErrorIs(t, err, models.ErrInvalidRequest)
}

func TestEndpoints(t *testing.T) {
	e := NewEndpoints("https://auth.example/sim/token/", "https://api.example/openapi", "stream.example/openapi/streamingws")
	require.Equal(t, "wss://stream.example/openapi/streamingws", e.StreamBase)
	require.Equal(t, "https://stream.example/openapi/streamingws/authorize?contextid=ctx", e.ExtendURL("ctx"))
	require.Equal(t, "https://auth.example/sim/token/token", e.TokenURL())

	su, err := url.Parse(e.StreamURL("abc", "ctx"))
	require.NoError(t, err)
	require.Equal(t, "/openapi/streamingws/connect", su.Path)
	require.Equal(t, "BEARER abc", su.Query().Get("authorization"))
	require.Equal(t, "ctx", su.Query().Get("contextId"))

	au, err := url.Parse(e.AuthorizeURL("cid", "saxobank.john", "http://localhost/api/acb"))
	require.NoError(t, err)
	require.Equal(t, "code", au.Query().Get("response_type"))
	require.Equal(t, "saxobank.john", au.Query().Get("state"))
	require.Equal(t, "http://localhost/api/acb", au.Query().Get("redirect_uri"))

	local := NewEndpoints("http://a", "http://b", "ws://127.0.0.1:9000")
	require.Equal(t, "http://127.0.0.1:9000/authorize?contextid=x", local.ExtendURL("x"))
}
