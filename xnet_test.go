package xnet_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/X-rus/xnet"
)

func TestVersion(t *testing.T) {
	assert.NotEmpty(t, xnet.Version)
}

func TestGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "42"})
		fmt.Fprintf(w, "hello %s", r.URL.Query().Get("name"))
	}))
	defer srv.Close()

	r := xnet.NewRequest()
	defer r.Close()
	r.Cookies = xnet.NewCookieJar()

	resp, err := r.Get(context.Background(), srv.URL+"/?name=xnet")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	text, err := resp.Text()
	require.NoError(t, err)
	assert.Equal(t, "hello xnet", text)
	sid, ok := r.Cookies.Get("sid")
	assert.True(t, ok)
	assert.Equal(t, "42", sid)
}

func TestParseProxy(t *testing.T) {
	px, err := xnet.ParseProxy("socks5://127.0.0.1:1080")
	require.NoError(t, err)
	assert.Equal(t, xnet.ProxySOCKS5, px.Type())

	chain, err := xnet.ParseProxyChain("http://10.0.0.1:3128", "socks4a://10.0.0.2:1080")
	require.NoError(t, err)
	assert.Equal(t, xnet.ProxyChain, chain.Type())

	_, err = xnet.ParseProxy("ftp://x")
	assert.Error(t, err)
}

func TestErrorType(t *testing.T) {
	r := xnet.NewRequest()
	defer r.Close()
	_, err := r.Get(context.Background(), "not a url")
	require.Error(t, err)
	assert.Equal(t, xnet.ErrorTypeValidation, xnet.GetErrorType(err))
}
