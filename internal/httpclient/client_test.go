package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateURLRejectsBadSchemes(t *testing.T) {
	c := New(5 * time.Second)

	_, err := c.ValidateURL("file:///etc/passwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")

	_, err = c.ValidateURL("ftp://example.com/data")
	require.Error(t, err)
}

func TestValidateURLBlocksLocalAddresses(t *testing.T) {
	c := New(5 * time.Second)

	for _, u := range []string{
		"http://localhost/api",
		"http://127.0.0.1/api",
		"http://10.0.0.5/api",
		"http://192.168.1.1/api",
		"http://internal.localhost/api",
	} {
		_, err := c.ValidateURL(u)
		assert.Error(t, err, "expected %s to be blocked", u)
	}
}

func TestValidateURLAllowsPublicHTTPS(t *testing.T) {
	c := New(5 * time.Second)

	u, err := c.ValidateURL("https://api.stupify.app/api/explain")
	require.NoError(t, err)
	assert.Equal(t, "api.stupify.app", u.Hostname())
}

func TestWrapClientAllowsTestServers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := WrapClient(srv.Client())
	req, err := http.NewRequest(http.MethodHead, srv.URL, nil)
	require.NoError(t, err)

	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
