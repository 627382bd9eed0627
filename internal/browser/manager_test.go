package browser

import (
	"path/filepath"
	"testing"

	"chat-bridge/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectURL(t *testing.T) {
	got := ConnectURL("ws://browserless:3000/", "deepseek-persistent-session", "")
	assert.Equal(t,
		"ws://browserless:3000/chromium?sessionId=deepseek-persistent-session&keepAlive=true&--user-data-dir=/tmp/session-deepseek-persistent-session",
		got)

	withToken := ConnectURL("wss://cloud.example.com", "s1", "t0k&n")
	assert.Equal(t,
		"wss://cloud.example.com/chromium?sessionId=s1&keepAlive=true&--user-data-dir=/tmp/session-s1&token=t0k%26n",
		withToken)
}

func TestSessionFiles(t *testing.T) {
	cfg := &config.Config{
		BrowserConfig: &config.BrowserConfig{SessionDir: "sessions"},
		SiteConfig:    &config.SiteConfig{Name: "deepseek"},
	}

	storage, meta := SessionFiles(cfg)
	assert.Equal(t, filepath.Join("sessions", "deepseek_storage.json"), storage)
	assert.Equal(t, filepath.Join("sessions", "deepseek_meta.json"), meta)
}

func TestStateCookies(t *testing.T) {
	state := []byte(`{
		"cookies": [
			{"name": "ds_session_id", "value": "abc", "domain": "chat.deepseek.com", "path": "/",
			 "expires": -1, "httpOnly": true, "secure": true, "sameSite": "Lax"}
		],
		"origins": []
	}`)

	cookies, err := stateCookies(state)
	require.NoError(t, err)
	require.Len(t, cookies, 1)
	assert.Equal(t, "ds_session_id", cookies[0].Name)
	assert.Equal(t, "chat.deepseek.com", *cookies[0].Domain)
	assert.Equal(t, "Lax", string(*cookies[0].SameSite))

	_, err = stateCookies([]byte(`not json`))
	assert.Error(t, err)
}
