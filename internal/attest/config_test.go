package attest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/st3v3nmw/mirrorcheck/internal/proxyconf"
)

func TestMerge(t *testing.T) {
	assert.Equal(t, DefaultConfig().ProxyImage, merge(nil).ProxyImage)

	defaults := proxyconf.Options{proxyconf.DeleteOnGet: false}
	merged := merge(&Config{
		RunID:             "abc",
		ProxyImage:        "remiro:dev",
		SourcePort:        6379,
		ExecuteTimeout:    time.Second,
		ConfigDefaults:    defaults,
		RetryPollInterval: 0,
	})

	assert.Equal(t, "abc", merged.RunID)
	assert.Equal(t, "remiro:dev", merged.ProxyImage)
	assert.Equal(t, "redis:5.0.5", merged.StoreImage)
	assert.Equal(t, 6379, merged.SourcePort)
	assert.Zero(t, merged.DestinationPort)
	assert.Equal(t, 6400, merged.ProxyListenPort)
	assert.Equal(t, time.Second, merged.ExecuteTimeout)
	assert.Equal(t, 100*time.Millisecond, merged.RetryPollInterval)
	assert.Equal(t, defaults, merged.ConfigDefaults)

	// The merged defaults are a copy.
	merged.ConfigDefaults[proxyconf.DeleteOnGet] = true
	assert.Equal(t, false, defaults[proxyconf.DeleteOnGet])
}

func TestDefaultConfigIsFresh(t *testing.T) {
	a, b := DefaultConfig(), DefaultConfig()
	a.ConfigDefaults[proxyconf.Password] = "changed"

	assert.Equal(t, "", b.ConfigDefaults[proxyconf.Password])
}
