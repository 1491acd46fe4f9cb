package proxyconf_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/st3v3nmw/mirrorcheck/internal/proxyconf"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name      string
		overrides proxyconf.Options
	}{
		{name: "No Overrides", overrides: nil},
		{name: "Single Override", overrides: proxyconf.Options{proxyconf.DeleteOnGet: "false"}},
		{name: "All Overridden", overrides: proxyconf.Options{
			proxyconf.DeleteOnGet: false,
			proxyconf.DeleteOnSet: true,
			proxyconf.Password:    "justapass",
			proxyconf.SrcPassword: "s",
			proxyconf.DstPassword: "d",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defaults := proxyconf.Defaults()
			merged := proxyconf.Merge(defaults, tt.overrides)

			for key, def := range defaults {
				want := def
				if v, ok := tt.overrides[key]; ok {
					want = v
				}
				assert.Equal(t, want, merged[key], "option %s", key)
			}

			assert.Len(t, merged, len(defaults))
			assert.Equal(t, proxyconf.Defaults(), defaults, "defaults must not be modified")
		})
	}
}

func TestMergeDoesNotLeakBetweenCalls(t *testing.T) {
	defaults := proxyconf.Defaults()

	first := proxyconf.Merge(defaults, proxyconf.Options{proxyconf.Password: "justapass"})
	second := proxyconf.Merge(defaults, nil)

	assert.Equal(t, "justapass", first[proxyconf.Password])
	assert.Equal(t, "", second[proxyconf.Password])
}

func TestOptionsString(t *testing.T) {
	opts := proxyconf.Merge(proxyconf.Defaults(), proxyconf.Options{
		proxyconf.SrcPassword: "s3cret",
		proxyconf.DstPassword: 1234,
	})

	assert.Equal(t, "s3cret", opts.String(proxyconf.SrcPassword))
	assert.Equal(t, "1234", opts.String(proxyconf.DstPassword))
	assert.Equal(t, "", opts.String(proxyconf.Password))
	assert.Equal(t, "", opts.String("missing"))
}

func TestRender(t *testing.T) {
	doc, err := proxyconf.Render(proxyconf.Defaults(), proxyconf.Options{
		proxyconf.DeleteOnGet: "false",
		proxyconf.DeleteOnSet: "true",
		proxyconf.Password:    "justapass",
	}, "172.18.0.2:6379", "172.18.0.3:6379")
	require.NoError(t, err)

	want := &proxyconf.Document{
		DeleteOnGet: false,
		DeleteOnSet: true,
		Password:    "justapass",
		Source:      proxyconf.Endpoint{Addr: "172.18.0.2:6379"},
		Destination: proxyconf.Endpoint{Addr: "172.18.0.3:6379"},
	}
	assert.Equal(t, want, doc)

	data, err := doc.Encode()
	require.NoError(t, err)

	text := string(data)
	assert.Contains(t, text, "DeleteOnGet = false")
	assert.Contains(t, text, "DeleteOnSet = true")
	assert.Contains(t, text, `Password = "justapass"`)
	assert.Contains(t, text, "[Source]")
	assert.Contains(t, text, `Addr = "172.18.0.2:6379"`)
	assert.Contains(t, text, "[Destination]")

	decoded, err := proxyconf.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, want, decoded)
}

func TestRenderErrors(t *testing.T) {
	tests := []struct {
		name      string
		defaults  proxyconf.Options
		overrides proxyconf.Options
		src, dst  string
		is        error
	}{
		{
			name:      "Unknown Option",
			defaults:  proxyconf.Defaults(),
			overrides: proxyconf.Options{"delete_on_del": true},
			src:       "a:6379", dst: "b:6379",
			is: proxyconf.ErrUnknownOption,
		},
		{
			name: "Missing Option",
			defaults: proxyconf.Options{
				proxyconf.DeleteOnGet: true,
				proxyconf.Password:    "",
				proxyconf.SrcPassword: "",
				proxyconf.DstPassword: "",
			},
			src: "a:6379", dst: "b:6379",
			is: proxyconf.ErrUnresolved,
		},
		{
			name:     "Unresolved Source",
			defaults: proxyconf.Defaults(),
			dst:      "b:6379",
			is:       proxyconf.ErrUnresolved,
		},
		{
			name:     "Unresolved Destination",
			defaults: proxyconf.Defaults(),
			src:      "a:6379",
			is:       proxyconf.ErrUnresolved,
		},
		{
			name:      "Not A Boolean",
			defaults:  proxyconf.Defaults(),
			overrides: proxyconf.Options{proxyconf.DeleteOnGet: "maybe"},
			src:       "a:6379", dst: "b:6379",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := proxyconf.Render(tt.defaults, tt.overrides, tt.src, tt.dst)
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}
