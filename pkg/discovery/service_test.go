package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceInfo_AttrsAreCopied(t *testing.T) {
	attrs := map[string][]byte{"name": []byte("Device-A")}
	info := NewServiceInfo("Device-A", "10.0.0.5", 4242, attrs)

	// Mutating the source map must not leak into the record.
	attrs["name"][0] = 'X'
	attrs["extra"] = []byte("nope")

	got, ok := info.Attr("name")
	require.True(t, ok)
	assert.Equal(t, []byte("Device-A"), got)
	_, ok = info.Attr("extra")
	assert.False(t, ok)

	// Mutating a returned value must not write back either.
	got[0] = 'Y'
	again, _ := info.Attr("name")
	assert.Equal(t, []byte("Device-A"), again)
}

func TestServiceInfo_EqualityIsIdentityBased(t *testing.T) {
	a := NewServiceInfo("Device-A", "10.0.0.5", 4242, map[string][]byte{"v": []byte("1")})
	b := NewServiceInfo("Device-A", "10.0.0.5", 4242, map[string][]byte{"v": []byte("2")})
	c := NewServiceInfo("Device-A", "10.0.0.5", 4243, nil)
	d := NewServiceInfo("Device-B", "10.0.0.5", 4242, nil)

	assert.True(t, a.Equal(b), "attribute content does not participate in identity")
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d))
}

func TestServiceInfo_DefaultsAndKeys(t *testing.T) {
	info := NewServiceInfo("peer", "192.168.1.20", 8080, map[string][]byte{
		"b": nil,
		"a": []byte("1"),
	})
	assert.Equal(t, DefaultServiceType, info.Type)
	assert.Equal(t, DefaultDomain, info.Domain)
	assert.Equal(t, "192.168.1.20:8080", info.HostPort())
	assert.Equal(t, []string{"a", "b"}, info.AttrKeys())

	custom := info.WithType("_other._tcp")
	assert.Equal(t, "_other._tcp", custom.Type)
	assert.Equal(t, DefaultServiceType, info.Type, "WithType returns a copy")
}

func TestServiceInfo_IPv6HostPort(t *testing.T) {
	info := NewServiceInfo("peer", "fe80::1", 9000, nil)
	assert.Equal(t, "[fe80::1]:9000", info.HostPort())
}
