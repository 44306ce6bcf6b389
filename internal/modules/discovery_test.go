package modules_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark-grimes/gdbremote-core/internal/modules"
)

func TestParseLibrariesSVR4(t *testing.T) {
	doc := []byte(`<library-list-svr4>
	  <library name="/lib/libc.so.6" l_addr="0x7ffff7a00000" l_ld="0x7ffff7bd0000"/>
	</library-list-svr4>`)
	out, err := modules.ParseLibrariesSVR4(doc)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "/lib/libc.so.6", out[0].Path)
	assert.EqualValues(t, 0x7ffff7a00000, out[0].LoadBias)
}

func TestParseAppleStructured(t *testing.T) {
	doc := []byte(`{"images":[{"pathname":"/usr/lib/libSystem.B.dylib","uuid":"abc-123","load_address":4295000000}]}`)
	out, err := modules.ParseAppleStructured(doc)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "abc-123", out[0].UUIDStr)
	assert.EqualValues(t, 4295000000, out[0].LoadBias)
}

func TestParseLibrariesGeneric(t *testing.T) {
	doc := []byte(`<library-list>
	  <library name="/opt/lib/libx.so">
	    <section address="0x600000"/>
	  </library>
	</library-list>`)
	out, err := modules.ParseLibrariesGeneric(doc)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "/opt/lib/libx.so", out[0].Path)
}
