package datasource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sourcesJSON = `{
  "geoserver": {"netloc": "https://geoserver.example.org", "ades": "https://ades1.example.org"},
  "catalog": {"netloc": "https://catalog.example.org", "ades": "https://ades2.example.org", "default": true},
  "local-files": {"rootdir": "/data/shared"}
}`

func TestLoadBytes_PreservesOrderAndDefault(t *testing.T) {
	reg, err := LoadBytes([]byte(sourcesJSON), "https://local.example.org")
	require.NoError(t, err)

	def, ok := reg.Default()
	require.True(t, ok)
	assert.Equal(t, "catalog", def.Name)
}

func TestLoadBytes_FirstInsertionOrderWhenNoDefaultMarked(t *testing.T) {
	data := `{"a": {"netloc": "https://a.example.org"}, "b": {"netloc": "https://b.example.org"}}`
	reg, err := LoadBytes([]byte(data), "https://local.example.org")
	require.NoError(t, err)

	def, ok := reg.Default()
	require.True(t, ok)
	assert.Equal(t, "a", def.Name)
}

func TestResolveByURL_MatchesNetloc(t *testing.T) {
	reg, err := LoadBytes([]byte(sourcesJSON), "https://local.example.org")
	require.NoError(t, err)

	src, err := reg.ResolveByURL("https://geoserver.example.org/wcs?request=x")
	require.NoError(t, err)
	assert.Equal(t, "geoserver", src.Name)
}

func TestResolveByURL_OpensearchLongestRootdirPrefix(t *testing.T) {
	data := `{
      "shallow": {"rootdir": "/data"},
      "deep": {"rootdir": "/data/shared/inputs"}
    }`
	reg, err := LoadBytes([]byte(data), "https://local.example.org")
	require.NoError(t, err)

	src, err := reg.ResolveByURL("opensearchfile:///data/shared/inputs/file.tif")
	require.NoError(t, err)
	assert.Equal(t, "deep", src.Name)
}

func TestResolveByURL_FallsBackToDefault(t *testing.T) {
	reg, err := LoadBytes([]byte(sourcesJSON), "https://local.example.org")
	require.NoError(t, err)

	src, err := reg.ResolveByURL("https://unrelated.example.org/x")
	require.NoError(t, err)
	assert.Equal(t, "catalog", src.Name)
}

func TestResolveToADES_EmptyReturnsLocal(t *testing.T) {
	reg, err := LoadBytes([]byte(sourcesJSON), "https://local.example.org")
	require.NoError(t, err)

	ades, err := reg.ResolveToADES("")
	require.NoError(t, err)
	assert.Equal(t, "https://local.example.org", ades)
}

func TestResolveToADES_NamedSource(t *testing.T) {
	reg, err := LoadBytes([]byte(sourcesJSON), "https://local.example.org")
	require.NoError(t, err)

	ades, err := reg.ResolveToADES("geoserver")
	require.NoError(t, err)
	assert.Equal(t, "https://ades1.example.org", ades)
}

func TestResolveToADES_UnknownSourceErrors(t *testing.T) {
	reg, err := LoadBytes([]byte(sourcesJSON), "https://local.example.org")
	require.NoError(t, err)

	_, err = reg.ResolveToADES("bogus")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceNotFound)
}
