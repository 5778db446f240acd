package service

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresNameAndURL(t *testing.T) {
	_, err := New("", "http://example.com/wps")
	assert.True(t, errors.Is(err, ErrInvalidService))

	_, err = New("geoserver", "")
	assert.True(t, errors.Is(err, ErrInvalidService))
}

func TestNew_DefaultsToWPSKindAndTokenAuth(t *testing.T) {
	s, err := New("geoserver", "http://example.com/wps")
	require.NoError(t, err)
	assert.Equal(t, KindWPS1, s.Kind)
	assert.Equal(t, AuthToken, s.Auth)
}

func TestSaneName_LowercasesAndCollapsesPunctuation(t *testing.T) {
	assert.Equal(t, "my-wps-provider", SaneName("  My WPS   Provider!! "))
	assert.Equal(t, "geoserver", SaneName("GeoServer"))
}

func TestSaneName_EmptyWhenNoSlugCharsSurvive(t *testing.T) {
	assert.Equal(t, "", SaneName("!!!"))
}

func TestGenerateName_FallsBackToRandomNameWhenSlugEmpty(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	name := GenerateName("!!!", rng)
	assert.NotEmpty(t, name)
	assert.NotEqual(t, "", SaneName(name), "a generated fallback name must itself be a valid slug shape")
}

func TestGenerateName_KeepsSaneNameWhenNonEmpty(t *testing.T) {
	assert.Equal(t, "geoserver", GenerateName("GeoServer", nil))
}

func TestMemoryStore_SaveFetchDeleteRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	svc, err := New("geoserver", "http://example.com/wps")
	require.NoError(t, err)
	require.NoError(t, s.SaveService(ctx, svc))

	got, err := s.FetchByName(ctx, "geoserver")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/wps", got.URL)

	list, err := s.ListServices(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteService(ctx, "geoserver"))
	_, err = s.FetchByName(ctx, "geoserver")
	assert.True(t, errors.Is(err, ErrNotFound))
}
