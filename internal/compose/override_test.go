package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyEnvOverridesMapping(t *testing.T) {
	manifest := `services:
  app:
    image: a
    environment:
      WEB_PORT: "8080"
      API_TOKEN: $API_TOKEN
`
	out, err := ApplyEnvOverrides(manifest, map[string]string{
		"WEB_PORT": "9090",
		"UNKNOWN":  "ignored",
	})
	require.NoError(t, err)

	app, err := Parse(out, "x", "r")
	require.NoError(t, err)
	env := app.Services["app"].Environment
	assert.Equal(t, "9090", env["WEB_PORT"])
	assert.Equal(t, "$API_TOKEN", env["API_TOKEN"], "non-matching keys are untouched")
	assert.NotContains(t, env, "UNKNOWN", "overrides never add new entries")
}

func TestApplyEnvOverridesList(t *testing.T) {
	manifest := `services:
  app:
    image: a
    environment:
      - WEB_PORT=8080
      - API_TOKEN=secret
`
	out, err := ApplyEnvOverrides(manifest, map[string]string{"WEB_PORT": "9090"})
	require.NoError(t, err)

	app, err := Parse(out, "x", "r")
	require.NoError(t, err)
	env := app.Services["app"].Environment
	assert.Equal(t, "9090", env["WEB_PORT"])
	assert.Equal(t, "secret", env["API_TOKEN"])
}

func TestApplyEnvOverridesAllServices(t *testing.T) {
	manifest := `services:
  app:
    image: a
    environment:
      TZ: UTC
  db:
    image: b
    environment:
      - TZ=UTC
`
	out, err := ApplyEnvOverrides(manifest, map[string]string{"TZ": "Europe/Rome"})
	require.NoError(t, err)

	app, err := Parse(out, "x", "r")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Rome", app.Services["app"].Environment["TZ"])
	assert.Equal(t, "Europe/Rome", app.Services["db"].Environment["TZ"])
}

func TestApplyEnvOverridesInvalidManifest(t *testing.T) {
	_, err := ApplyEnvOverrides("services: [unclosed", map[string]string{"A": "b"})
	assert.Error(t, err)
}

func TestApplyVolumeOverridesShorthand(t *testing.T) {
	manifest := `services:
  app:
    image: a
    volumes:
      - /opt/app/config:/config:ro
      - appdata:/data
`
	out, err := ApplyVolumeOverrides(manifest, map[string]string{
		"/opt/app/config": "/mnt/tank/config",
	})
	require.NoError(t, err)

	volumes := ExtractVolumes(out)
	require.Len(t, volumes, 1)
	assert.Equal(t, "/mnt/tank/config", volumes[0].Source)
	assert.Equal(t, "/config", volumes[0].Target, "target is preserved")
	assert.Equal(t, "ro", volumes[0].Mode, "mode is preserved")
}

func TestApplyVolumeOverridesStructured(t *testing.T) {
	manifest := `services:
  app:
    image: a
    volumes:
      - type: bind
        source: /srv/shared
        target: /shared
      - type: volume
        source: managed
        target: /managed
`
	out, err := ApplyVolumeOverrides(manifest, map[string]string{
		"/srv/shared": "/mnt/shared",
		"managed":     "should-not-apply",
	})
	require.NoError(t, err)

	volumes := ExtractVolumes(out)
	require.Len(t, volumes, 1)
	assert.Equal(t, "/mnt/shared", volumes[0].Source)
	assert.Contains(t, out, "managed", "named volumes are untouched")
	assert.NotContains(t, out, "should-not-apply")
}

func TestApplyVolumeOverridesExactMatchOnly(t *testing.T) {
	manifest := `services:
  app:
    image: a
    volumes:
      - /opt/app:/app
      - /opt/app/config:/config
`
	out, err := ApplyVolumeOverrides(manifest, map[string]string{"/opt/app": "/mnt/app"})
	require.NoError(t, err)

	volumes := ExtractVolumes(out)
	require.Len(t, volumes, 2)
	assert.Equal(t, "/mnt/app", volumes[0].Source)
	assert.Equal(t, "/opt/app/config", volumes[1].Source, "prefix matches do not rewrite")
}
