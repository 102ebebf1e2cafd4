package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `services:
  app:
    image: ghcr.io/example/app:1.2
    container_name: example-app
    ports:
      - "8080:80"
      - target: 443
        published: "8443"
        protocol: tcp
    volumes:
      - /opt/app/config:/config
      - appdata:/var/lib/app
    environment:
      APP_PORT: "8080"
      API_TOKEN: $API_TOKEN
  db:
    image: postgres:16
    environment:
      - POSTGRES_PASSWORD=changeme
x-casaos:
  main: app
  title:
    en_US: Example App
    it_IT: App di Esempio
  description:
    en_US: A sample application
  icon: https://cdn.example.com/icon.png
  developer: Example Inc
  category: Productivity
  port_map: "8080"
  index: /setup
  architectures:
    - amd64
    - arm64
  tags:
    - sample
`

func TestParse(t *testing.T) {
	app, err := Parse(sampleManifest, "example-app", "official")
	require.NoError(t, err)

	assert.Equal(t, "example-app", app.ID)
	assert.Equal(t, "Example App", app.Title)
	assert.Equal(t, "A sample application", app.Description)
	assert.Equal(t, "Example Inc", app.Developer)
	assert.Equal(t, "Productivity", app.Category)
	assert.Equal(t, "8080", app.PortMap)
	assert.Equal(t, "/setup", app.Index)
	assert.Equal(t, "app", app.MainService)
	assert.Equal(t, "official", app.Repository)
	assert.Equal(t, []string{"amd64", "arm64"}, app.Architectures)
	assert.Equal(t, []string{"sample"}, app.Tags)

	// The raw manifest is stored byte for byte.
	assert.Equal(t, sampleManifest, app.Manifest)

	require.Len(t, app.Services, 2)
	appSvc := app.Services["app"]
	assert.Equal(t, "example-app", appSvc.ContainerName)
	assert.Equal(t, "ghcr.io/example/app:1.2", appSvc.Image)
	require.Len(t, appSvc.Ports, 2)
	assert.Equal(t, "8080:80", appSvc.Ports[0].Raw)
	assert.Equal(t, 443, appSvc.Ports[1].Target)
	assert.Equal(t, "8443", appSvc.Ports[1].Published)
	require.Len(t, appSvc.Volumes, 2)
	assert.Equal(t, "/opt/app/config:/config", appSvc.Volumes[0].Raw)
	assert.Equal(t, map[string]string{
		"APP_PORT":  "8080",
		"API_TOKEN": "$API_TOKEN",
	}, appSvc.Environment)

	dbSvc := app.Services["db"]
	assert.Equal(t, "db", dbSvc.ContainerName, "container_name defaults to service name")
	assert.Equal(t, map[string]string{"POSTGRES_PASSWORD": "changeme"}, dbSvc.Environment)
}

func TestParseDefaults(t *testing.T) {
	manifest := `services:
  solo:
    image: busybox
`
	app, err := Parse(manifest, "solo", "community")
	require.NoError(t, err)

	assert.Equal(t, "Unknown", app.Developer)
	assert.Equal(t, "Other", app.Category)
	assert.Equal(t, "80", app.PortMap)
	assert.Equal(t, "/", app.Index)
	assert.Equal(t, "solo", app.MainService, "main falls back to the first declared service")
	assert.Equal(t, []string{"amd64"}, app.Architectures)
	assert.Equal(t, []string{}, app.Tags)
}

func TestParseMainServiceFallback(t *testing.T) {
	// The vendor block names a service that does not exist.
	manifest := `services:
  first:
    image: a
  second:
    image: b
x-casaos:
  main: missing
`
	app, err := Parse(manifest, "x", "r")
	require.NoError(t, err)
	assert.Equal(t, "first", app.MainService)
}

func TestParseNoServices(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{name: "empty services mapping", manifest: "services: {}\n"},
		{name: "no services key", manifest: "x-casaos:\n  main: app\n"},
		{name: "empty document", manifest: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.manifest, "x", "r")
			assert.ErrorIs(t, err, ErrNoServices)
		})
	}
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse("services: [unclosed", "x", "r")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoServices)
}

func TestLocalizedFallback(t *testing.T) {
	manifest := `services:
  app:
    image: a
x-casaos:
  title:
    de_DE: Beispiel
    fr_FR: Exemple
`
	app, err := Parse(manifest, "x", "r")
	require.NoError(t, err)
	assert.Equal(t, "Beispiel", app.Title, "without a preferred locale the first value wins")
}

func TestParseScalarMetadataFields(t *testing.T) {
	// title and screenshot_link accept plain scalars too.
	manifest := `services:
  app:
    image: a
x-casaos:
  title: Plain Title
  screenshot_link: https://cdn.example.com/shot.png
`
	app, err := Parse(manifest, "x", "r")
	require.NoError(t, err)
	assert.Equal(t, "Plain Title", app.Title)
	assert.Equal(t, []string{"https://cdn.example.com/shot.png"}, app.Screenshots)
}

func TestParseDeterministic(t *testing.T) {
	first, err := Parse(sampleManifest, "example-app", "official")
	require.NoError(t, err)
	second, err := Parse(sampleManifest, "example-app", "official")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
