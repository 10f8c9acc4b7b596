package workspace

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mufancom/remote-workspace/internal/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.DeactivateAfter = config.Duration(2 * time.Hour)
	return cfg
}

func testRecord() Record {
	return Record{
		ID:          "0a1b2c3d",
		DisplayName: "feature-work",
		Owner:       "alice",
		Port:        2222,
		Active:      true,
		Projects: []Project{
			{
				Name: "app",
				Git:  ProjectGit{URL: "git@github.com:example/app.git", Branch: "main"},
			},
		},
		Services: []Service{
			{
				Name:  "postgres",
				Image: "postgres:14",
				Extra: map[string]interface{}{
					"environment": map[string]interface{}{"POSTGRES_PASSWORD": "dev"},
				},
			},
		},
	}
}

func TestImageFallsBackToConfigDefault(t *testing.T) {
	record := testRecord()
	record.Image = ""

	w := New(record, testConfig())
	assert.Equal(t, config.DefaultImage, w.Image())

	record.Image = "custom/image:tag"
	w = New(record, testConfig())
	assert.Equal(t, "custom/image:tag", w.Image())
}

func TestDerivedNames(t *testing.T) {
	w := New(testRecord(), testConfig())
	assert.Equal(t, "workspace-0a1b2c3d", w.Volume())
	assert.Equal(t, "0a1b2c3d-network", w.NetworkName())
}

func TestServicesDefaultsToEmpty(t *testing.T) {
	record := testRecord()
	record.Services = nil

	w := New(record, testConfig())
	services := w.Services()
	assert.NotNil(t, services)
	assert.Empty(t, services)
}

func TestDeactivatesAt(t *testing.T) {
	idleSince := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	record := testRecord()
	record.IdleSince = &idleSince
	w := New(record, testConfig())

	deactivatesAt := w.DeactivatesAt()
	require.NotNil(t, deactivatesAt)
	assert.Equal(t, idleSince.Add(2*time.Hour), *deactivatesAt)

	// No idle window, no expiry.
	record.IdleSince = nil
	assert.Nil(t, New(record, testConfig()).DeactivatesAt())

	// Inactive workspaces never expose an expiry even with a stale stamp.
	record.IdleSince = &idleSince
	record.Active = false
	assert.Nil(t, New(record, testConfig()).DeactivatesAt())
}

func TestHashIsStable(t *testing.T) {
	first := New(testRecord(), testConfig()).Hash()
	second := New(testRecord(), testConfig()).Hash()
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestHashIgnoresRuntimeState(t *testing.T) {
	base := New(testRecord(), testConfig()).Hash()

	record := testRecord()
	record.Active = false
	idleSince := time.Now()
	record.IdleSince = &idleSince
	record.Port = 3333

	assert.Equal(t, base, New(record, testConfig()).Hash())
}

func TestHashChangesWithConfiguration(t *testing.T) {
	base := New(testRecord(), testConfig()).Hash()

	record := testRecord()
	record.Image = "other/image:tag"
	assert.NotEqual(t, base, New(record, testConfig()).Hash())

	record = testRecord()
	record.Projects[0].Git.Branch = "develop"
	assert.NotEqual(t, base, New(record, testConfig()).Hash())

	record = testRecord()
	record.Services[0].Extra["environment"] = map[string]interface{}{"POSTGRES_PASSWORD": "changed"}
	assert.NotEqual(t, base, New(record, testConfig()).Hash())
}

func TestServiceJSONPassthrough(t *testing.T) {
	payload := `{
		"name": "redis",
		"image": "redis:7",
		"command": ["redis-server", "--appendonly", "yes"],
		"environment": {"TZ": "UTC"}
	}`

	var service Service
	require.NoError(t, json.Unmarshal([]byte(payload), &service))

	assert.Equal(t, "redis", service.Name)
	assert.Equal(t, "redis:7", service.Image)
	assert.Contains(t, service.Extra, "command")
	assert.Contains(t, service.Extra, "environment")

	fields := service.ComposeFields()
	assert.Equal(t, "redis:7", fields["image"])
	assert.Contains(t, fields, "command")
	assert.NotContains(t, fields, "name")

	data, err := json.Marshal(service)
	require.NoError(t, err)

	var roundTripped Service
	require.NoError(t, json.Unmarshal(data, &roundTripped))
	assert.Equal(t, service, roundTripped)
}

func TestServiceJSONWithoutExtraFields(t *testing.T) {
	var service Service
	require.NoError(t, json.Unmarshal([]byte(`{"name":"db","image":"postgres:14"}`), &service))
	assert.Nil(t, service.Extra)
}

func TestValidateOptions(t *testing.T) {
	valid := Options{
		DisplayName: "feature-work",
		Projects: []Project{
			{Name: "app", Git: ProjectGit{URL: "git@github.com:example/app.git"}},
		},
		Services: []Service{
			{Name: "postgres", Image: "postgres:14"},
		},
	}
	assert.NoError(t, ValidateOptions(valid))
}

func TestValidateOptionsFailures(t *testing.T) {
	base := func() Options {
		return Options{
			DisplayName: "feature-work",
			Projects: []Project{
				{Name: "app", Git: ProjectGit{URL: "git@github.com:example/app.git"}},
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"missing display name", func(o *Options) { o.DisplayName = "" }},
		{"no projects", func(o *Options) { o.Projects = nil }},
		{"bad project name", func(o *Options) { o.Projects[0].Name = "../escape" }},
		{"empty project name", func(o *Options) { o.Projects[0].Name = "" }},
		{"duplicate project", func(o *Options) {
			o.Projects = append(o.Projects, o.Projects[0])
		}},
		{"missing git url", func(o *Options) { o.Projects[0].Git.URL = "" }},
		{"negative depth", func(o *Options) { o.Projects[0].Git.Depth = -1 }},
		{"bad service name", func(o *Options) {
			o.Services = []Service{{Name: "a b", Image: "img"}}
		}},
		{"duplicate service", func(o *Options) {
			o.Services = []Service{{Name: "db", Image: "img"}, {Name: "db", Image: "img"}}
		}},
		{"missing service image", func(o *Options) {
			o.Services = []Service{{Name: "db"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := base()
			tt.mutate(&opts)
			assert.Error(t, ValidateOptions(opts))
		})
	}
}

func TestValidateOptionsAcceptsCommonGitURLs(t *testing.T) {
	urls := []string{
		"git@github.com:example/app.git",
		"https://github.com/example/app.git",
		"ssh://git@gitlab.example.com:2222/group/app.git",
	}

	for _, url := range urls {
		opts := Options{
			DisplayName: "feature-work",
			Projects: []Project{
				{Name: "app", Git: ProjectGit{URL: url}},
			},
		}
		assert.NoError(t, ValidateOptions(opts), url)
	}
}
