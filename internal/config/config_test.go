package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ConfigTestSuite struct {
	suite.Suite
}

func (s *ConfigTestSuite) TestDefaults() {
	cfg, err := Load()
	s.Require().NoError(err)

	s.Equal("8080", cfg.HTTPPort)
	s.Equal(DriverSQLite, cfg.DatabaseDriver)
	s.Equal(10*time.Second, cfg.ProbeTimeout)
	s.Equal(1, cfg.SweepConcurrency)
	s.Equal(15*time.Minute, cfg.AlternateCheckTTL)
	s.Equal("America/Chicago", cfg.ExportTimezone)
	s.Equal(7*24*time.Hour, cfg.SessionTTL)
	s.Equal("0 8,14,20 * * *", cfg.SweepSchedule)
	s.False(cfg.SchedulerEnabled)

	hour, minute, err := cfg.ArchiveTimeOfDay()
	s.Require().NoError(err)
	s.Equal(7, hour)
	s.Equal(50, minute)
}

func (s *ConfigTestSuite) TestOverrides() {
	s.T().Setenv("HTTP_PORT", "9090")
	s.T().Setenv("DATABASE_DRIVER", "Memory")
	s.T().Setenv("PROBE_TIMEOUT", "3s")
	s.T().Setenv("SWEEP_CONCURRENCY", "4")
	s.T().Setenv("SCHEDULER_ENABLED", "true")
	s.T().Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")
	s.T().Setenv("EXPORT_TIMEZONE", "UTC")

	cfg, err := Load()
	s.Require().NoError(err)
	s.Equal("9090", cfg.HTTPPort)
	s.Equal(DriverMemory, cfg.DatabaseDriver)
	s.Equal(3*time.Second, cfg.ProbeTimeout)
	s.Equal(4, cfg.SweepConcurrency)
	s.True(cfg.SchedulerEnabled)
	s.Equal([]string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	s.Equal(time.UTC, cfg.ExportLocation())
}

func (s *ConfigTestSuite) TestMalformedNumbersFallBack() {
	s.T().Setenv("SWEEP_CONCURRENCY", "many")
	s.T().Setenv("PROBE_TIMEOUT", "soon")

	cfg, err := Load()
	s.Require().NoError(err)
	s.Equal(1, cfg.SweepConcurrency)
	s.Equal(10*time.Second, cfg.ProbeTimeout)
}

func (s *ConfigTestSuite) TestValidationErrors() {
	cases := map[string]string{
		"DATABASE_DRIVER":   "mysql",
		"SWEEP_CONCURRENCY": "0",
		"EXPORT_TIMEZONE":   "Mars/Olympus",
		"ARCHIVE_AT":        "7.50",
		"PROBE_TIMEOUT":     "-1s",
	}
	for key, value := range cases {
		s.Run(key, func() {
			s.T().Setenv(key, value)
			_, err := Load()
			s.Error(err)
		})
	}
}

func (s *ConfigTestSuite) TestLoadDotEnv() {
	dir := s.T().TempDir()
	path := filepath.Join(dir, ".env")
	s.Require().NoError(os.WriteFile(path, []byte("UPTIMEWATCH_TEST_VALUE=from-file\n"), 0o600))
	s.T().Setenv("UPTIMEWATCH_TEST_VALUE", "")
	s.Require().NoError(os.Unsetenv("UPTIMEWATCH_TEST_VALUE"))

	s.Require().NoError(LoadDotEnv(path))
	s.Equal("from-file", os.Getenv("UPTIMEWATCH_TEST_VALUE"))

	s.NoError(LoadDotEnv(filepath.Join(dir, "missing.env")))
}

func (s *ConfigTestSuite) TestParseSeedTargets() {
	doc := []byte(`
targets:
  - name: Marketing site
    address: https://www.example.com
    environment: production
  - url: https://staging.example.com
`)
	targets, err := ParseSeedTargets(doc)
	s.Require().NoError(err)
	s.Require().Len(targets, 2)
	s.Equal("Marketing site", targets[0].Name)
	s.Equal("production", targets[0].Environment)
	s.Equal("https://staging.example.com", targets[1].Address)
	s.Equal("https://staging.example.com", targets[1].Name)

	_, err = ParseSeedTargets([]byte("targets:\n  - name: empty\n"))
	s.Error(err)

	_, err = ParseSeedTargets([]byte("targets: [::"))
	s.Error(err)
}

func (s *ConfigTestSuite) TestLoadSeedTargetsMissingFile() {
	_, err := LoadSeedTargets(filepath.Join(s.T().TempDir(), "nope.yaml"))
	s.Error(err)
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}
