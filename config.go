package main

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/configor"
	"github.com/pkg/errors"
)

type AppConfig struct {
	Provider            ProviderConfig
	Notify              NotifyConfig
	Concurrency         int `default:"1"`
	PollIntervalSeconds int `default:"5"`
	MaxLoopCount        int `default:"10"`
	BatchSize           int `default:"10"`
	Connectors          []ConnectorConfig
}

type ProviderConfig struct {
	Region  string `required:"true"`
	Profile string
}

type NotifyConfig struct {
	ID      string
	Region  string
	Profile string
}

// ConnectorConfig is one remote server: the connector reaching it, where its
// listing results land, when it runs and which folders it mirrors.
type ConnectorConfig struct {
	Name         string `required:"true"`
	Description  string
	Connector    string `required:"true"`
	ReportBucket string `required:"true"`
	Schedule     string `required:"true"`
	SyncSettings []SyncSetting
}

type SyncSetting struct {
	LocalRepository LocalRepository
	RemoteFolders   RemoteFolders
}

type LocalRepository struct {
	BucketName string
	Prefix     string
}

type RemoteFolders struct {
	Folder    string
	Recursive bool
}

var unsafeNameChars = regexp.MustCompile(`[^a-z0-9-]`)

func LoadConfig(path string) (AppConfig, error) {
	var appConfig AppConfig
	if err := configor.Load(&appConfig, path); err != nil {
		return appConfig, errors.Wrapf(err, "load config %s", path)
	}
	appConfig.Normalize()

	return appConfig, appConfig.Validate()
}

// Normalize cleans user supplied names the same way the configuration tool
// does before they end up in object keys.
func (c *AppConfig) Normalize() {
	for i := range c.Connectors {
		conn := &c.Connectors[i]
		conn.Name = unsafeNameChars.ReplaceAllString(strings.ToLower(conn.Name), "")
		conn.ReportBucket = safeBucketName(conn.ReportBucket)
		for j := range conn.SyncSettings {
			setting := &conn.SyncSettings[j]
			setting.LocalRepository.BucketName = safeBucketName(setting.LocalRepository.BucketName)
			setting.LocalRepository.Prefix = strings.Trim(setting.LocalRepository.Prefix, "/")
			setting.RemoteFolders.Folder = "/" + strings.Trim(setting.RemoteFolders.Folder, "/")
		}
	}
}

func (c AppConfig) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.MaxLoopCount < 1 {
		return fmt.Errorf("max loop count must be at least 1, got %d", c.MaxLoopCount)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1, got %d", c.BatchSize)
	}

	seen := make(map[string]bool)
	for _, conn := range c.Connectors {
		if conn.Name == "" {
			return errors.New("connector name is empty after normalization")
		}
		if seen[conn.Name] {
			return fmt.Errorf("duplicate connector name %q", conn.Name)
		}
		seen[conn.Name] = true

		if _, err := ParseSchedule(conn.Schedule); err != nil {
			return errors.Wrapf(err, "connector %s", conn.Name)
		}
		if len(conn.SyncSettings) == 0 {
			return fmt.Errorf("connector %s has no sync settings", conn.Name)
		}
		settings := make(map[string]bool)
		for _, setting := range conn.SyncSettings {
			if setting.LocalRepository.BucketName == "" {
				return fmt.Errorf("connector %s: sync setting for %s has no bucket", conn.Name, setting.RemoteFolders.Folder)
			}
			if settings[setting.String()] {
				return fmt.Errorf("connector %s: duplicate sync setting %s", conn.Name, setting)
			}
			settings[setting.String()] = true
		}
	}

	return nil
}

func (c AppConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c AppConfig) Connector(name string) (ConnectorConfig, bool) {
	for _, conn := range c.Connectors {
		if conn.Name == name {
			return conn, true
		}
	}

	return ConnectorConfig{}, false
}

func (c AppConfig) ConfigStringArray() []string {
	configStrArr := make([]string, 0)
	configStrArr = append(configStrArr, fmt.Sprintf("  - Region: %s", c.Provider.Region))
	configStrArr = append(configStrArr, fmt.Sprintf("  - Profile: %s", c.Provider.Profile))
	configStrArr = append(configStrArr, fmt.Sprintf("  - Concurrent Sync Settings: %d", c.Concurrency))
	configStrArr = append(configStrArr, fmt.Sprintf("  - Poll Interval: %s", c.PollInterval()))
	configStrArr = append(configStrArr, fmt.Sprintf("  - Max Loop Count: %d", c.MaxLoopCount))

	if c.Notify.ID != "" {
		configStrArr = append(configStrArr, fmt.Sprintf("  - SNSTopic: %s", c.Notify.ID))
	}

	for _, conn := range c.Connectors {
		configStrArr = append(configStrArr, fmt.Sprintf("Connector %s (%s), schedule %s:", conn.Name, conn.Connector, conn.Schedule))
		for _, setting := range conn.SyncSettings {
			configStrArr = append(configStrArr, fmt.Sprintf("  - %s", setting))
		}
	}

	return configStrArr
}

func (s SyncSetting) String() string {
	local := s.LocalRepository.BucketName
	if s.LocalRepository.Prefix != "" {
		local += "/" + s.LocalRepository.Prefix
	}
	remote := s.RemoteFolders.Folder
	if s.RemoteFolders.Recursive {
		remote += " (recursive)"
	}

	return fmt.Sprintf("%s <- %s", local, remote)
}

// SafeFolder turns the configured folder template into a single key segment.
func (s SyncSetting) SafeFolder() string {
	safe := strings.ReplaceAll(strings.TrimPrefix(s.RemoteFolders.Folder, "/"), "/", "-")
	if safe == "" {
		return "root"
	}

	return safe
}

// ID is a short stable digest of the whole setting. Settings of one
// connector whose folders share a SafeFolder still get distinct IDs.
func (s SyncSetting) ID() string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(s.String())).String()[:8]
}

// MarkerKey is where the first-copy marker for this destination lives.
func (s SyncSetting) MarkerKey() string {
	return joinKey(s.LocalRepository.Prefix, s.SafeFolder()+".flag")
}

// DestinationKey maps a remote file path onto the destination bucket.
func (s SyncSetting) DestinationKey(remotePath string) string {
	return joinKey(s.LocalRepository.Prefix, remotePath)
}

func safeBucketName(name string) string {
	return strings.TrimPrefix(strings.ToLower(name), "s3://")
}

func joinKey(prefix, rest string) string {
	prefix = strings.Trim(prefix, "/")
	rest = strings.TrimPrefix(rest, "/")
	if prefix == "" {
		return rest
	}

	return prefix + "/" + rest
}
