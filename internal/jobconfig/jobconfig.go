// Package jobconfig reads and writes the INI configuration file that carries
// the API credentials, the rotating refresh token, the warehouse target and
// the epoch cursor between runs.
package jobconfig

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/cyderes/activity-ingestion-service/internal/ingesterr"
	"github.com/cyderes/activity-ingestion-service/internal/models"
)

// Sections and keys of the configuration file.
const (
	SectionClient   = "strava_client"
	KeyClientID     = "strava_client_id"
	KeyClientSecret = "strava_client_secret"
	KeyRefreshToken = "strava_refresh_token"
	KeyCurrentEpoch = "strava_current_epoch"

	SectionWarehouse = "gcp_dwh"
	KeyProjectID     = "gcp_project_id"
	KeyDataset       = "gcp_bq_dataset"
	KeyTable         = "gcp_bq_table"
)

var requiredKeys = map[string][]string{
	SectionClient:    {KeyClientID, KeyClientSecret, KeyRefreshToken, KeyCurrentEpoch},
	SectionWarehouse: {KeyProjectID, KeyDataset, KeyTable},
}

// Credentials are the values needed for the refresh-token exchange.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// File is a parsed configuration file. It remembers the object version it
// was loaded at so the write-back can detect concurrent modification.
type File struct {
	ini     *ini.File
	version string
}

// Parse decodes an INI document and checks that every required section and
// key is present. Only strava_current_epoch may be blank.
func Parse(data []byte) (*File, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		// Tokens may contain characters that ini.v1 would otherwise treat specially.
		IgnoreInlineComment: true,
	}, data)
	if err != nil {
		return nil, ingesterr.Wrap(err, ingesterr.KindMissingConfiguration, "failed to parse configuration file")
	}

	var missing []string
	for _, section := range []string{SectionClient, SectionWarehouse} {
		if !cfg.HasSection(section) {
			missing = append(missing, section)
			continue
		}
		sec := cfg.Section(section)
		for _, key := range requiredKeys[section] {
			if !sec.HasKey(key) {
				missing = append(missing, section+"."+key)
				continue
			}
			if key != KeyCurrentEpoch && strings.TrimSpace(sec.Key(key).String()) == "" {
				missing = append(missing, section+"."+key)
			}
		}
	}
	if len(missing) > 0 {
		return nil, ingesterr.New(ingesterr.KindMissingConfiguration, "configuration file is incomplete").
			WithDetail("missing", missing)
	}

	return &File{ini: cfg}, nil
}

// Version returns the object version the file was loaded at or last saved as.
func (f *File) Version() string {
	return f.version
}

func (f *File) get(section, key string) string {
	return strings.TrimSpace(f.ini.Section(section).Key(key).String())
}

func (f *File) set(section, key, value string) {
	f.ini.Section(section).Key(key).SetValue(value)
}

// Credentials returns the client credentials and current refresh token.
func (f *File) Credentials() Credentials {
	return Credentials{
		ClientID:     f.get(SectionClient, KeyClientID),
		ClientSecret: f.get(SectionClient, KeyClientSecret),
		RefreshToken: f.get(SectionClient, KeyRefreshToken),
	}
}

// SetRefreshToken replaces the stored refresh token.
func (f *File) SetRefreshToken(token string) {
	f.set(SectionClient, KeyRefreshToken, token)
}

// Cursor returns the raw stored cursor, which may be blank.
func (f *File) Cursor() string {
	return f.ini.Section(SectionClient).Key(KeyCurrentEpoch).String()
}

// SetCursor replaces the stored cursor.
func (f *File) SetCursor(cursor string) {
	f.set(SectionClient, KeyCurrentEpoch, cursor)
}

// Destination returns the warehouse target.
func (f *File) Destination() models.Destination {
	return models.Destination{
		ProjectID: f.get(SectionWarehouse, KeyProjectID),
		Dataset:   f.get(SectionWarehouse, KeyDataset),
		Table:     f.get(SectionWarehouse, KeyTable),
	}
}

// Bytes serializes the file back to INI.
func (f *File) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := f.ini.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize configuration: %w", err)
	}
	return buf.Bytes(), nil
}
