// Package meet drives a Chrome window into a video call and presents the
// board tab, so call participants hear the assistant and see the board.
//
// Chrome runs with a saved profile so the call account is already signed
// in. Tab selection in the share dialog is delegated to Chrome's
// auto-select-tab-capture-source-by-title switch.
package meet

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Selectors on the call page.
const (
	PermissionSelector = "permission"
	JoinSelector       = `[data-promo-anchor-id="w5gBed"]`
	PresentSelector    = `[data-promo-anchor-id="hNGZQc"]`
)

// Defaults for Config.
const (
	DefaultBoardURL       = "http://localhost:3001"
	DefaultProfileDir     = "./chrome_profile"
	DefaultProfileName    = "Default"
	DefaultStepTimeout    = 5 * time.Second
	DefaultSettleDelay    = 2 * time.Second
	DefaultBoardLoadDelay = 3 * time.Second
)

// ErrProfileMissing is returned when the saved Chrome profile is absent.
var ErrProfileMissing = errors.New("meet: chrome profile not found")

// Config holds browser driver settings.
type Config struct {
	// MeetURL is the call link to join.
	MeetURL string `yaml:"meet_url" toml:"meet_url" json:"meet_url"`

	// BoardURL is opened in a second tab and presented.
	BoardURL string `yaml:"board_url" toml:"board_url" json:"board_url"`

	// ProfileDir is the Chrome user data directory holding ProfileName.
	ProfileDir  string `yaml:"profile_dir" toml:"profile_dir" json:"profile_dir"`
	ProfileName string `yaml:"profile_name" toml:"profile_name" json:"profile_name"`

	// ShareTabTitle is matched against tab titles by the share dialog.
	// Empty uses the board URL's host.
	ShareTabTitle string `yaml:"share_tab_title" toml:"share_tab_title" json:"share_tab_title"`

	// ExecPath overrides the Chrome binary.
	ExecPath string `yaml:"exec_path" toml:"exec_path" json:"exec_path"`

	Headless bool `yaml:"headless" toml:"headless" json:"headless"`

	StepTimeout    time.Duration `yaml:"step_timeout" toml:"step_timeout" json:"step_timeout"`
	SettleDelay    time.Duration `yaml:"settle_delay" toml:"settle_delay" json:"settle_delay"`
	BoardLoadDelay time.Duration `yaml:"board_load_delay" toml:"board_load_delay" json:"board_load_delay"`
}

// DefaultConfig returns driver defaults. MeetURL must still be set.
func DefaultConfig() Config {
	return Config{
		BoardURL:       DefaultBoardURL,
		ProfileDir:     DefaultProfileDir,
		ProfileName:    DefaultProfileName,
		StepTimeout:    DefaultStepTimeout,
		SettleDelay:    DefaultSettleDelay,
		BoardLoadDelay: DefaultBoardLoadDelay,
	}
}

// Validate checks required fields and that the profile exists on disk.
func (c *Config) Validate() error {
	if c.MeetURL == "" {
		return errors.New("meet: meet URL required")
	}
	if c.BoardURL == "" {
		return errors.New("meet: board URL required")
	}
	if c.StepTimeout <= 0 {
		return fmt.Errorf("meet: step_timeout must be positive, got %s", c.StepTimeout)
	}
	if c.ProfileName == "" {
		c.ProfileName = DefaultProfileName
	}

	profile := filepath.Join(c.ProfileDir, c.ProfileName)
	info, err := os.Stat(profile)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s (sign in once with this profile to create it)", ErrProfileMissing, profile)
	}
	return nil
}
