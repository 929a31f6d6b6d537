package config

import (
	"github.com/xplshn/jcc/pkg/cli"
)

// SetupFlagGroups registers -W and -F flag groups on fs. The returned
// entries are indexed by Warning and Feature respectively.
func (c *Config) SetupFlagGroups(fs *cli.FlagSet) (warnings, features []cli.FlagGroupEntry) {
	warnings = make([]cli.FlagGroupEntry, WarnCount)
	for i := Warning(0); i < WarnCount; i++ {
		info := c.Warnings[i]
		enabled, disabled := info.Enabled, false
		warnings[i] = cli.FlagGroupEntry{
			Name: info.Name, Prefix: "W", Usage: info.Description,
			Enabled: &enabled, Disabled: &disabled,
		}
	}
	features = make([]cli.FlagGroupEntry, FeatCount)
	for i := Feature(0); i < FeatCount; i++ {
		info := c.Features[i]
		enabled, disabled := info.Enabled, false
		features[i] = cli.FlagGroupEntry{
			Name: info.Name, Prefix: "F", Usage: info.Description,
			Enabled: &enabled, Disabled: &disabled,
		}
	}
	fs.AddFlagGroup("Warning Flags", "Enable or disable diagnostics.", "warning", "Available Warning Flags:", warnings)
	fs.AddFlagGroup("Feature Flags", "Toggle language behavior.", "feature", "Available Features:", features)
	return warnings, features
}

// ApplyFlagGroups copies the group flags given on the command line back
// into the configuration. A -Wno-<name> wins over -W<name>.
func (c *Config) ApplyFlagGroups(fs *cli.FlagSet, warnings, features []cli.FlagGroupEntry) {
	for i, entry := range warnings {
		if fs.Changed(entry.Prefix + entry.Name) {
			c.SetWarning(Warning(i), *entry.Enabled)
		}
		if fs.Changed(entry.Prefix+"no-"+entry.Name) && *entry.Disabled {
			c.SetWarning(Warning(i), false)
		}
	}
	for i, entry := range features {
		if fs.Changed(entry.Prefix + entry.Name) {
			c.SetFeature(Feature(i), *entry.Enabled)
		}
		if fs.Changed(entry.Prefix+"no-"+entry.Name) && *entry.Disabled {
			c.SetFeature(Feature(i), false)
		}
	}
}
