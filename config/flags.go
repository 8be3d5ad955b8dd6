// Copyright (C) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

const (
	VersionKey = "version"
	HelpKey    = "help"
)

func BuildFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("icm-offramp", pflag.ContinueOnError)
	fs.String(ConfigFileKey, "", "Specifies the off-ramp config file")
	fs.Bool(VersionKey, false, "Display icm-offramp version")
	fs.BoolP(HelpKey, "h", false, "Display icm-offramp usage")
	return fs
}

func DisplayUsageText() {
	usageText := fmt.Sprintf(`icm-offramp executes committed cross-chain message batches for a single lane.

Usage:
    icm-offramp --config-file <config-file-path>

    icm-offramp --%s
    icm-offramp --%s
`, VersionKey, HelpKey)
	fmt.Fprint(os.Stdout, usageText)
}
