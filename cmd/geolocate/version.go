// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/geolocate/internal/providers/clip"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version, build and model information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("geolocate %s%s\n", version, buildSuffix())
		fmt.Printf("  embedding model: %s\n", clip.ModelName(appConfig.Embedding.ModelPath))
		fmt.Printf("  vision model:    %s\n", appConfig.AI.Model)
		fmt.Printf("  store:           %s\n", appConfig.Store.Driver)
		if f := viper.ConfigFileUsed(); f != "" {
			fmt.Printf("  config:          %s\n", f)
		}
	},
}

// buildSuffix reports the VCS revision and Go version embedded by the
// toolchain, when available.
func buildSuffix() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	suffix := " (" + info.GoVersion
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 12 {
			suffix += ", " + s.Value[:12]
		}
	}
	return suffix + ")"
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
