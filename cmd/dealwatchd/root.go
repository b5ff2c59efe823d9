package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "dealwatchd"}

	root.AddCommand(serveCMD(), ingestCMD(), sweepCMD())
	_ = root.Execute()
}
