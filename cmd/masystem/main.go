package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "masystem"}

	root.AddCommand(serveCMD(), runCMD())
	_ = root.Execute()
}
