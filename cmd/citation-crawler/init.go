// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/citation-crawler/internal/project"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Create a project directory with template settings",
	Long: `Init creates project.yaml, a starter schema.json and the content
directories. Edit project.yaml to describe the relevance criteria and the
data to extract, then seed the frontier.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().String("name", "", "project name (default: directory name)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := projectDir(cmd)
	if len(args) == 1 {
		dir = args[0]
	}
	name, _ := cmd.Flags().GetString("name")

	p, err := project.Init(dir, name)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Initialized project %q in %s\n", p.Name, p.Dir())
	fmt.Fprintf(out, "Next: edit %s, then run `citation-crawler seed -p %s`\n", project.FileName, p.Dir())
	return nil
}
