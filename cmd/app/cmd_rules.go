package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"SignalEngine/internal/repository"
	"SignalEngine/internal/services/rules"
)

var rulesFormat string

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and validate rule files",
}

var rulesDefaultsCmd = &cobra.Command{
	Use:   "defaults",
	Short: "Print the built-in rules in rule file format",
	Long: `Print the built-in rules. The output can be edited and passed back to the
engine through engine.rules_file.

Examples:
  signalengine rules defaults > rules.yaml
  signalengine rules defaults --format json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		data, err := rules.EncodeRules(rules.DefaultRules(), "."+rulesFormat)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check every rule in a YAML or JSON rule file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesValidate,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesDefaultsCmd, rulesValidateCmd)
	rulesDefaultsCmd.Flags().StringVar(&rulesFormat, "format", "yaml", "output format (yaml|json)")
}

func runRulesValidate(cmd *cobra.Command, args []string) error {
	loaded, err := rules.ReadRulesFile(args[0])
	if err != nil {
		return err
	}
	engine := rules.NewEngine(repository.NewMemoryRuleRepository(), repository.NewKeyedMutex())

	out := cmd.OutOrStdout()
	invalid := 0
	for i, r := range loaded {
		if r == nil {
			invalid++
			fmt.Fprintf(out, "rule %d: empty entry\n", i)
			continue
		}
		if err := engine.Validate(r); err != nil {
			invalid++
			fmt.Fprintf(out, "rule %d (%s): %v\n", i, r.Name, err)
		}
	}
	if invalid > 0 {
		return fmt.Errorf("%d of %d rules invalid", invalid, len(loaded))
	}
	fmt.Fprintf(out, "%d rules ok\n", len(loaded))
	return nil
}
