package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"gorged/config"
	"gorged/interceptor"
	"gorged/models"
	"gorged/pipeline"
)

var (
	listOutput      string
	listTag         string
	listEnabledOnly bool
	docsReadme      string
	regexAll        bool
	checkRules      []string
)

var interceptorsCmd = &cobra.Command{
	Use:         "interceptors",
	Aliases:     []string{"ic"},
	Short:       "Inspects the compiled-in interceptors",
	Annotations: map[string]string{noDatabase: "true"},
}

// configuredPipeline resolves the catalog against the configured rules,
// without metrics or event recording.
func configuredPipeline(rules []string) (*pipeline.Pipeline, error) {
	reg, err := interceptor.Default()
	if err != nil {
		return nil, err
	}
	parsed, err := interceptor.ParseRules(rules)
	if err != nil {
		return nil, err
	}
	return pipeline.New(reg, parsed)
}

func writeInterceptors(w io.Writer, format string, infos []models.InterceptorInfo) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(infos); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		writer := new(tabwriter.Writer)
		writer.Init(w, 0, 8, 1, '\t', 0)
		fmt.Fprintln(writer, "ID\tENABLED\tDEFAULT\tTAGS\tDESCRIPTION")
		fmt.Fprintln(writer, "--\t-------\t-------\t----\t-----------")
		for _, info := range infos {
			fmt.Fprintf(writer, "%s\t%t\t%t\t%s\t%s\n", info.ID, info.Enabled, info.DefaultEnabled, strings.Join(info.Tags, ","), info.Description)
		}
		return writer.Flush()
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

var interceptorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists interceptors with their effective enablement",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := configuredPipeline(config.AppConfig.Interceptors.Rules)
		if err != nil {
			return err
		}
		var infos []models.InterceptorInfo
		for _, info := range p.Interceptors() {
			if listEnabledOnly && !info.Enabled {
				continue
			}
			if listTag != "" && !containsTag(info.Tags, listTag) {
				continue
			}
			infos = append(infos, info)
		}
		return writeInterceptors(cmd.OutOrStdout(), listOutput, infos)
	},
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

var interceptorsDocsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Prints the markdown table of interceptors, or rewrites it inside a README",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := configuredPipeline(nil)
		if err != nil {
			return err
		}
		table := interceptor.MarkdownTable(p.Interceptors())
		if docsReadme == "" {
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		}

		existing, err := os.ReadFile(docsReadme)
		if err != nil {
			return fmt.Errorf("reading %s: %w", docsReadme, err)
		}
		updated, err := interceptor.ReplaceDocsRegion(string(existing), table)
		if err != nil {
			return fmt.Errorf("%s: %w", docsReadme, err)
		}
		if err := os.WriteFile(docsReadme, []byte(updated), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", docsReadme, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated interceptor table in %s\n", docsReadme)
		return nil
	},
}

var interceptorsRegexCmd = &cobra.Command{
	Use:   "regex",
	Short: "Prints one regex matching every URL an enabled interceptor handles",
	Long: `Prints the alternation of the URL patterns of all enabled interceptors. The
proxy uses the same regex to decide which CONNECT targets to intercept; it
can also be fed to other tools' allow-host options.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := configuredPipeline(config.AppConfig.Interceptors.Rules)
		if err != nil {
			return err
		}
		ics := p.Enabled()
		if regexAll {
			reg, err := interceptor.Default()
			if err != nil {
				return err
			}
			ics = reg.All()
		}
		fmt.Fprintln(cmd.OutOrStdout(), interceptor.AggregatePattern(ics))
		return nil
	},
}

var interceptorsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validates enablement rules and shows which rule decides each interceptor",
	Long: `Parses the configured interceptors.rules (or the --rule flags, which replace
them) and prints every interceptor with its effective state and the first
matching rule. A malformed rule is reported and the command fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		lines := config.AppConfig.Interceptors.Rules
		if cmd.Flags().Changed("rule") {
			lines = checkRules
		}
		rules, err := interceptor.ParseRules(lines)
		if err != nil {
			return err
		}
		reg, err := interceptor.Default()
		if err != nil {
			return err
		}

		writer := new(tabwriter.Writer)
		writer.Init(cmd.OutOrStdout(), 0, 8, 1, '\t', 0)
		fmt.Fprintln(writer, "ID\tENABLED\tDECIDED BY")
		fmt.Fprintln(writer, "--\t-------\t----------")
		for _, ic := range reg.All() {
			decidedBy := "default"
			if rule, ok := rules.Lookup(ic.ID); ok {
				decidedBy = rule.String()
			}
			fmt.Fprintf(writer, "%s\t%t\t%s\n", ic.ID, rules.Resolve(ic), decidedBy)
		}
		if err := writer.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d rule(s) OK\n", len(rules))
		return nil
	},
}

func init() {
	interceptorsListCmd.Flags().StringVarP(&listOutput, "output", "o", "table", "output format: table, json or yaml")
	interceptorsListCmd.Flags().StringVar(&listTag, "tag", "", "only interceptors carrying this tag (e.g. site:reddit)")
	interceptorsListCmd.Flags().BoolVar(&listEnabledOnly, "enabled", false, "only enabled interceptors")
	interceptorsDocsCmd.Flags().StringVar(&docsReadme, "readme", "", "README to update between the BEGIN FLAG DOCS / END FLAG DOCS markers")
	interceptorsRegexCmd.Flags().BoolVar(&regexAll, "all", false, "include disabled interceptors")
	interceptorsCheckCmd.Flags().StringArrayVar(&checkRules, "rule", nil, "rule to check, \"<enable|disable>:<regex>\" (repeatable)")

	interceptorsCmd.AddCommand(interceptorsListCmd, interceptorsDocsCmd, interceptorsRegexCmd, interceptorsCheckCmd)
	rootCmd.AddCommand(interceptorsCmd)
}
