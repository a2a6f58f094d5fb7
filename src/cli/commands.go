package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"def-gateway/src/internal/common"
	versionpkg "def-gateway/src/internal/version"
)

// CLI Constants
const (
	CmdServe     = "serve"
	CmdResolve   = "resolve"
	CmdStatus    = "status"
	CmdVersion   = "version"
	CmdConfig    = "config"
	CmdConfigGen = "generate"
	FlagConfig   = "config"
	FlagLine     = "line"
	FlagColumn   = "column"
	FlagWait     = "wait"
	FlagVerbose  = "verbose"
	FlagOut      = "out"
)

// CLI Variables
var (
	configPath string
	line       int
	column     int
	wait       bool
	verbose    bool
	outPath    string
)

// Root command
var rootCmd = &cobra.Command{
	Use:   "def-gateway",
	Short: "Definition Gateway - a concurrent definition-resolution cache over a REPL analysis session",
	Long: `Definition Gateway maps identifier references in source files to their
definition locations. Lookups are delegated to a single long-lived analysis
session (a GHCi-style REPL) and memoized per reference occurrence, so repeat
navigation is served from cache.

QUICK START:
  def-gateway serve                        # Start the gateway over the current workspace
  def-gateway resolve Foo.hs -l 10 -c 5    # One-shot definition lookup

CORE FEATURES:
  - Coalesced lookups: one in-flight computation per reference
  - Transient failures (busy session, timeouts) are never cached
  - Forward and backward invalidation on file changes
  - Foreground lookups never block on in-flight computations

Use 'def-gateway <command> --help' for detailed command information.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Command definitions
var (
	serveCmd = &cobra.Command{
		Use:   CmdServe,
		Short: "Start the definition gateway",
		Long: `Start the gateway: launch the analysis session, index the workspace,
and watch source files for changes until interrupted.`,
		RunE: runServeCmd,
	}

	resolveCmd = &cobra.Command{
		Use:   CmdResolve + " <file>",
		Short: "Resolve the definition of the identifier at a position",
		Long: `Resolve the identifier occurrence at --line/--column (one-based) in the
given file and print its definition location.

By default the lookup runs in foreground mode and returns immediately if no
cached answer exists yet. Use --wait to wait on the computation up to the
configured ceiling.

Examples:
  def-gateway resolve src/Foo.hs --line 10 --column 5
  def-gateway resolve src/Foo.hs -l 10 -c 5 --wait`,
		Args: cobra.ExactArgs(1),
		RunE: runResolveCmd,
	}

	statusCmd = &cobra.Command{
		Use:   CmdStatus,
		Short: "Show session and cache status",
		Long:  `Display the analysis session state and the definition cache size.`,
		RunE:  runStatusCmd,
	}

	versionCmd = &cobra.Command{
		Use:   CmdVersion,
		Short: "Show version information",
		Long: `Display version information for Definition Gateway.

By default, shows only the version number. Use --verbose for detailed build
information including commit hash, build date, and Go version.`,
		RunE: runVersionCmd,
	}

	configCmd = &cobra.Command{
		Use:   CmdConfig,
		Short: "Manage configuration",
		Long:  `Inspect and generate the gateway configuration file.`,
		RunE:  runConfigCmd,
	}

	configGenCmd = &cobra.Command{
		Use:   CmdConfigGen,
		Short: "Generate a default configuration file",
		Long:  `Write a default configuration file, to --out or the default path.`,
		RunE:  runConfigGenCmd,
	}
)

func init() {
	serveCmd.Flags().StringVarP(&configPath, FlagConfig, "c", "", "Configuration file path (optional, will use defaults if not provided)")

	resolveCmd.Flags().StringVar(&configPath, FlagConfig, "", "Configuration file path (optional)")
	resolveCmd.Flags().IntVarP(&line, FlagLine, "l", 1, "One-based line of the reference")
	resolveCmd.Flags().IntVarP(&column, FlagColumn, "C", 1, "One-based column of the reference")
	resolveCmd.Flags().BoolVar(&wait, FlagWait, false, "Wait on the computation up to the configured ceiling")

	statusCmd.Flags().StringVarP(&configPath, FlagConfig, "c", "", "Configuration file path (optional)")

	versionCmd.Flags().BoolVarP(&verbose, FlagVerbose, "v", false, "Show detailed version information")

	configGenCmd.Flags().StringVar(&outPath, FlagOut, "", "Output path for the generated configuration")
	configCmd.AddCommand(configGenCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}

func runVersionCmd(cmd *cobra.Command, args []string) error {
	if verbose {
		fmt.Println(versionpkg.GetFullVersionInfo())
	} else {
		fmt.Println(versionpkg.GetVersion())
	}
	return nil
}

// Execute runs the root command
func Execute() error {
	common.CLILogger.Debug("Executing root command")
	return rootCmd.Execute()
}
