package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	viperlib "github.com/spf13/viper"
)

// viper loads optional flag defaults from a config file, mirroring the
// teacher's cmd/root.go (a dedicated instance rather than viperlib's
// package-level singleton, so tests importing this package never share
// global config state).
var viper = viperlib.New()

var (
	memFlag    bool
	filterFlag string
)

var rootCmd = &cobra.Command{
	Use:   "bench",
	Short: "Benchmark harness for the text engine core",
	Long: "bench runs a fixed suite of micro-benchmarks over the rope, textbuffer,\n" +
		"textbufferview, and editbuffer packages and prints ns/op (and, with\n" +
		"--mem, bytes/op and allocs/op) for each.",
	RunE: runBenchCmd,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.Flags().BoolVar(&memFlag, "mem", false, "report memory statistics per benchmark")
	rootCmd.Flags().StringVarP(&filterFlag, "filter", "f", "", "case-insensitive substring filter on benchmark name")

	// Unknown flags are ignored per spec, rather than treated as a usage
	// error — the one divergence from cobra's default strictness this
	// runner needs.
	rootCmd.FParseErrWhitelist.UnknownFlags = true

	_ = viper.BindPFlag("mem", rootCmd.Flags().Lookup("mem"))
	_ = viper.BindPFlag("filter", rootCmd.Flags().Lookup("filter"))
}

func initConfig() {
	viper.SetDefault("mem", false)
	viper.SetDefault("filter", "")

	viper.SetConfigName("bench")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // absent config file is not an error; defaults apply
}

func runBenchCmd(cmd *cobra.Command, args []string) error {
	mem := memFlag || viper.GetBool("mem")
	filter := filterFlag
	if filter == "" {
		filter = viper.GetString("filter")
	}

	var out strings.Builder
	matched := runAll(filter, mem, &out)
	if matched == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no benchmarks matched filter %q\n", filter)
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), out.String())
	return nil
}

// Execute runs the bench command.
func Execute() error {
	return rootCmd.Execute()
}

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
