package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hedisam/matpipe/config"
	"github.com/hedisam/matpipe/masternode/dispatcher"
	"github.com/hedisam/matpipe/matrix"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	code, err := newRootCmd().execute()
	if err != nil {
		os.Exit(1)
	}
	os.Exit(code)
}

// rootCmd wraps the cobra command so the dispatcher's exit code can be handed back to main.
type rootCmd struct {
	cmd  *cobra.Command
	v    *viper.Viper
	code int
}

func newRootCmd() *rootCmd {
	r := &rootCmd{v: viper.New()}
	r.cmd = &cobra.Command{
		Use:   "matmul <initialA-path> <weight-path>...",
		Short: "Multiply a stream of A matrices against a set of weight matrices",
		Long: `matmul multiplies the initial A matrix by every weight matrix, one worker per weight matrix, each
computing its product row by row in parallel. It then reads more A filenames from standard input, one per line, and
has every worker multiply them too, until the input ends or a file does not exist. Each worker writes its results to
{id}.out and its diagnostics to {id}.err.`,
		Args:          cobra.MinimumNArgs(2),
		SilenceErrors: true,
		RunE:          r.run,
	}

	flags := r.cmd.Flags()
	flags.String("config", "", "path to a YAML config file")
	flags.Int("rows", 8, "number of rows of every matrix")
	flags.Int("cols", 8, "number of columns of every matrix")
	flags.String("output-dir", ".", "directory of the workers' output files")
	flags.Int("max-filename-len", 126, "filenames read from stdin are truncated to this length")
	flags.String("format", "text", "matrix output format: text or yaml")
	flags.String("log-level", "warn", "log level: debug, info, warn, error")
	flags.Bool("strict-exit", false, "exit with 1 if any worker failed")
	flags.Int("row-limit", 0, "max rows computed at once per worker, 0 for no limit")

	for key, flag := range map[string]string{
		"rows":             "rows",
		"cols":             "cols",
		"output_dir":       "output-dir",
		"max_filename_len": "max-filename-len",
		"format":           "format",
		"log_level":        "log-level",
		"strict_exit":      "strict-exit",
		"row_limit":        "row-limit",
	} {
		cobra.CheckErr(r.v.BindPFlag(key, flags.Lookup(flag)))
	}

	return r
}

func (r *rootCmd) execute() (int, error) {
	err := r.cmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1, err
	}
	return r.code, nil
}

func (r *rootCmd) run(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(r.v, path)
	if err != nil {
		return err
	}
	// usage is only relevant to argument errors
	cmd.SilenceUsage = true

	renderer, err := matrix.NewRenderer(cfg.Format)
	if err != nil {
		return err
	}

	d, err := dispatcher.New(dispatcher.Config{
		Dims:           cfg.Dims(),
		OutputDir:      cfg.OutputDir,
		MaxFilenameLen: cfg.MaxFilenameLen,
		RowLimit:       cfg.RowLimit,
		StrictExit:     cfg.StrictExit,
		Renderer:       renderer,
		Stdout:         cmd.OutOrStdout(),
		Logger:         setupLogger(cfg.Level()),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := d.Run(ctx, args[0], args[1:], cmd.InOrStdin())
	if err != nil {
		return err
	}

	r.code = report.Code
	return nil
}

func setupLogger(level logrus.Level) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	return logger
}
