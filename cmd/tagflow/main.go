// Command tagflow is the CLI entrypoint: "single" drives one file or
// stdin through the configured graph once, "watch" runs the file-queue
// daemon. Grounded on the teacher's cmd/main.go flag parsing, split into
// subcommands since this domain has two distinct run modes instead of
// one always-on daemon.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tagflow/tagflow/internal/app"
	"github.com/tagflow/tagflow/internal/queue"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "single":
		runSingle(os.Args[2:])
	case "watch":
		runWatch(os.Args[2:])
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: tagflow <single|watch> [flags]")
	fmt.Fprintln(os.Stderr, "  tagflow single --config config.yaml [--in file] [--out file]")
	fmt.Fprintln(os.Stderr, "  tagflow watch  --config config.yaml --unprocessed DIR --underprocess DIR --processed DIR")
}

func commonFlags(fs *flag.FlagSet) (*string, *string, *bool) {
	configFile := fs.String("config", envOr("ROUTER_CONFIG_FILE", "config.yaml"), "path to the pipeline config YAML")
	httpAddr := fs.String("http", envOr("ROUTER_HTTP_ADDR", ":8080"), "address for the HTTP observability surface, empty to disable")
	traceEnabled := fs.Bool("trace", false, "enable per-hop tracing (overridden by TRACE_ENABLED env var)")
	return configFile, httpAddr, traceEnabled
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func runSingle(args []string) {
	fs := flag.NewFlagSet("single", flag.ExitOnError)
	configFile, httpAddr, traceEnabled := commonFlags(fs)
	in := fs.String("in", "-", "input file, or - for stdin")
	out := fs.String("out", "-", "output file, or - for stdout")
	fs.Parse(args)

	a, err := app.New(app.Config{
		ConfigFile:   *configFile,
		Mode:         app.ModeSingle,
		InputPath:    *in,
		OutputPath:   *out,
		HTTPAddr:     *httpAddr,
		TraceEnabled: traceFromEnvOrFlag(*traceEnabled),
		LogLevel:     envOr("ROUTER_LOG_LEVEL", "info"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize tagflow: %v\n", err)
		os.Exit(1)
	}
	if err := a.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "tagflow exited with error: %v\n", err)
		os.Exit(1)
	}
}

func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configFile, httpAddr, traceEnabled := commonFlags(fs)
	unprocessed := fs.String("unprocessed", envOr("ROUTER_QUEUE_UNPROCESSED", "./unprocessed"), "directory holding files awaiting processing")
	underprocess := fs.String("underprocess", envOr("ROUTER_QUEUE_UNDERPROCESS", "./underprocess"), "directory holding the file currently claimed")
	processed := fs.String("processed", envOr("ROUTER_QUEUE_PROCESSED", "./processed"), "directory holding successfully processed files")
	fs.Parse(args)

	a, err := app.New(app.Config{
		ConfigFile: *configFile,
		Mode:       app.ModeWatch,
		QueueDirs: queue.Dirs{
			Unprocessed:  *unprocessed,
			Underprocess: *underprocess,
			Processed:    *processed,
		},
		HTTPAddr:     *httpAddr,
		TraceEnabled: traceFromEnvOrFlag(*traceEnabled),
		LogLevel:     envOr("ROUTER_LOG_LEVEL", "info"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize tagflow: %v\n", err)
		os.Exit(1)
	}
	if err := a.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "tagflow exited with error: %v\n", err)
		os.Exit(1)
	}
}

func traceFromEnvOrFlag(flagVal bool) bool {
	if v := os.Getenv("TRACE_ENABLED"); v != "" {
		switch v {
		case "1", "true", "TRUE", "True", "yes":
			return true
		default:
			return false
		}
	}
	return flagVal
}
