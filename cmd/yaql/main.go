package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/jondavid-black/advanced-yaml/yaql"
)

const version = "0.1.0"

func main() {
	var (
		showVersion = flag.Bool("version", false, "print the version and exit")
		quiet       = flag.Bool("quiet", false, "log errors only")
		verbose     = flag.Bool("verbose", false, "enable debug logging")
		output      = flag.String("output", "text", "query output format: text or json")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("yaql " + version)
		return
	}
	if *output != "text" && *output != "json" {
		fatalf("unknown output format %q, want text or json", *output)
	}

	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.OutputPaths = []string{"stderr"}
	switch {
	case *verbose:
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.Development = true
	case *quiet:
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		fatalf("logger: %v", err)
	}
	defer logger.Sync()

	eng := yaql.NewEngine(yaql.WithLogger(logger.Sugar()))
	if err := newShell(eng, *output).run(); err != nil {
		fatalf("%v", err)
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
