package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nocturnecity/upload-resizer/internal"
	"github.com/nocturnecity/upload-resizer/pkg"
)

const runCmd = "run"
const resizeCmd = "resize"
const watchCmd = "watch"
const defaultPort = 8080
const defaultTimeout = 90
const defaultLogLvl = "info"

var commands = []string{runCmd, resizeCmd, watchCmd}

func main() {
	flag.Parse()

	if len(os.Args[1:]) < 1 {
		fmt.Printf("resizer: one of the following command expected: '%v'\n", commands)
		os.Exit(1)
	}
	cmdName := os.Args[1]
	args := os.Args[2:]
	var (
		logLVL           string
		port             int
		timeout          int
		workers          int
		parallelism      int
		workingDirectory string
		staticDir        string
		presetsPath      string
	)

	cmd := flag.NewFlagSet(cmdName, flag.ExitOnError)
	cmd.StringVar(&logLVL, "loglvl", defaultLogLvl, "set logging level: 'debug', 'info', 'warn', 'error'")
	cmd.IntVar(&parallelism, "parallelism", 0, "set max sizes resized at once per image, 0 for no limit")
	switch cmdName {
	case runCmd:
		cmd.StringVar(&workingDirectory, "working-directory", ".", "set directory originals are read from")
		cmd.StringVar(&staticDir, "static-dir", ".", "set directory resized images are saved to")
		cmd.IntVar(&port, "port", defaultPort, "set HTTP server port")
		cmd.IntVar(&timeout, "timeout", defaultTimeout, "set HTTP server timeout seconds")
		cmd.IntVar(&workers, "workers", runtime.NumCPU(), "set number of images resized at once")
	case resizeCmd, watchCmd:
		cmd.StringVar(&presetsPath, "presets", "sizes.yaml", "set YAML file with image sizes")
		cmd.StringVar(&staticDir, "static-dir", "", "override static_dir from the presets file")
	default:
		fmt.Printf("resizer: unknown sub-command '%s', expected one of '%v'\n", cmdName, commands)
		os.Exit(1)
	}

	if err := cmd.Parse(args); err != nil {
		fmt.Printf("resizer: error parsing arguments: '%v'\n", err)
		os.Exit(1)
	}

	lvl, lvlErr := internal.ParseLevel(logLVL)
	if lvlErr != nil {
		fmt.Printf("resizer: error parsing log level: '%v'\n", lvlErr)
		os.Exit(1)
	}

	stdLog := internal.NewStdLog(internal.WithLevel(lvl))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmdName {
	case runCmd:
		server := internal.NewHttpServer(
			port,
			time.Duration(timeout)*time.Second,
			workers,
			internal.ResizerConfig{
				WorkingDirectory: workingDirectory,
				StaticDir:        staticDir,
				Parallelism:      parallelism,
			},
			stdLog)
		server.Run()
		<-ctx.Done()
		stdLog.Info("Interrupt signal received, shutting down servers...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
		defer cancel()
		server.Stop(shutdownCtx)
	case resizeCmd:
		if cmd.NArg() < 1 {
			stdLog.Fatal("resize expects at least one image path")
		}
		presets := loadPresets(presetsPath, staticDir, stdLog)
		resizer := newLocalResizer(stdLog, parallelism)
		out := map[string]pkg.FileSizes{}
		for _, path := range cmd.Args() {
			res, err := presets.ResizeFile(ctx, resizer, path)
			if err != nil {
				stdLog.Fatal("resize %s: %v", path, err)
			}
			out[path] = res.Sizes
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			stdLog.Fatal("write result: %v", err)
		}
	case watchCmd:
		if cmd.NArg() != 1 {
			stdLog.Fatal("watch expects exactly one directory")
		}
		presets := loadPresets(presetsPath, staticDir, stdLog)
		watcher, err := internal.NewWatcher(cmd.Arg(0), presets, newLocalResizer(stdLog, parallelism), stdLog)
		if err != nil {
			stdLog.Fatal("watch: %v", err)
		}
		if err := watcher.Run(ctx); err != nil {
			stdLog.Fatal("watch: %v", err)
		}
		stdLog.Info("Watcher stopped")
	}
}

func loadPresets(path, staticDir string, stdLog *internal.StdLog) *internal.Presets {
	presets, err := internal.LoadPresets(path)
	if err != nil {
		stdLog.Fatal("load presets: %v", err)
	}
	if staticDir != "" {
		presets.StaticDir = staticDir
	}
	return presets
}

func newLocalResizer(stdLog *internal.StdLog, parallelism int) *internal.Resizer {
	return internal.NewResizer(
		internal.NewImagingCodec(),
		internal.NewLocalStorage(stdLog),
		stdLog,
		internal.WithParallelism(parallelism))
}
