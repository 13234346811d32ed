package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/eringen/spacetraveling"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "build":
		err = runBuild(args)
	case "version":
		fmt.Printf("spacetraveling %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(configPath string, opts ...spacetraveling.Option) (*spacetraveling.App, error) {
	cfg, err := spacetraveling.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return spacetraveling.New(cfg, opts...)
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("CONFIG_PATH"), "YAML config file")
	_ = fs.Parse(args)

	app, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer app.Close()

	errc := make(chan error, 1)
	go func() {
		errc <- app.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		return err
	case <-stop:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func runBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("CONFIG_PATH"), "YAML config file")
	out := fs.String("out", "dist", "output directory")
	timeout := fs.Duration("timeout", 10*time.Minute, "overall build timeout")
	_ = fs.Parse(args)

	app, err := newApp(*configPath, spacetraveling.WithoutStore())
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, *timeout)
	defer cancelTimeout()

	return app.Export(ctx, *out)
}

func printUsage() {
	fmt.Println(`spacetraveling - a blog front end for a Prismic repository

Usage:
  spacetraveling [command] [flags]

Commands:
  serve            Serve the site (default)
  build -out dir   Export the site as static files
  version          Print the version
  help             Show this help message

Flags:
  -config path     YAML config file (default $CONFIG_PATH)

Environment:`)
	fmt.Println(spacetraveling.ConfigUsage())
}
