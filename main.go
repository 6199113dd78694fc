// main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/petervdpas/avp/internal/app"
	"github.com/petervdpas/avp/internal/config"
	"github.com/petervdpas/avp/internal/sample"
	"github.com/petervdpas/avp/internal/source"
)

var (
	showHelp    = flag.Bool("h", false, "Show help")
	version     = flag.Bool("version", false, "Show version")
	cfgPath     = flag.String("config", "avp.json", "Config file (created with defaults when missing)")
	openBrowser = flag.Bool("open", false, "Open the creator page in a browser")
	title       = flag.String("title", sample.DefaultTitle, "Title for the sample command")
)

// appVersion is set at build time via -ldflags "-X main.appVersion=x.y.z"
var appVersion = "dev"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("avp v%s\n", appVersion)
		return
	}
	if *showHelp {
		showUsage()
		return
	}

	args := flag.Args()
	command := "serve"
	if len(args) > 0 {
		command = args[0]
	}

	switch command {
	case "serve":
		runServe()

	case "inspect":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Error: inspect requires a package path or URL")
			fmt.Fprintln(os.Stderr, "Usage: avp inspect <file|url|gs://bucket/object>")
			os.Exit(1)
		}
		runInspect(args[1])

	case "sample":
		out := sample.FileName
		if len(args) > 1 {
			out = args[1]
		}
		cfg := loadConfig(false)
		app.SetupLogging(cfg.Logging)
		if err := app.WriteSample(out, *title); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command '%s'\n", command)
		fmt.Fprintln(os.Stderr)
		showUsage()
		os.Exit(1)
	}
}

// loadConfig reads -config, overlays .env and the environment. serve
// creates the file when missing; the one-shot commands only read it.
func loadConfig(create bool) config.Config {
	absCfg, err := filepath.Abs(*cfgPath)
	if err != nil {
		fatalf("Invalid config path: %v", err)
	}

	if err := config.LoadDotEnv(filepath.Join(filepath.Dir(absCfg), ".env"), ".env"); err != nil {
		fatalf("Failed to load .env: %v", err)
	}

	var cfg config.Config
	switch {
	case create:
		var created bool
		cfg, created, err = config.Ensure(absCfg)
		if created {
			fmt.Printf("Created default config: %s\n", absCfg)
		}
	default:
		cfg, err = config.Load(absCfg)
		if os.IsNotExist(err) {
			cfg, err = config.Default(), nil
		}
	}
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}

	if err := config.ApplyEnv(&cfg, nil); err != nil {
		fatalf("Invalid environment: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		fatalf("Invalid config: %v", err)
	}
	return cfg
}

func runServe() {
	cfg := loadConfig(true)
	app.SetupLogging(cfg.Logging)

	absCfg, _ := filepath.Abs(*cfgPath)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, app.Options{
		CfgPath:     absCfg,
		Cfg:         cfg,
		Version:     appVersion,
		OpenBrowser: *openBrowser,
	}); err != nil {
		fatalf("Server failed: %v", err)
	}
}

func runInspect(src string) {
	cfg := loadConfig(false)
	app.SetupLogging(cfg.Logging)

	fetcher := source.NewFetcher(cfg.Limits.MaxFileSize(),
		time.Duration(cfg.Sources.HTTPTimeoutSeconds)*time.Second)

	err := app.Inspect(context.Background(), os.Stdout, cfg, fetcher, src)
	_ = fetcher.Close()
	if err != nil {
		fatalf("Error: %v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func showUsage() {
	fmt.Println("avp - AVP lesson creator and player")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  avp [options] [serve]          Run the creator web server (default)")
	fmt.Println("  avp [options] inspect <src>    Decode a package and print its timeline")
	fmt.Println("  avp [options] sample [out]     Write the generated test lesson")
	fmt.Println()
	fmt.Println("Sources for inspect:")
	fmt.Println("  ./lesson.avp, file:///abs/lesson.avp, https://host/lesson.avp, gs://bucket/lesson.avp")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -config <file>  Config file (default avp.json)")
	fmt.Println("  -open           Open the creator page in a browser")
	fmt.Println("  -title <text>   Title for the sample command")
	fmt.Println("  -h              Show this help message")
	fmt.Println("  -version        Show version information")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  SERVER_PORT, GOOGLE_CLOUD_PROJECT_ID, GOOGLE_CLOUD_TTS_API_KEY,")
	fmt.Println("  GEMINI_API_KEY, TTS_PROVIDER, LOG_LEVEL, AVP_LIBRARY_DIR")
}
