package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/cacaoengine/cacao/internal/config"
	"github.com/cacaoengine/cacao/internal/engine"
	"github.com/cacaoengine/cacao/internal/gpu/headless"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// The GPU loop runs on the main goroutine, which must stay on the main OS
// thread for the whole process.
func init() {
	runtime.LockOSThread()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func printBanner(title string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Printf("\033[36;1m  │\033[0m %-41s \033[36;1m│\033[0m\n", "Cacao Engine  v0.1.0")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mwindow:\033[0m %s\n\n", title)
}

func printSection(title string) {
	lineLen := max(46-len(title)-1, 3)
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, value any) {
	v := fmt.Sprint(value)
	dotsLen := max(42-len(label)-len(v), 3)
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), v)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

func run() error {
	// 1. Load config
	cfgPath := "config/engine.toml"
	if p := os.Getenv("CACAO_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Window.Title)
	printSection("pipeline")
	printStat("target tps", cfg.Engine.TargetDynTPS)
	printStat("fixed tick rate", cfg.Engine.FixedTickRate)
	printStat("max frame lag", cfg.Engine.MaxFrameLag)
	printStat("world", cfg.World.Path)
	printStat("telemetry", cfg.Telemetry.Enabled)
	fmt.Println()

	// 3. Wire the engine against the headless backend
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	backend := headless.NewBackend(time.Millisecond, log)
	window := headless.NewWindow(cfg.Window.Width, cfg.Window.Height)
	eng, err := engine.New(connectCtx, cfg, backend, window, log)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	printReady(fmt.Sprintf("gpu loop on main thread, %dx%d", cfg.Window.Width, cfg.Window.Height))
	fmt.Println()

	// 4. Run until a signal or window close
	if err := eng.Run(ctx); err != nil {
		return err
	}
	st := backend.Stats()
	log.Info("backend totals",
		zap.Uint64("draws", st.Draws),
		zap.Uint64("presents", st.Presents),
		zap.Uint64("commands", st.Commands),
	)
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
