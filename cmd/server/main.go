package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/Angus-Paillaugue/music-player/api"
	"github.com/Angus-Paillaugue/music-player/api/handlers"
	"github.com/Angus-Paillaugue/music-player/internal/app"
	"github.com/Angus-Paillaugue/music-player/internal/infrastructure"
	"github.com/Angus-Paillaugue/music-player/pkg/logger"
)

var (
	serverMode = flag.Bool("server-mode", false, "Internal flag: run in server mode (called by daemon)")
	configPath = flag.String("config", "", "Path to config file")
)

func main() {
	flag.Parse()

	// If not in server mode, run as daemon
	if !*serverMode {
		startAsDaemon()
		return
	}

	if err := runServer(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// startAsDaemon re-executes the binary detached, in server mode
func startAsDaemon() {
	execPath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get executable path: %v\n", err)
		os.Exit(1)
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "/"
	}

	args := []string{"-server-mode"}
	if *configPath != "" {
		args = append(args, "-config", *configPath)
	}
	cmd := exec.Command(execPath, args...)
	cmd.Dir = cwd
	cmd.Env = os.Environ()
	detach(cmd)

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", os.DevNull, err)
		os.Exit(1)
	}
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start daemon: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Server started as daemon (PID: %d)\n", cmd.Process.Pid)
	os.Exit(0)
}

func runServer() error {
	config, err := app.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(config.Library.BaseDir, 0755); err != nil {
		return fmt.Errorf("failed to create library directory: %w", err)
	}

	// one server per library
	lock := flock.New(config.Library.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire server lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another server is already running for %s", config.Library.BaseDir)
	}
	defer lock.Unlock()

	general, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Library.LogsDir(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer multiLog.Close()

	logAdapter := logger.NewLoggerAdapter(general, multiLog)
	defer logAdapter.Sync()
	log := logAdapter.General()

	log.Info("Starting music player server",
		zap.String("version", handlers.Version),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.String("library", config.Library.BaseDir))

	area := infrastructure.NewMediaArea(config.Library)
	if err := area.EnsureLayout(); err != nil {
		return fmt.Errorf("failed to create library layout: %w", err)
	}
	// nothing can own staging before the first session starts
	if err := area.PurgeStaging(); err != nil {
		log.Warn("Failed to purge stale staging", zap.Error(err))
	}

	db, err := infrastructure.OpenSQLite(config.Library.DatabasePath())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer infrastructure.CloseSQLite(db)

	store := infrastructure.NewSQLiteLibraryStore(db)
	history := infrastructure.NewSQLiteAcquisitionRepository(db)
	if n, err := history.FailInterrupted(); err != nil {
		log.Warn("Failed to close interrupted acquisitions", zap.Error(err))
	} else if n > 0 {
		log.Info("Marked interrupted acquisitions as failed", zap.Int64("count", n))
	}

	inspector := infrastructure.NewTagInspector()
	notifier := infrastructure.NewNotificationService(config.Notification, log)
	supervisor := infrastructure.NewSupervisor(config.Downloader, infrastructure.WithTranscript(multiLog))

	manager := app.NewAcquisitionManager(supervisor, area, store, inspector, history, notifier, logAdapter)
	scanner := app.NewLibraryScanner(area, store, inspector, logAdapter)

	router := api.SetupRouter(config, manager, scanner, store, logAdapter)

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("Received shutdown signal")
	case err := <-serverErr:
		logAdapter.LogError("HTTP server failed", zap.Error(err))
		return err
	}

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// sessions end first so their streams close and Shutdown can drain
	if err := manager.Shutdown(shutdownCtx); err != nil {
		log.Error("Acquisitions did not stop in time", zap.Error(err))
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
	return nil
}
