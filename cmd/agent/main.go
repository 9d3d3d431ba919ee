package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Hara602/folderSentry/internal/config"
	"github.com/Hara602/folderSentry/internal/model"
	"github.com/Hara602/folderSentry/internal/session"
	"github.com/Hara602/folderSentry/internal/sysutil"
	"github.com/Hara602/folderSentry/internal/tui"
	"go.uber.org/zap"
)

var Version = "0.1.0"

var (
	configPath = flag.String("config", "/etc/foldersentry/guard.yaml", "配置文件路径")
	headless   = flag.Bool("headless", false, "不启动终端界面，只输出日志")
	showVer    = flag.Bool("version", false, "显示版本信息")
)

func main() {
	flag.Parse()
	if *showVer {
		fmt.Printf("folderSentry %s\n", Version)
		return
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	root := cfg.Guard.Root
	if flag.NArg() > 0 {
		root = flag.Arg(0)
	}
	runHeadless := *headless || cfg.UI.Headless

	// 终端界面占用屏幕，日志只能写文件
	logOutput := cfg.Log.Output
	if !runHeadless {
		logOutput = "file"
	}
	if err := sysutil.InitLogger(sysutil.LogOptions{
		Level:      cfg.Log.Level,
		Output:     logOutput,
		FilePath:   cfg.Log.FilePath,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer sysutil.Log.Sync()

	// Fanotify 与终止任意进程都需要 Root 权限
	if os.Geteuid() != 0 {
		sysutil.LogSugar.Fatal("Must run as root (required by Fanotify).")
	}

	sysutil.Log.Info("🛡️ folderSentry starting...", zap.String("version", Version))

	mgr := session.New(session.Options{
		Allow:        cfg.Guard.Allow,
		ReservedPIDs: cfg.Guard.ReservedPIDs,
		NotifyBuffer: cfg.Session.NotifyBuffer,
		ReadBuffer:   cfg.Session.ReadBuffer,
	})
	defer func() {
		if err := mgr.Dispose(); err != nil {
			sysutil.Log.Warn("Session disposal failed", zap.Error(err))
		}
	}()

	if runHeadless {
		runLogOnly(mgr, root)
		return
	}

	cwd, _ := os.Getwd()
	final, err := tui.Run(mgr, root, cwd)
	if err != nil {
		sysutil.Log.Error("Terminal UI failed", zap.Error(err))
		return
	}
	if final.Aborted() {
		sysutil.Log.Info("No path selected. Shut down.")
		return
	}
	sysutil.Log.Info("Shutting down...", zap.Int("terminated", len(final.Victims())))
}

// runLogOnly 无界面模式：把终止记录写入日志
func runLogOnly(mgr *session.Manager, root string) {
	if err := mgr.Start(root); err != nil {
		if errors.Is(err, session.ErrSetupAbort) {
			sysutil.Log.Info("No path selected. Shut down.")
			return
		}
		sysutil.Log.Fatal("Session start failed", zap.Error(err))
	}

	// 捕获操作系统信号，释放会话后等待处理循环结束
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	followSession(mgr, sigCh, func(rec model.KillRecord) {
		sysutil.Log.Info("💀 Terminated",
			zap.String("process", rec.String()),
			zap.Int64("seq", rec.Seq))
	})
}

// sessionFeed 无界面模式消费的会话接口
type sessionFeed interface {
	Notifications() <-chan model.KillRecord
	Done() <-chan struct{}
	Dispose() error
}

// followSession 逐条输出终止记录，直到处理循环结束且通知全部读完
func followSession(s sessionFeed, sigCh <-chan os.Signal, logKill func(model.KillRecord)) {
	notifications := s.Notifications()
	for {
		select {
		case rec, ok := <-notifications:
			if !ok {
				notifications = nil
				continue
			}
			logKill(rec)

		case <-s.Done():
			// notify 先于 done 关闭，缓冲中的记录仍需输出
			if notifications != nil {
				for rec := range notifications {
					logKill(rec)
				}
			}
			sysutil.Log.Info("All done processing events.")
			return

		case sig := <-sigCh:
			sysutil.Log.Info("Shutting down...", zap.String("signal", sig.String()))
			if err := s.Dispose(); err != nil {
				sysutil.Log.Warn("Session disposal failed", zap.Error(err))
			}
		}
	}
}
