package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/chatrelay/internal/daemon"
	"github.com/matheus3301/chatrelay/internal/instance"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	instanceFlag := flag.String("instance", "", "instance name (overrides config default)")
	listenFlag := flag.String("listen", "", "HTTP/websocket listen address (overrides config)")
	logLevelFlag := flag.String("log-level", "", "log level (overrides config)")
	flag.Parse()

	instanceName := instance.Resolve(*instanceFlag)
	if err := instance.ValidateName(instanceName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			InstanceName: instanceName,
			ListenAddr:   *listenFlag,
			LogLevel:     *logLevelFlag,
		}),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
	)

	app.Run()
}
