package server

import (
	"flag"
	"math/rand"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/voxeldelve/mapsync/engine/binutil"
	"github.com/voxeldelve/mapsync/engine/config"
	"github.com/voxeldelve/mapsync/engine/mslog"
)

var (
	args struct {
		configFile      string
		logLevel        string
		runInDaemonMode bool
	}
	serverService *ServerService
	signalChan    = make(chan os.Signal, 1)
)

func parseArgs() {
	flag.StringVar(&args.configFile, "configfile", "", "set config file path")
	flag.StringVar(&args.logLevel, "log", "", "set log level, will override log level in config")
	flag.BoolVar(&args.runInDaemonMode, "d", false, "run in daemon mode")
	flag.Parse()
}

// Start fires up the map server instance
func Start() {
	rand.Seed(time.Now().UnixNano())
	parseArgs()

	if args.runInDaemonMode {
		daemoncontext := binutil.Daemonize()
		defer daemoncontext.Release()
	}

	if args.configFile != "" {
		config.SetConfigFile(args.configFile)
	}

	serverConfig := config.GetServer()
	if serverConfig.GoMaxProcs > 0 {
		mslog.Infof("SET GOMAXPROCS = %d", serverConfig.GoMaxProcs)
		runtime.GOMAXPROCS(serverConfig.GoMaxProcs)
	}
	logLevel := args.logLevel
	if logLevel == "" {
		logLevel = serverConfig.LogLevel
	}
	binutil.SetupMSLog("server", logLevel, serverConfig.LogFile, serverConfig.LogStderr)

	serverService = newServerService(serverConfig)
	binutil.SetupHTTPServer(serverConfig.HTTPIp, serverConfig.HTTPPort, serverService.handleWebsocketConn)

	setupSignals()
	serverService.run()
}

func setupSignals() {
	mslog.Infof("Setup signals ...")
	signal.Ignore(syscall.Signal(10), syscall.Signal(12), syscall.SIGPIPE, syscall.SIGHUP)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for {
			sig := <-signalChan
			if sig == syscall.SIGINT || sig == syscall.SIGTERM {
				mslog.Infof("Terminating server service ...")
				serverService.terminate()
				serverService.terminated.Wait()
				mslog.Infof("Server terminated gracefully.")
				os.Exit(0)
			} else {
				mslog.Errorf("unexpected signal: %s", sig)
			}
		}
	}()
}
