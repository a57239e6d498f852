package client

import (
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/voxeldelve/mapsync/engine/binutil"
	"github.com/voxeldelve/mapsync/engine/config"
	"github.com/voxeldelve/mapsync/engine/mslog"
	"github.com/voxeldelve/mapsync/engine/post"
)

var (
	args struct {
		configFile   string
		logLevel     string
		requestRegen bool
	}
	mapClient  *MapClient
	signalChan = make(chan os.Signal, 1)
)

func parseArgs() {
	flag.StringVar(&args.configFile, "configfile", "", "set config file path")
	flag.StringVar(&args.logLevel, "log", "", "set log level, will override log level in config")
	flag.BoolVar(&args.requestRegen, "regen", false, "request a map regeneration after connecting")
	flag.Parse()
}

// Start fires up the map client instance
func Start() {
	rand.Seed(time.Now().UnixNano())
	parseArgs()

	if args.configFile != "" {
		config.SetConfigFile(args.configFile)
	}

	clientConfig := config.GetClient()
	if clientConfig.GoMaxProcs > 0 {
		mslog.Infof("SET GOMAXPROCS = %d", clientConfig.GoMaxProcs)
		runtime.GOMAXPROCS(clientConfig.GoMaxProcs)
	}
	logLevel := args.logLevel
	if logLevel == "" {
		logLevel = clientConfig.LogLevel
	}
	binutil.SetupMSLog("client", logLevel, clientConfig.LogFile, clientConfig.LogStderr)

	mapClient = newMapClient(clientConfig)
	setupSignals()

	if err := mapClient.connectGameplay(); err != nil {
		mslog.Fatalf("connect to server failed: %v", err)
	}

	if args.requestRegen {
		post.Post(func() {
			if err := mapClient.RequestMapRegen(); err != nil {
				mslog.Errorf("map regen request failed: %v", err)
			}
		})
	}

	mapClient.run()
}

func setupSignals() {
	mslog.Infof("Setup signals ...")
	signal.Ignore(syscall.Signal(10), syscall.Signal(12), syscall.SIGPIPE, syscall.SIGHUP)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for {
			sig := <-signalChan
			if sig == syscall.SIGINT || sig == syscall.SIGTERM {
				mslog.Infof("Terminating map client ...")
				mapClient.terminate()
				mapClient.terminated.Wait()
				mslog.Infof("Map client terminated gracefully.")
				os.Exit(0)
			} else {
				mslog.Errorf("unexpected signal: %s", sig)
			}
		}
	}()
}
