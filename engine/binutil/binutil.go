package binutil

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"golang.org/x/net/websocket"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/voxeldelve/mapsync/engine/mslog"
)

// SetupHTTPServer starts the HTTP server for go tool pprof and websockets
func SetupHTTPServer(ip string, port int, wsHandler func(ws *websocket.Conn)) {
	setupHTTPServer(ip, port, wsHandler, "", "")
}

// SetupHTTPServerTLS starts the HTTPs server for go tool pprof and websockets
func SetupHTTPServerTLS(ip string, port int, wsHandler func(ws *websocket.Conn), certFile string, keyFile string) {
	setupHTTPServer(ip, port, wsHandler, certFile, keyFile)
}

func setupHTTPServer(ip string, port int, wsHandler func(ws *websocket.Conn), certFile string, keyFile string) {
	if port == 0 {
		// pprof not enabled
		mslog.Infof("pprof server not enabled")
		return
	}

	httpHost := fmt.Sprintf("%s:%d", ip, port)
	mslog.Infof("http server listening on %s", httpHost)
	mslog.Infof("pprof http://%s/debug/pprof/ ... available commands: ", httpHost)
	mslog.Infof("    go tool pprof http://%s/debug/pprof/heap", httpHost)
	mslog.Infof("    go tool pprof http://%s/debug/pprof/profile", httpHost)
	if keyFile != "" || certFile != "" {
		mslog.Infof("TLS is enabled on http: key=%s, cert=%s", keyFile, certFile)
	}

	if wsHandler != nil {
		http.Handle("/ws", websocket.Handler(wsHandler))
	}

	go func() {
		if keyFile == "" && certFile == "" {
			http.ListenAndServe(httpHost, nil)
		} else {
			http.ListenAndServeTLS(httpHost, certFile, keyFile, nil)
		}
	}()
}

// SetupMSLog setup the mapsync log system
func SetupMSLog(component string, logLevel string, logFile string, logStderr bool) {
	mslog.SetSource(component)
	mslog.Infof("Set log level to %s", logLevel)
	mslog.SetLevel(mslog.StringToLevel(logLevel))

	outputWriters := make([]io.Writer, 0, 2)
	if logFile != "" {
		logFileWriter := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100, // megabytes
			MaxBackups: 100,
			MaxAge:     30, //days
			Compress:   true,
		}

		logFileWriter.Rotate() // rotate immediately
		outputWriters = append(outputWriters, logFileWriter)
	}

	if logStderr {
		outputWriters = append(outputWriters, os.Stderr)
	}

	if len(outputWriters) == 1 {
		mslog.SetOutput(outputWriters[0])
	} else {
		mslog.SetOutput(io.MultiWriter(outputWriters...))
	}
}
