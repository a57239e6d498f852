//go:build !windows
// +build !windows

package binutil

import (
	"os"

	"github.com/sevlyar/go-daemon"

	"github.com/voxeldelve/mapsync/engine/mslog"
)

func Daemonize() *daemon.Context {
	context := new(daemon.Context)
	child, err := context.Reborn()

	if err != nil {
		// daemonize failed
		mslog.Panicf("daemonize failed: %v", err)
	}

	if child != nil {
		mslog.Infof("run in daemon mode")
		os.Exit(0)
		return nil
	} else {
		return context
	}
}
