//go:build windows
// +build windows

package binutil

import "github.com/voxeldelve/mapsync/engine/mslog"

type nopRelease int

func (_ nopRelease) Release() {

}

func Daemonize() nopRelease {
	// Windows can not daemonize
	mslog.Warnf("can not run in daemon mode in windows, -d ignored")
	return nopRelease(0)
}
