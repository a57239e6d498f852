package server

import (
	"context"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"github.com/voxeldelve/mapsync/engine/mslog"
	"github.com/voxeldelve/mapsync/engine/msutils"
	"github.com/voxeldelve/mapsync/engine/post"
	"github.com/voxeldelve/mapsync/engine/proto"
)

// startLoadMonitor samples the server process CPU usage periodically and
// broadcasts it to every connected client on the gameplay channel. Sampling
// runs on its own goroutine; the broadcast itself is posted to the main
// routine.
func (ss *ServerService) startLoadMonitor(ctx context.Context, collectInterval time.Duration) {
	pid := os.Getpid()
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		mslog.Fatalf("can not find server process: pid = %v", pid)
	}
	mslog.Infof("loadmon: found server process: %s", p)

	go msutils.RepeatUntilPanicless(func() {
		for {
			time.Sleep(collectInterval)
			pcnt, err := p.CPUPercentWithContext(ctx)
			if err != nil {
				mslog.Panicf("loadmon: get process cpu percent failed: %s", err)
			}

			mslog.Debugf("loadmon: cpu percent is %.3f%%", pcnt)
			info := proto.ServerLoadInfo{CPUPercent: pcnt}
			post.Post(func() {
				ss.broadcastLoadInfo(info)
			})
		}
	})
}

func (ss *ServerService) broadcastLoadInfo(info proto.ServerLoadInfo) {
	ss.registry.eachGameplay(func(cp *clientProxy) {
		if err := cp.SendServerLoadInfo(info); err != nil {
			mslog.Errorf("%s: send load info failed: %v", cp, err)
		}
	})
}
