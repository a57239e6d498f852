package main

import (
	"github.com/voxeldelve/mapsync/components/server"
)

func main() {
	server.Start()
}
