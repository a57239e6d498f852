package main

import (
	"github.com/voxeldelve/mapsync/components/client"
)

func main() {
	client.Start()
}
