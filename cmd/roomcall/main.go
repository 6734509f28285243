package main

import "github.com/mindmesh/roomcall/cmd/roomcall/cmd"

func main() {
	cmd.Execute()
}
