package main

import "github.com/shenikar/sos_broadcasting_system/cmd/sos-client/cmd"

func main() {
	cmd.Execute()
}
