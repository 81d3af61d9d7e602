package main

import "github.com/govconnect/channel-gateway/cmd"

func main() {
	cmd.Execute()
}
