package main

import "github.com/onemin-relay/relay/cmd"

func main() {
	cmd.Execute()
}
