package main

import "github.com/marcus/agentrouter/cmd/agentrouter/commands"

func main() {
	commands.Execute()
}
