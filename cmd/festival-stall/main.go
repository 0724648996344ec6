package main

import "festival-stall/cmd/festival-stall/commands"

func main() {
	commands.Execute()
}
