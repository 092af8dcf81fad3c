package main

import "coin-alarm-bot/internal/cli"

func main() {
	cli.Execute()
}
