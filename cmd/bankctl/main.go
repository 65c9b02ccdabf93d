package main

import "bankcore/internal/cli"

var version = "dev"

func main() {
	cli.Execute(version)
}
