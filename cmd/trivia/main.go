package main

import "github.com/mcoot/triviasync/internal/cli"

func main() {
	cli.Execute()
}
