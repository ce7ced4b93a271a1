package main

import "github.com/cashd-network/cashd/internal/cli"

func main() {
	cli.Execute()
}
