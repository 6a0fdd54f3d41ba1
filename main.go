package main

import (
	"github.com/Polkamarkets/particle-bundler-server/cmd"
)

func main() {
	cmd.Execute()
}
