package main

import "github.com/FranksOps/wisher/internal/cli"

func main() {
	cli.Execute()
}
