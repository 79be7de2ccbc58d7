package main

import "github.com/vid2set/vid2set/internal/cli"

func main() {
	cli.Main()
}
