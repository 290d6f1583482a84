package main

import "github.com/bryan-buckman/feeder/internal/cmd"

func main() {
	cmd.Execute()
}
