package main

import "github.com/mew-run/gateway/cmd"

func main() {
	cmd.Execute()
}
