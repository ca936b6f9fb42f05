package main

import "github.com/pulseawards/vote-payments/cmd"

func main() {
	cmd.Execute()
}
