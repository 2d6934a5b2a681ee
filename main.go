package main

import "github.com/killallgit/grapher/cmd"

func main() {
	cmd.Execute()
}
