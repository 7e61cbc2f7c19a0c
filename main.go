package main

import "github.com/tau-omega/stadsmonitor/cmd"

func main() {
	cmd.Execute()
}
