package main

import "github.com/scorecast/scorecast/cmd"

func main() {
	cmd.Execute()
}
