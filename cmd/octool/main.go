package main

import "github.com/octoolhq/octool/cmd/octool/cmd"

func main() {
	cmd.Execute()
}
