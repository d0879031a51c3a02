package main

import "github.com/savehaven/savehaven/cmd"

func main() {
	cmd.Execute()
}
