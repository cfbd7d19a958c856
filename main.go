package main

import "github.com/selfrecall/selfrecall/cmd"

func main() {
	cmd.Execute()
}
