package main

import "github.com/aegisos/kernel/cmd"

func main() {
	cmd.Execute()
}
