package main

import "github.com/tndang/rollcall/cmd"

func main() {
	cmd.Execute()
}
