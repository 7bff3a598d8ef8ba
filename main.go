package main

import "github.com/encodeous/dronet/cmd"

func main() {
	cmd.Execute()
}
