package main

import "meshd/cmd"

func main() {
	cmd.Execute()
}
