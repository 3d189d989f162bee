package main

import "rem/cmd"

func main() {
	cmd.Execute()
}
