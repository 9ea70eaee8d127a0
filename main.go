package main

import "audioconv/cmd"

func main() {
	cmd.Execute()
}
