package main

import "pickme-client/cmd"

func main() {
	cmd.Run()
}
