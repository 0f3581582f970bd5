package main

import "site-controller/cmd"

func main() {
	cmd.Execute()
}
