package main

import "easybuild/cmd"

func main() {
	cmd.Execute()
}
