package main

import "github.com/devstz/autoposter-node/cmd"

func main() {
	cmd.Execute()
}
