package main

import "github.com/deploymenttheory/go-bootstage/cmd"

func main() {
	cmd.Execute()
}
