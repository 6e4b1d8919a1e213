package main

import "github.com/treefix50/trainingtime/cmd"

func main() {
	cmd.Execute()
}
