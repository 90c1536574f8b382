package main

import "github.com/kashisync/kashisync/cmd"

func main() {
	cmd.Execute()
}
