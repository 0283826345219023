package main

import "github.com/admitlab/admitpipe/cmd"

func main() {
	cmd.Execute()
}
