package main

import "github.com/mindwell/apiserver/cmd"

func main() {
	cmd.Execute()
}
