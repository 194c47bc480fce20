package main

import "github.com/marwant/zizh/cmd"

func main() {
	cmd.Execute()
}
