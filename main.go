package main

import "github.com/xlog-social/xlog/cmd"

func main() {
	cmd.Execute()
}
