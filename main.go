package main

import "github.com/qrave1/meetsignal/cmd"

func main() {
	cmd.Execute()
}
