package main

import "github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/cmd"

func main() {
	cmd.Execute()
}
