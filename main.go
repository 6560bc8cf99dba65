package main

import "github.com/anthropic-openrouter-proxy/proxy/cmd"

func main() {
	cmd.Execute()
}
