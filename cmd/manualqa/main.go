package main

import "manualqa/internal/cli"

func main() {
	cli.Execute()
}
