package main

import "github.com/vietddude/runguard/internal/cli"

func main() {
	cli.Execute()
}
