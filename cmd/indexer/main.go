package main

import "github.com/vietddude/envelope-indexer/internal/cli"

func main() {
	cli.Execute()
}
