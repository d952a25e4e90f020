package main

import (
	"github.com/novasearch/novacrawler/cmd"
)

func main() {
	cmd.Execute()
}
