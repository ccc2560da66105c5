package main

import (
	"github.com/Brownie44l1/lesion-api/internal/cli"
)

func main() {
	cli.Execute()
}
