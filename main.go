package main

import (
	"github.com/ezekaj/auto-scouter-sub000/cmd"
)

func main() {
	cmd.Execute()
}
