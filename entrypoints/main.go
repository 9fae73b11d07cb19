package main

import (
	"github.com/Laisky/disaster-alert/cmd"
)

func main() {
	cmd.Execute()
}
