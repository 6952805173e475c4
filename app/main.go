package main

import "github.com/lloydmeta/reqindex/app/cmd"

func main() {
	cmd.Execute()
}
