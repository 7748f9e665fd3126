package main

import "github.com/togglecache/togglecache/cmd"

func main() {
	cmd.Execute()
}
