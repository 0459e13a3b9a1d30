package main

import "github.com/JakeFAU/sitescan/cmd"

func main() {
	cmd.Execute()
}
