// Command kmt-crawler scrapes reaction data from the KMT archive.
package main

import "github.com/JakeFAU/kmt-crawler/cmd"

func main() {
	cmd.Execute()
}
