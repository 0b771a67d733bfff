// Package main provides the entry point for the serpdiff CLI.
//
// serpdiff collects search result rankings for a list of queries and
// compares them against a reference ranking.
//
// Usage:
//
//	serpdiff collect queries.txt
//	serpdiff compare --reference google.json --out result.csv
//
// See --help for all available options.
package main

func main() {
	Execute()
}
