// Package main is the entry point for metergate, the metered-usage and
// credit-accounting service behind the HOA violation-management tool.
package main

func main() {
	Execute()
}
