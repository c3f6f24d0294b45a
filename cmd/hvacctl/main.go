// Command hvacctl administers the HVAC voice agent: database migrations,
// offline conversation simulation, prompt review and admin tokens.
package main

func main() {
	Execute()
}
