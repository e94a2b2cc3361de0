package main

import "foodbank-checkin-backend/cmd"

func main() {
	cmd.Run()
}
