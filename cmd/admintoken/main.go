// SPDX-License-Identifier: GPL-3.0-only

// admintoken generates an operator API token and the argon2id hash to put in
// ADMIN_API_KEY_HASH. The plain token is printed once and never stored.
package main

import (
	"fmt"
	"log"

	"accfleet-server/crypto"
)

func main() {
	token, err := crypto.GenerateRandomString("ak_", 16, "hex")
	if err != nil {
		log.Fatalf("Failed to generate token: %v", err)
	}

	hash, err := crypto.NewCrypto().HashPassword(token)
	if err != nil {
		log.Fatalf("Failed to hash token: %v", err)
	}

	fmt.Println("Token (give to the operator):", token)
	fmt.Println("ADMIN_API_KEY_HASH=" + hash)
}
