// Command hashpass generates an Argon2id hash for the dashboard admin
// password, suitable for auth.admin_password_hash in the config file.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/baluhost/balupi/internal/auth"
)

func main() {
	fmt.Fprint(os.Stderr, "Password: ")
	reader := bufio.NewReader(os.Stdin)
	password, err := reader.ReadString('\n')
	if err != nil {
		fmt.Fprintf(os.Stderr, "read password: %v\n", err)
		os.Exit(1)
	}
	password = strings.TrimRight(password, "\r\n")
	if password == "" {
		fmt.Fprintln(os.Stderr, "empty password")
		os.Exit(1)
	}

	hash, err := auth.NewPasswordHasher().HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash password: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
