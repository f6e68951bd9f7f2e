// Command convlog-keygen mints API credentials for convlogd.
//
// With no flags it generates a fresh API key: the raw key goes to the
// client, the argon2id hash goes into CONVLOG_API_KEY_HASH. With -secret
// it instead issues a signed JWT for the given client name.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gosuda/convlog/internal/auth"
)

func main() {
	secret := flag.String("secret", "", "JWT signing secret; when set, issue a token instead of an API key")
	client := flag.String("client", "orchestrator", "client name embedded in the issued token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *secret != "" {
		token, err := auth.IssueToken(*secret, *client, *ttl)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Bearer token (%s, valid %s):\n%s\n", *client, *ttl, token)
		return
	}

	rawKey, hash, err := auth.GenerateAPIKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate api key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("API key (give to client, shown once): %s\n", rawKey)
	fmt.Printf("CONVLOG_API_KEY_HASH=%s\n", hash)
}
