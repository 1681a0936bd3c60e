// Command forwarder-keyfile seals a signer mnemonic into a passphrase
// protected keyfile that forwarderd can load via NOBLE_SIGNER_KEYFILE.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/tyler-smith/go-bip39"

	"cctp-forwarder/go-backend/internal/securestore"
	"cctp-forwarder/go-backend/internal/signer"
)

func main() {
	out := flag.String("out", "", "output keyfile path")
	generate := flag.Bool("generate", false, "generate a fresh 24-word mnemonic instead of reading one")
	prefix := flag.String("prefix", signer.DefaultAddressPrefix, "bech32 address prefix")
	hdPath := flag.String("hd-path", signer.DefaultHDPath, "BIP-44 derivation path")
	showMnemonic := flag.Bool("show-mnemonic", false, "print a generated mnemonic to stdout")
	flag.Parse()

	if strings.TrimSpace(*out) == "" {
		log.Fatal("-out is required")
	}
	passphrase := os.Getenv("NOBLE_SIGNER_PASSPHRASE")
	if passphrase == "" {
		log.Fatal("NOBLE_SIGNER_PASSPHRASE must be set")
	}

	mnemonic, err := readMnemonic(*generate)
	if err != nil {
		log.Fatalf("read mnemonic: %v", err)
	}
	provider, err := signer.NewMnemonicProvider(mnemonic, *prefix, *hdPath)
	if err != nil {
		log.Fatalf("derive signer: %v", err)
	}
	if err := securestore.WriteSealedFile(*out, passphrase, []byte(mnemonic)); err != nil {
		log.Fatalf("write keyfile: %v", err)
	}

	fmt.Printf("keyfile=%s address=%s\n", *out, provider.Address())
	if *generate && *showMnemonic {
		fmt.Println(mnemonic)
	}
}

func readMnemonic(generate bool) (string, error) {
	if generate {
		entropy, err := bip39.NewEntropy(256)
		if err != nil {
			return "", err
		}
		return bip39.NewMnemonic(entropy)
	}
	if m := strings.TrimSpace(os.Getenv("NOBLE_SIGNER_MNEMONIC")); m != "" {
		return m, nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && strings.TrimSpace(line) == "" {
		return "", fmt.Errorf("no mnemonic on stdin: %w", err)
	}
	return strings.Join(strings.Fields(line), " "), nil
}
