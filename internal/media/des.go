package media

import (
	"crypto/des"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Catalog media links arrive DES-ECB encrypted with this fixed, publicly
// known key, base64 wrapped.
var mediaLinkKey = []byte("38346591")

var errBadMediaLink = errors.New("malformed encrypted media link")

// DecryptMediaLink decodes an encrypted catalog link into a CDN URL and
// upgrades the quality suffix to the 320 kbps variant.
func DecryptMediaLink(enc string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errBadMediaLink, err)
	}
	block, err := des.NewCipher(mediaLinkKey)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 || len(raw)%block.BlockSize() != 0 {
		return "", errBadMediaLink
	}
	plain := make([]byte, len(raw))
	for i := 0; i < len(raw); i += block.BlockSize() {
		block.Decrypt(plain[i:], raw[i:])
	}
	plain, err = pkcs5Unpad(plain, block.BlockSize())
	if err != nil {
		return "", err
	}
	return strings.Replace(string(plain), "_96", "_320", 1), nil
}

func pkcs5Unpad(data []byte, blockSize int) ([]byte, error) {
	n := int(data[len(data)-1])
	if n < 1 || n > blockSize || n > len(data) {
		return nil, errBadMediaLink
	}
	return data[:len(data)-n], nil
}
