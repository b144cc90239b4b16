package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"filippo.io/age"
	"filippo.io/age/armor"
)

// AgeExtension is appended to token paths by the Age source.
const AgeExtension = ".age"

// Age resolves tokens to age-encrypted files. The token path names the file
// relative to the base directory without its extension, since '.' cannot
// appear in a token: age:secrets/db_password reads secrets/db_password.age.
// Both binary and ASCII-armored files are accepted.
type Age struct {
	prefix     string
	baseDir    string
	identities []age.Identity
}

// NewAge creates an Age source decrypting with the given identities.
func NewAge(prefix, baseDir string, identities ...age.Identity) *Age {
	return &Age{prefix: prefix, baseDir: baseDir, identities: identities}
}

// LoadIdentities reads an age identity file (one AGE-SECRET-KEY-1... per line,
// '#' comments allowed).
func LoadIdentities(path string) ([]age.Identity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open identity file: %w", err)
	}
	defer f.Close()

	ids, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parse identity file %s: %w", path, err)
	}
	return ids, nil
}

func (a *Age) Prefix() string { return a.prefix }

func (a *Age) Value(_ context.Context, raw string) (string, bool, error) {
	if len(a.identities) == 0 {
		return "", false, errors.New("age source: no identities configured")
	}

	path, err := pathOf(raw)
	if err != nil {
		return "", false, err
	}
	full, err := resolvePath(a.baseDir, path, AgeExtension)
	if err != nil {
		return "", false, err
	}

	f, err := os.Open(full)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("open %s: %w", full, err)
	}
	defer f.Close()

	plaintext, err := decrypt(f, a.identities)
	if err != nil {
		return "", false, fmt.Errorf("decrypt %s: %w", full, err)
	}
	return trimNewline(plaintext), true, nil
}

func decrypt(r io.Reader, identities []age.Identity) (string, error) {
	br := bufio.NewReader(r)
	var in io.Reader = br
	if head, _ := br.Peek(len(armor.Header)); string(head) == armor.Header {
		in = armor.NewReader(br)
	}

	dec, err := age.Decrypt(in, identities...)
	if err != nil {
		return "", err
	}
	out, err := io.ReadAll(dec)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
