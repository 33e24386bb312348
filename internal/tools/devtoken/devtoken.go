// Package devtoken issues development bearer tokens and token secrets.
package devtoken

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/wholesale-storefront/storefront/internal/platform/bearer"
	"github.com/wholesale-storefront/storefront/internal/platform/requestctx"
)

// Config holds token tool configuration.
type Config struct {
	Subject     string
	Role        string
	TaxExempt   bool
	TTL         time.Duration
	NewSecret   bool
	SecretBytes int
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{SecretBytes: 32}
	fs.StringVar(&cfg.Subject, "user", "", "user id placed in the token subject")
	fs.StringVar(&cfg.Role, "role", "", "role claim, e.g. admin")
	fs.BoolVar(&cfg.TaxExempt, "tax-exempt", false, "mark the account tax exempt")
	fs.DurationVar(&cfg.TTL, "ttl", 0, "token lifetime (defaults to STOREFRONT_TOKEN_TTL)")
	fs.BoolVar(&cfg.NewSecret, "new-secret", false, "print a fresh STOREFRONT_TOKEN_SECRET instead of a token")
	fs.IntVar(&cfg.SecretBytes, "secret-bytes", cfg.SecretBytes, "random bytes in a generated secret")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Main runs the token tool with args and returns the process exit code.
// Errors go to stderr unprefixed so the tool's stdout stays pipeable into
// a shell.
func Main(args []string, stdout, stderr io.Writer, now func() time.Time) int {
	fs := flag.NewFlagSet("storefront-token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfg, err := ParseConfig(fs, args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "parse flags: %v\n", err)
		return 2
	}
	if err := Run(cfg, stdout, nil, now); err != nil {
		fmt.Fprintf(stderr, "storefront-token: %v\n", err)
		return 1
	}
	return 0
}

// Run writes either a new signing secret or a signed token to out. Tokens
// are signed with the STOREFRONT_TOKEN_* settings from the environment.
func Run(cfg Config, out io.Writer, reader io.Reader, now func() time.Time) error {
	if out == nil {
		return errors.New("output is required")
	}
	if cfg.NewSecret {
		return writeSecret(cfg.SecretBytes, out, reader)
	}

	subject := strings.TrimSpace(cfg.Subject)
	if subject == "" {
		return errors.New("user is required")
	}
	tokenCfg, err := bearer.LoadConfigFromEnv(now)
	if err != nil {
		return err
	}
	if cfg.TTL > 0 {
		tokenCfg.TTL = cfg.TTL
	}
	token, err := bearer.Issue(tokenCfg, requestctx.Principal{
		UserID:    subject,
		Role:      strings.TrimSpace(cfg.Role),
		TaxExempt: cfg.TaxExempt,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func writeSecret(size int, out io.Writer, reader io.Reader) error {
	if size < 16 {
		return errors.New("secret must be at least 16 bytes")
	}
	if reader == nil {
		reader = rand.Reader
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return fmt.Errorf("generate random bytes: %w", err)
	}
	_, err := fmt.Fprintf(out, "export %s_SECRET=%s\n", bearer.EnvPrefix, hex.EncodeToString(buf))
	return err
}
