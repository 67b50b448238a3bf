package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/term"
)

// Environment variables read for ESPA credentials
const (
	envUsername = "ESPA_SCIVAL_ESPA_USERNAME"
	envPassword = "ESPA_SCIVAL_ESPA_PASSWORD"
	envESPAEnv  = "ESPA_SCIVAL_ESPA_ENV"
)

// Credentials identify the ESPA account and environment
type Credentials struct {
	Username string
	Password string
	Env      string
}

// loadDotEnv loads .env from the working directory when present.
// Variables already set in the environment win.
func loadDotEnv() error {
	if _, err := os.Stat(".env"); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// resolveCredentials fills the fields the flags left empty from the
// environment, then prompts for a missing password
func resolveCredentials(username, env string, prompt passwordPrompt) (*Credentials, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	creds := &Credentials{
		Username: firstNonEmpty(username, os.Getenv(envUsername)),
		Env:      firstNonEmpty(env, os.Getenv(envESPAEnv)),
		Password: os.Getenv(envPassword),
	}
	if creds.Username == "" {
		return nil, fmt.Errorf("username is required (--username or %s)", envUsername)
	}
	if creds.Env == "" {
		return nil, fmt.Errorf("ESPA environment is required (--espa-env or %s)", envESPAEnv)
	}

	if creds.Password == "" {
		password, err := prompt(fmt.Sprintf("ESPA password (%s): ", creds.Username))
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		creds.Password = password
	}
	return creds, nil
}

// passwordPrompt asks for a secret
type passwordPrompt func(label string) (string, error)

// terminalPrompt reads a password from stdin without echo. When stdin is
// not a terminal the first line is read as is.
func terminalPrompt(in *os.File, out io.Writer) passwordPrompt {
	return func(label string) (string, error) {
		fmt.Fprint(out, label)
		defer fmt.Fprintln(out)

		if term.IsTerminal(int(in.Fd())) {
			b, err := term.ReadPassword(int(in.Fd()))
			if err != nil {
				return "", err
			}
			return string(b), nil
		}

		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
