package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/otherjamesbrown/penf-live/credentials"
)

// NewAuthCommand creates the 'auth' command group.
func NewAuthCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the enhancement API key",
		Long: `Manage the API key sent to the enhancement provider.

The key is stored in ~/.penf-live/credentials.yaml, encrypted with AES-GCM.
The encryption key comes from the system keyring, from
PENF_LIVE_ENCRYPTION_KEY (64 hex characters), or is derived from
PENF_LIVE_PASSPHRASE.

PENF_LIVE_API_KEY takes precedence over the stored key. With the "none"
provider no key is needed.`,
	}

	cmd.AddCommand(newAuthSetKeyCommand(deps))
	cmd.AddCommand(newAuthStatusCommand(deps))
	cmd.AddCommand(newAuthClearCommand(deps))
	return cmd
}

func newAuthSetKeyCommand(deps *Deps) *cobra.Command {
	var (
		apiKey   string
		provider string
	)

	cmd := &cobra.Command{
		Use:   "set-key",
		Short: "Store the enhancement API key",
		Long: `Store the enhancement API key, encrypted at rest.

Without --api-key the key is read from the terminal without echo, or from
standard input when it is not a terminal.

Examples:
  penf-live auth set-key
  penf-live auth set-key --provider openai
  echo "$KEY" | penf-live auth set-key`,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if apiKey == "" {
				key, err := readAPIKey(cmd.InOrStdin(), w)
				if err != nil {
					return err
				}
				apiKey = key
			}
			if err := validateAPIKey(apiKey); err != nil {
				return err
			}

			if provider == "" {
				if cfg, err := deps.config(); err == nil {
					provider = cfg.Enhancement.Provider
				}
			}

			store, err := deps.NewCredentialStore()
			if err != nil {
				return fmt.Errorf("initializing credential store: %w", err)
			}
			if err := store.Save(&credentials.Credentials{Provider: provider, APIKey: apiKey}); err != nil {
				return fmt.Errorf("saving credentials: %w", err)
			}

			fmt.Fprintln(w, "API key stored.")
			fmt.Fprintf(w, "  Key:      %s\n", credentials.MaskAPIKey(apiKey))
			if provider != "" {
				fmt.Fprintf(w, "  Provider: %s\n", provider)
			}
			fmt.Fprintf(w, "  File:     %s\n", store.Path())
			fmt.Fprintf(w, "  Secured:  %s\n", store.KeySource())
			return nil
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key (prompted for when omitted)")
	cmd.Flags().StringVar(&provider, "provider", "", "Provider the key belongs to (default from config)")
	return cmd
}

// authStatus is the machine-readable form of 'auth status'.
type authStatus struct {
	Source   string `json:"source" yaml:"source"`
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	Key      string `json:"key,omitempty" yaml:"key,omitempty"`
	KeyID    string `json:"key_id,omitempty" yaml:"key_id,omitempty"`
	File     string `json:"file,omitempty" yaml:"file,omitempty"`
	Secured  string `json:"secured_by,omitempty" yaml:"secured_by,omitempty"`
}

func newAuthStatusCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which API key will be used",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.config()
			if err != nil {
				return err
			}
			st, err := resolveAuthStatus(deps)
			if err != nil {
				return err
			}
			return output(cmd.OutOrStdout(), cfg.OutputFormat, st, func(w io.Writer) error {
				fmt.Fprintf(w, "Source:   %s\n", st.Source)
				if st.Key != "" {
					fmt.Fprintf(w, "Key:      %s (id %s)\n", st.Key, st.KeyID)
				}
				if st.Provider != "" {
					fmt.Fprintf(w, "Provider: %s\n", st.Provider)
				}
				if st.File != "" {
					fmt.Fprintf(w, "File:     %s\n", st.File)
					fmt.Fprintf(w, "Secured:  %s\n", st.Secured)
				}
				if st.Source == "none" && cfg.Enhancement.Provider != "none" {
					fmt.Fprintf(w, "\nProvider %q needs a key: run 'penf-live auth set-key'.\n", cfg.Enhancement.Provider)
				}
				return nil
			})
		},
	}
}

func resolveAuthStatus(deps *Deps) (*authStatus, error) {
	if key := os.Getenv(credentials.APIKeyEnv); key != "" {
		return &authStatus{
			Source: "environment (" + credentials.APIKeyEnv + ")",
			Key:    credentials.MaskAPIKey(key),
			KeyID:  credentials.APIKeyID(key),
		}, nil
	}

	store, err := deps.NewCredentialStore()
	if err != nil {
		return nil, fmt.Errorf("initializing credential store: %w", err)
	}
	creds, err := store.Load()
	if errors.Is(err, credentials.ErrNoCredentials) {
		return &authStatus{Source: "none"}, nil
	}
	if err != nil {
		return nil, err
	}
	return &authStatus{
		Source:   "stored",
		Provider: creds.Provider,
		Key:      credentials.MaskAPIKey(creds.APIKey),
		KeyID:    credentials.APIKeyID(creds.APIKey),
		File:     store.Path(),
		Secured:  store.KeySource(),
	}, nil
}

func newAuthClearCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the stored API key",
		Long: `Delete the stored API key. PENF_LIVE_API_KEY is not affected.

Examples:
  penf-live auth clear`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := deps.NewCredentialStore()
			if err != nil {
				return fmt.Errorf("initializing credential store: %w", err)
			}
			existed := store.Exists()
			if err := store.Delete(); err != nil {
				return err
			}
			if existed {
				fmt.Fprintln(cmd.OutOrStdout(), "Stored API key deleted.")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "No stored API key.")
			}
			return nil
		},
	}
}

// readAPIKey prompts for the key without echo on a terminal and reads a line
// from in otherwise.
func readAPIKey(in io.Reader, w io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(w, "API key: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(w)
		if err != nil {
			return "", fmt.Errorf("reading API key: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading API key: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func validateAPIKey(key string) error {
	if key == "" {
		return fmt.Errorf("API key is empty")
	}
	if len(key) < 8 {
		return fmt.Errorf("API key is too short")
	}
	if strings.ContainsAny(key, " \t\r\n") {
		return fmt.Errorf("API key must not contain whitespace")
	}
	return nil
}
