// Command sign is the author side of ed25519 login: it creates key pairs,
// signs challenges pasted by hand, signs in to a server and prints the
// session token, or publishes a markdown file through the editor flow.
package main

import (
	"bufio"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/codu-code/codu/internal/auth"
	"github.com/codu-code/codu/internal/client"
	"github.com/codu-code/codu/internal/editor"
	"github.com/codu-code/codu/internal/logger"
)

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)
	outputStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

var (
	keyFile   string
	serverURL string

	postTitle     string
	postTags      []string
	postExcerpt   string
	postCanonical string
	postSchedule  string
)

func loadPrivateKey(filename string) (ed25519.PrivateKey, error) {
	privKeyBytes, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(privKeyBytes)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}
	privKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	edPriv, ok := privKey.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an Ed25519 private key")
	}
	return edPriv, nil
}

// writeKeyPair writes privkey.pem and pubkey.pem into dir.
func writeKeyPair(dir string) (privPath, pubPath string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", err
	}

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", "", err
	}
	pubPEM, err := auth.EncodePublicKeyPEM(pub)
	if err != nil {
		return "", "", err
	}

	privPath = filepath.Join(dir, "privkey.pem")
	pubPath = filepath.Join(dir, "pubkey.pem")
	if err := os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0o600); err != nil {
		return "", "", err
	}
	if err := os.WriteFile(pubPath, []byte(pubPEM), 0o644); err != nil {
		return "", "", err
	}
	return privPath, pubPath, nil
}

// signChallenge signs a base64 challenge and returns the base64 signature.
func signChallenge(key ed25519.PrivateKey, challengeB64 string) (string, error) {
	challenge, err := base64.StdEncoding.DecodeString(challengeB64)
	if err != nil {
		return "", fmt.Errorf("invalid base64")
	}
	return base64.StdEncoding.EncodeToString(ed25519.Sign(key, challenge)), nil
}

// signLoop reads challenges from in until EOF or "quit".
func signLoop(key ed25519.PrivateKey, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Enter challenges one by one. Type 'quit' to exit.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, promptStyle.Render("Enter challenge (base64): "))
		if !scanner.Scan() {
			break
		}

		challengeB64 := strings.TrimSpace(scanner.Text())
		if challengeB64 == "" {
			continue
		}
		if challengeB64 == "quit" {
			break
		}

		sig, err := signChallenge(key, challengeB64)
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("Error: "+err.Error()))
			continue
		}
		fmt.Fprintln(out, outputStyle.Render("Signature: "+sig))
	}
	return scanner.Err()
}

var rootCmd = &cobra.Command{
	Use:          "sign",
	Short:        "Sign ed25519 login challenges",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := loadPrivateKey(keyFile)
		if err != nil {
			return fmt.Errorf("load private key: %w", err)
		}
		return signLoop(key, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <username>",
	Short: "Sign in to a server and print the session token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := loadPrivateKey(keyFile)
		if err != nil {
			return fmt.Errorf("load private key: %w", err)
		}

		c := client.New(serverURL)
		if err := c.Login(cmd.Context(), args[0], key); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), outputStyle.Render("Token: "+c.Token()))
		return nil
	},
}

var keygenCmd = &cobra.Command{
	Use:   "keygen [dir]",
	Short: "Create privkey.pem and pubkey.pem",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		privPath, pubPath, err := writeKeyPair(dir)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), outputStyle.Render("Private key: "+privPath))
		fmt.Fprintln(cmd.OutOrStdout(), outputStyle.Render("Public key: "+pubPath))
		return nil
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish <username> <file.md>",
	Short: "Publish a markdown file as a post",
	Long: `Sign in, save the file as a draft and publish it, now or at --schedule.

Prints the page the post can be found at.`,
	Args: cobra.ExactArgs(2),
	RunE: runPublish,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&keyFile, "key", "k", "privkey.pem", "PEM encoded ed25519 private key")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:3000", "Server base URL")

	publishCmd.Flags().StringVarP(&postTitle, "title", "t", "", "Post title")
	publishCmd.Flags().StringSliceVar(&postTags, "tag", nil, "Tag, repeat for up to 5")
	publishCmd.Flags().StringVar(&postExcerpt, "excerpt", "", "Excerpt, derived from the body when empty")
	publishCmd.Flags().StringVar(&postCanonical, "canonical", "", "Canonical URL when the post first appeared elsewhere")
	publishCmd.Flags().StringVar(&postSchedule, "schedule", "", "Publish at this RFC 3339 time instead of now")
	publishCmd.MarkFlagRequired("title")

	rootCmd.AddCommand(loginCmd, keygenCmd, publishCmd)
}

// publishFile runs body through an editor session and publishes it.
func publishFile(cmd *cobra.Command, api editor.API, body string) (*editor.Outcome, error) {
	e := editor.New(api)
	defer e.Close()

	s := e.Session()
	s.SetTitle(postTitle)
	s.SetBody(body)
	s.SetExcerpt(postExcerpt)
	s.SetCanonicalURL(postCanonical)
	for _, tag := range postTags {
		if !s.AddTag(tag) {
			return nil, fmt.Errorf("too many tags, the limit is reached at %q", tag)
		}
	}
	if postSchedule != "" {
		at, err := time.Parse(time.RFC3339, postSchedule)
		if err != nil {
			return nil, fmt.Errorf("invalid --schedule: %w", err)
		}
		s.SetSchedule(true, at)
	}

	return e.Publish(cmd.Context())
}

func runPublish(cmd *cobra.Command, args []string) error {
	editor.SetLogger(logger.NewWithWriter(cmd.ErrOrStderr(), "info", "console"))

	key, err := loadPrivateKey(keyFile)
	if err != nil {
		return fmt.Errorf("load private key: %w", err)
	}
	body, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}

	c := client.New(serverURL)
	if err := c.Login(cmd.Context(), args[0], key); err != nil {
		return err
	}

	out, err := publishFile(cmd, c, string(body))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), outputStyle.Render(string(out.Status)+": "+strings.TrimSuffix(serverURL, "/")+out.Redirect))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(1)
	}
}
