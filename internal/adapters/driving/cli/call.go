package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/graphrelay/internal/core/domain"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a bearer token for the given auth mode",
	Long: `Resolve a bearer token exactly as a relayed call would and print it as JSON.
Delegated tokens are refreshed first if they have expired.`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

var callCmd = &cobra.Command{
	Use:   "call METHOD PATH",
	Short: "Relay a single call to Microsoft Graph",
	Long: `Relay one call to Microsoft Graph and print the response body.

PATH is relative to the Graph base URL, e.g. "me/messages?$top=5".
The request body is read from --data, or from stdin when --data is "-".

Examples:
  graphrelay call GET me --mode delegated
  graphrelay call GET 'users?$top=5' --mode application
  graphrelay call POST chats/19:abc@thread.v2/messages --data '{"body":{"content":"hi"}}'`,
	Args: cobra.ExactArgs(2),
	RunE: runCall,
}

// Flags for token and call.
var (
	tokenMode string
	callMode  string
	callData  string
)

func init() {
	tokenCmd.Flags().StringVarP(&tokenMode, "mode", "m", string(domain.AuthModeDelegated),
		"auth mode: application or delegated")
	callCmd.Flags().StringVarP(&callMode, "mode", "m", string(domain.AuthModeDelegated),
		"auth mode: application or delegated")
	callCmd.Flags().StringVarP(&callData, "data", "d", "", "JSON request body, or - to read stdin")

	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(callCmd)
}

type tokenOutput struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	Mode        string    `json:"mode"`
}

func runToken(cmd *cobra.Command, _ []string) error {
	if dispatcher == nil {
		return errNotConfigured
	}

	mode, err := domain.ParseAuthMode(tokenMode)
	if err != nil {
		return err
	}

	tok, err := dispatcher.Resolve(cmd.Context(), mode)
	if err != nil {
		return loginHint(err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(tokenOutput{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresAt:   tok.ExpiresAt,
		Mode:        mode.String(),
	})
}

func runCall(cmd *cobra.Command, args []string) error {
	if graphService == nil {
		return errNotConfigured
	}

	mode, err := domain.ParseAuthMode(callMode)
	if err != nil {
		return err
	}

	body, err := readCallBody(cmd.InOrStdin(), callData)
	if err != nil {
		return err
	}

	result, err := graphService.Do(cmd.Context(), mode, strings.ToUpper(args[0]), args[1], body)
	if err != nil {
		var remoteErr *domain.RemoteAPIError
		if errors.As(err, &remoteErr) {
			printJSON(cmd.OutOrStdout(), []byte(remoteErr.Body))
			return fmt.Errorf("graph returned status %d", remoteErr.StatusCode)
		}
		return loginHint(err)
	}

	if result.Accepted {
		cmd.Printf("%d accepted\n", result.StatusCode)
		return nil
	}
	printJSON(cmd.OutOrStdout(), result.Body)
	return nil
}

func readCallBody(stdin io.Reader, data string) (any, error) {
	var raw []byte
	switch data {
	case "":
		return nil, nil
	case "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		raw = b
	default:
		raw = []byte(data)
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: request body is not valid JSON", domain.ErrInvalidInput)
	}
	return json.RawMessage(raw), nil
}

// printJSON indents data when it is JSON and prints it verbatim otherwise.
func printJSON(w io.Writer, data []byte) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		_, _ = w.Write(data)
		_, _ = fmt.Fprintln(w)
		return
	}
	buf.WriteByte('\n')
	_, _ = buf.WriteTo(w)
}

// loginHint adds the recovery step to a missing session error.
func loginHint(err error) error {
	if domain.IsSessionError(err) {
		return fmt.Errorf("%w (run 'graphrelay login')", err)
	}
	return err
}
