package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"refractoriq/internal/auth"
	"refractoriq/internal/config"
	"refractoriq/internal/dashboard"
	"refractoriq/internal/errors"
	"refractoriq/internal/paths"
)

var tokenSave bool

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the dashboard server token",
	Long: `Create and check the bearer token that protects the local dashboard server.

Only a bcrypt hash of the token is stored, in serve.tokenHash.

Examples:
  refractoriq token hash --save
  refractoriq token hash riq_sk_...
  refractoriq token verify riq_sk_...`,
}

var tokenHashCmd = &cobra.Command{
	Use:   "hash [token]",
	Short: "Hash a dashboard token, generating one if none is given",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTokenHash,
}

var tokenVerifyCmd = &cobra.Command{
	Use:   "verify <token>",
	Short: "Check a token against the configured hash",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenVerify,
}

func init() {
	tokenHashCmd.Flags().BoolVar(&tokenSave, "save", false, "Store the hash in config.toml as serve.tokenHash")

	tokenCmd.AddCommand(tokenHashCmd)
	tokenCmd.AddCommand(tokenVerifyCmd)
	rootCmd.AddCommand(tokenCmd)
}

// TokenResponseCLI is a token and its hash. Token is only set when generated.
type TokenResponseCLI struct {
	Token   string `json:"token,omitempty"`
	Hash    string `json:"hash"`
	SavedTo string `json:"savedTo,omitempty"`
}

func (r *TokenResponseCLI) formatHuman(t dashboard.Theme) string {
	var lines []string
	if r.Token != "" {
		lines = append(lines,
			t.Label.Render("Token")+t.Value.Render(r.Token),
			t.Warning.Render("Store this token now; it cannot be shown again."),
		)
	}
	lines = append(lines, t.Label.Render("Hash")+r.Hash)
	if r.SavedTo != "" {
		lines = append(lines, t.Success.Render("Saved serve.tokenHash to "+r.SavedTo))
	} else {
		lines = append(lines, t.Muted.Render("Set serve.tokenHash to this hash, or rerun with --save."))
	}
	return joinLines(lines)
}

// TokenVerifyResponseCLI reports a token check
type TokenVerifyResponseCLI struct {
	Token string `json:"token"`
	Valid bool   `json:"valid"`
}

func (r *TokenVerifyResponseCLI) formatHuman(t dashboard.Theme) string {
	if r.Valid {
		return t.Success.Render(fmt.Sprintf("✓ %s matches serve.tokenHash", r.Token))
	}
	return t.Error.Render(fmt.Sprintf("✗ %s does not match serve.tokenHash", r.Token))
}

func runTokenHash(cmd *cobra.Command, args []string) error {
	resp := &TokenResponseCLI{}
	token := ""
	if len(args) == 1 {
		token = args[0]
	} else {
		generated, err := auth.GenerateToken()
		if err != nil {
			return err
		}
		token = generated
		resp.Token = generated
	}

	hash, err := auth.HashToken(token)
	if err != nil {
		return errors.NewRiqError(errors.InvalidInput, err.Error(), err)
	}
	resp.Hash = hash

	if tokenSave {
		path, err := saveTokenHash(hash)
		if err != nil {
			return err
		}
		resp.SavedTo = path
	}
	return printResponse(cmd, resp)
}

// saveTokenHash writes hash into the config file, creating it from defaults
// when none exists. Environment overrides are not persisted.
func saveTokenHash(hash string) (string, error) {
	home, err := paths.EnsureHome()
	if err != nil {
		return "", err
	}
	result, err := config.LoadConfig(home)
	if err != nil {
		return "", err
	}
	path := result.ConfigPath
	if path == "" {
		path = filepath.Join(home, config.FileName)
	}
	if len(result.EnvOverrides) > 0 {
		return "", fmt.Errorf("unset REFRACTORIQ_* overrides before saving; they would be written to %s", path)
	}
	cfg := result.Config
	cfg.Serve.TokenHash = hash
	if err := cfg.Save(path); err != nil {
		return "", err
	}
	return path, nil
}

func runTokenVerify(cmd *cobra.Command, args []string) error {
	env, err := newEnv(false)
	if err != nil {
		return err
	}
	defer env.Close()

	if env.cfg.Serve.TokenHash == "" {
		return errors.NewRiqError(errors.InvalidInput, "serve.tokenHash is not set", nil)
	}
	resp := &TokenVerifyResponseCLI{
		Token: auth.MaskToken(args[0]),
		Valid: auth.VerifyToken(args[0], env.cfg.Serve.TokenHash),
	}
	if err := printResponse(cmd, resp); err != nil {
		return err
	}
	if !resp.Valid {
		return errors.NewRiqError(errors.Unauthorized, "token does not match", nil)
	}
	return nil
}
