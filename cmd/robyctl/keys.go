package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xela07ax/roby-guard/internal/domain"
	"github.com/xela07ax/roby-guard/internal/infra/auth"
)

func newKeygenCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ed25519 identity (prints the public key, stores the seed)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pub, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return err
			}
			key, err := domain.PubkeyFromBytes(pub)
			if err != nil {
				return err
			}
			seed := hex.EncodeToString(priv.Seed())

			if out == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "public: %s\nseed:   %s\n", key, seed)
				return nil
			}
			if err := os.WriteFile(out, []byte(seed+"\n"), 0o600); err != nil {
				return fmt.Errorf("write seed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the hex seed to this file instead of stdout")
	return cmd
}

// loadSigner читает hex seed из файла keygen.
func loadSigner(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key %s: %w", path, err)
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("key %s: expected %d byte hex seed", path, ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

func newCredentialHashCmd() *cobra.Command {
	var (
		owner, robot, level string
		from, until         int64
	)
	cmd := &cobra.Command{
		Use:   "credential-hash",
		Short: "Compute the credential commitment (Merkle leaf) for a holder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ownerKey, err := domain.ParsePubkey(owner)
			if err != nil {
				return fmt.Errorf("--owner: %w", err)
			}
			robotKey, err := domain.ParsePubkey(robot)
			if err != nil {
				return fmt.Errorf("--robot: %w", err)
			}
			lvl, err := domain.ParsePermissionLevel(level)
			if err != nil {
				return fmt.Errorf("--level: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), domain.CredentialCommitment(ownerKey, robotKey, lvl, from, until))
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "holder public key (hex)")
	cmd.Flags().StringVar(&robot, "robot", "", "robot record key (hex)")
	cmd.Flags().StringVar(&level, "level", "operator", "permission level")
	cmd.Flags().Int64Var(&from, "from", 0, "valid from (unix seconds)")
	cmd.Flags().Int64Var(&until, "until", 0, "valid until (unix seconds)")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("robot")
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Produce a bcrypt hash for auth.users in config.yaml",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		keyPath, subject, issuer string
		scopes                   []string
		ttl                      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a read API token signed with the RS256 private key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pem, err := os.ReadFile(keyPath)
			if err != nil {
				return err
			}
			priv, err := auth.ParseRSAPrivateKey(pem)
			if err != nil {
				return err
			}
			tok, err := auth.NewIssuer(priv, issuer, ttl, nil).Issue(subject, scopes)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok.AccessToken)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyPath, "private-key", "", "PEM encoded RSA private key")
	cmd.Flags().StringVar(&subject, "subject", "robyctl", "token subject")
	cmd.Flags().StringVar(&issuer, "issuer", "robyd", "token issuer")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{domain.ScopeRead}, "granted scopes")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("private-key")
	return cmd
}
